package engine

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestCounterpart(t *testing.T) {
	tests := []struct {
		path string
		ext  string
		want string
	}{
		{"notes/readme.md", ".docx", filepath.Join("notes", "readme.docx")},
		{"report.docx", ".md", "report.md"},
		{"archive.v2.md", ".docx", "archive.v2.docx"},
		{"noext", ".docx", "noext.docx"},
	}

	for _, tt := range tests {
		if got := Counterpart(tt.path, tt.ext); got != tt.want {
			t.Errorf("Counterpart(%q, %q) = %q, want %q", tt.path, tt.ext, got, tt.want)
		}
	}
}

func TestClassifyPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Side
		wantErr bool
	}{
		{"a.md", SideText, false},
		{"A.MD", SideText, false},
		{"b.docx", SideRendered, false},
		{"b.DocX", SideRendered, false},
		{"c.txt", SideText, true},
		{"noext", SideText, true},
	}

	for _, tt := range tests {
		got, err := ClassifyPath(tt.path, ".md", ".docx")
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedPath) {
				t.Errorf("ClassifyPath(%q) expected ErrUnsupportedPath, got %v", tt.path, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ClassifyPath(%q) failed: %v", tt.path, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ClassifyPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestDirection(t *testing.T) {
	if TextToRendered.From() != SideText || TextToRendered.To() != SideRendered {
		t.Error("TextToRendered should go text -> rendered")
	}
	if RenderedToText.From() != SideRendered || RenderedToText.To() != SideText {
		t.Error("RenderedToText should go rendered -> text")
	}
	if TextToRendered.String() != "text->rendered" {
		t.Errorf("Unexpected direction name %q", TextToRendered.String())
	}
}
