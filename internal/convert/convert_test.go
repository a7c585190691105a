package convert

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParagraphs(t *testing.T) {
	src := []byte(`# Quarterly Report

Intro paragraph
continues here.

## Findings

- first item
- second *item*

1. numbered

` + "```" + `
code line 1
code line 2
` + "```" + `

> quoted text

###### Deep heading
`)

	got := New().Paragraphs(src)
	want := []Paragraph{
		{Style: StyleTitle, Text: "Quarterly Report"},
		{Text: "Intro paragraph continues here."},
		{Style: "Heading1", Text: "Findings"},
		{Text: "first item"},
		{Text: "second item"},
		{Text: "numbered"},
		{Text: "code line 1\ncode line 2"},
		{Text: "quoted text"},
		{Style: "Heading5", Text: "Deep heading"},
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("Paragraphs() mismatch\n got: %#v\nwant: %#v", got, want)
	}
}

func TestParagraphs_ResolvesEscapesAndEntities(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"named entities and escapes", "AT&amp;T pays 5 \\* 3 &copy; 2024", "AT&T pays 5 * 3 © 2024"},
		{"numeric references", "issue &#35;42 &#x2014; fixed", "issue #42 \u2014 fixed"},
		{"escaped markup", "\\# not a heading, \\_not emphasis\\_", "# not a heading, _not emphasis_"},
		{"code span kept verbatim", "run `a\\*b &amp; c` now", "run a\\*b &amp; c now"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New().Paragraphs([]byte(tt.src))
			if len(got) != 1 {
				t.Fatalf("Expected 1 paragraph, got %#v", got)
			}
			if got[0].Text != tt.want {
				t.Errorf("Text = %q, want %q", got[0].Text, tt.want)
			}
		})
	}
}

func TestHeadingStyleDepth(t *testing.T) {
	tests := []struct {
		depth int
		style string
		back  int
	}{
		{1, "Title", 1},
		{2, "Heading1", 2},
		{3, "Heading2", 3},
		{4, "Heading3", 4},
		{5, "Heading4", 5},
		{6, "Heading5", 6},
	}

	for _, tt := range tests {
		if got := HeadingStyle(tt.depth); got != tt.style {
			t.Errorf("HeadingStyle(%d) = %q, want %q", tt.depth, got, tt.style)
		}
		if got := HeadingDepth(tt.style); got != tt.back {
			t.Errorf("HeadingDepth(%q) = %d, want %d", tt.style, got, tt.back)
		}
	}

	if HeadingDepth("Normal") != 0 {
		t.Error("Normal is not a heading")
	}
	if HeadingDepth("HeadingX") != 0 {
		t.Error("HeadingX is not a heading")
	}
}

func TestMarkdownDocxRoundTrip(t *testing.T) {
	c := New()
	ctx := context.Background()

	src := []byte("# Title\n\nBody text with a < b & c > d.\n\n## Section\n\nMore.\n")

	docx, err := c.ToRendered(ctx, src)
	if err != nil {
		t.Fatalf("ToRendered() failed: %v", err)
	}
	if !bytes.HasPrefix(docx, []byte("PK")) {
		t.Fatal("ToRendered() output is not a zip package")
	}

	md, err := c.ToText(ctx, docx)
	if err != nil {
		t.Fatalf("ToText() failed: %v", err)
	}

	if string(md) != string(src) {
		t.Errorf("Round trip mismatch\n got: %q\nwant: %q", md, src)
	}
}

func TestToRenderedDeterministic(t *testing.T) {
	c := New()
	src := []byte("# Same\n\ninput\n")

	a, err := c.ToRendered(context.Background(), src)
	if err != nil {
		t.Fatalf("ToRendered() failed: %v", err)
	}
	b, err := c.ToRendered(context.Background(), src)
	if err != nil {
		t.Fatalf("ToRendered() failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("Same input should produce identical bytes")
	}
}

func TestToTextRejectsGarbage(t *testing.T) {
	_, err := New().ToText(context.Background(), []byte("not a zip"))
	if !errors.Is(err, ErrNotDocx) {
		t.Errorf("Expected ErrNotDocx, got %v", err)
	}
}

func TestParseDocument_WordFeatures(t *testing.T) {
	xmlDoc := `<w:document xmlns:w="` + wordNS + `"><w:body>
<w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t>Split </w:t></w:r><w:r><w:t>runs</w:t></w:r></w:p>
<w:p><w:r><w:t>a</w:t><w:tab/><w:t>b</w:t><w:br/><w:t>c</w:t></w:r></w:p>
<w:p/>
<w:p><w:hyperlink><w:r><w:t>link text</w:t></w:r></w:hyperlink></w:p>
</w:body></w:document>`

	got, err := parseDocument(strings.NewReader(xmlDoc))
	if err != nil {
		t.Fatalf("parseDocument() failed: %v", err)
	}

	want := []Paragraph{
		{Style: "Heading2", Text: "Split runs"},
		{Text: "a\tb\nc"},
		{Text: ""},
		{Text: "link text"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseDocument() mismatch\n got: %#v\nwant: %#v", got, want)
	}

	md := string(RenderMarkdown(got))
	wantMD := "### Split runs\n\na\tb\nc\n\nlink text\n"
	if md != wantMD {
		t.Errorf("RenderMarkdown() = %q, want %q", md, wantMD)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New().ToRendered(ctx, []byte("# x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
