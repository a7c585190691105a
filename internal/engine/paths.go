package engine

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Counterpart returns path with its extension replaced by ext, in the same
// directory.
func Counterpart(path, ext string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, base+ext)
}

// ClassifyPath reports which side of a pair path belongs to, comparing
// extensions case-insensitively.
func ClassifyPath(path, textExt, renderedExt string) (Side, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case strings.ToLower(textExt):
		return SideText, nil
	case strings.ToLower(renderedExt):
		return SideRendered, nil
	}
	return SideText, fmt.Errorf("%w: %s (expected %s or %s)", ErrUnsupportedPath, path, textExt, renderedExt)
}
