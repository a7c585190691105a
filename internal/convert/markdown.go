package convert

import (
	"bytes"
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

const (
	// TextExt is the extension of the plain-text side.
	TextExt = ".md"
	// RenderedExt is the extension of the rendered side.
	RenderedExt = ".docx"
)

// Style names shared by both directions.
const (
	StyleNormal = ""
	StyleTitle  = "Title"
)

// Paragraph is the unit both formats are reduced to.
type Paragraph struct {
	Style string
	Text  string
}

// MarkdownDocx converts between Markdown and DOCX.
type MarkdownDocx struct {
	md goldmark.Markdown
}

// New creates a converter.
func New() *MarkdownDocx {
	return &MarkdownDocx{md: goldmark.New()}
}

// ToRendered converts Markdown source into DOCX bytes.
func (c *MarkdownDocx) ToRendered(ctx context.Context, src []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return WriteDocx(c.Paragraphs(src))
}

// ToText converts DOCX bytes into Markdown.
func (c *MarkdownDocx) ToText(ctx context.Context, docx []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	paras, err := ReadDocx(docx)
	if err != nil {
		return nil, err
	}
	return RenderMarkdown(paras), nil
}

// Paragraphs flattens Markdown into styled paragraphs.
func (c *MarkdownDocx) Paragraphs(src []byte) []Paragraph {
	doc := c.md.Parser().Parse(text.NewReader(src))

	var out []Paragraph
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		out = appendBlock(out, n, src)
	}
	return out
}

func appendBlock(out []Paragraph, n ast.Node, src []byte) []Paragraph {
	switch node := n.(type) {
	case *ast.Heading:
		return append(out, Paragraph{Style: HeadingStyle(node.Level), Text: inlineText(node, src)})

	case *ast.Paragraph, *ast.TextBlock:
		if t := inlineText(node, src); t != "" {
			out = append(out, Paragraph{Text: t})
		}
		return out

	case *ast.List:
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			var parts []string
			for child := item.FirstChild(); child != nil; child = child.NextSibling() {
				if _, nested := child.(*ast.List); nested {
					continue
				}
				if t := inlineText(child, src); t != "" {
					parts = append(parts, t)
				}
			}
			if len(parts) > 0 {
				out = append(out, Paragraph{Text: strings.Join(parts, " ")})
			}
			for child := item.FirstChild(); child != nil; child = child.NextSibling() {
				if nested, ok := child.(*ast.List); ok {
					out = appendBlock(out, nested, src)
				}
			}
		}
		return out

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		lines := n.Lines()
		var b strings.Builder
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(src))
		}
		code := strings.TrimRight(b.String(), "\n")
		if code != "" {
			out = append(out, Paragraph{Text: code})
		}
		return out

	case *ast.Blockquote:
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			out = appendBlock(out, child, src)
		}
		return out
	}

	// thematic breaks, raw HTML
	return out
}

// inlineText concatenates the text content under n.
func inlineText(n ast.Node, src []byte) string {
	var b bytes.Buffer
	_ = ast.Walk(n, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.CodeSpan:
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					b.Write(t.Segment.Value(src))
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			b.Write(resolveText(node.Segment.Value(src)))
			if node.HardLineBreak() {
				b.WriteByte('\n')
			} else if node.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.AutoLink:
			b.Write(node.Label(src))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// resolveText decodes entities and backslash escapes the way an HTML
// renderer would, so the document shows "AT&T" rather than "AT&amp;T".
func resolveText(raw []byte) []byte {
	v := util.ResolveEntityNames(raw)
	v = util.ResolveNumericReferences(v)
	return util.UnescapePunctuations(v)
}

// HeadingStyle maps a Markdown heading depth to a paragraph style.
// Depth 1 is the document title; deeper levels shift down by one and
// everything past 5 shares Heading5.
func HeadingStyle(depth int) string {
	switch {
	case depth <= 1:
		return StyleTitle
	case depth >= 6:
		return "Heading5"
	default:
		return "Heading" + string(rune('0'+depth-1))
	}
}

// HeadingDepth is the inverse of HeadingStyle. It returns 0 for styles that
// are not headings.
func HeadingDepth(style string) int {
	if style == StyleTitle {
		return 1
	}
	rest, ok := strings.CutPrefix(style, "Heading")
	if !ok || len(rest) != 1 || rest[0] < '1' || rest[0] > '9' {
		return 0
	}
	depth := int(rest[0]-'0') + 1
	if depth > 6 {
		depth = 6
	}
	return depth
}

// RenderMarkdown writes paragraphs as Markdown, one block per paragraph.
func RenderMarkdown(paras []Paragraph) []byte {
	var b bytes.Buffer
	for _, p := range paras {
		t := strings.TrimSpace(p.Text)
		if t == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if depth := HeadingDepth(p.Style); depth > 0 {
			b.WriteString(strings.Repeat("#", depth))
			b.WriteByte(' ')
			t = strings.ReplaceAll(t, "\n", " ")
		}
		b.WriteString(t)
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	return b.Bytes()
}
