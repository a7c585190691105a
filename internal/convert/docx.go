package convert

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrNotDocx is returned when input is not a readable DOCX package.
var ErrNotDocx = errors.New("not a docx package")

const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// Zip entries get a fixed timestamp so output is reproducible.
var epoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
</Types>`

const rootRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const documentRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
</Relationships>`

// styleSizes are half-point font sizes for the styles we emit.
var styleSizes = []struct {
	id   string
	name string
	size int
}{
	{StyleTitle, "Title", 56},
	{"Heading1", "heading 1", 32},
	{"Heading2", "heading 2", 28},
	{"Heading3", "heading 3", 26},
	{"Heading4", "heading 4", 24},
	{"Heading5", "heading 5", 22},
}

func stylesXML() string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	b.WriteString(`<w:styles xmlns:w="` + wordNS + `">`)
	b.WriteString(`<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/></w:style>`)
	for _, s := range styleSizes {
		fmt.Fprintf(&b, `<w:style w:type="paragraph" w:styleId="%s"><w:name w:val="%s"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:qFormat/><w:rPr><w:b/><w:sz w:val="%d"/></w:rPr></w:style>`,
			s.id, s.name, s.size)
	}
	b.WriteString(`</w:styles>`)
	return b.String()
}

// WriteDocx packages paragraphs as a DOCX document.
func WriteDocx(paras []Paragraph) ([]byte, error) {
	var body bytes.Buffer
	body.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	body.WriteString(`<w:document xmlns:w="` + wordNS + `"><w:body>`)
	for _, p := range paras {
		body.WriteString(`<w:p>`)
		if p.Style != StyleNormal {
			body.WriteString(`<w:pPr><w:pStyle w:val="`)
			if err := xml.EscapeText(&body, []byte(p.Style)); err != nil {
				return nil, err
			}
			body.WriteString(`"/></w:pPr>`)
		}
		body.WriteString(`<w:r>`)
		for i, line := range strings.Split(p.Text, "\n") {
			if i > 0 {
				body.WriteString(`<w:br/>`)
			}
			body.WriteString(`<w:t xml:space="preserve">`)
			if err := xml.EscapeText(&body, []byte(line)); err != nil {
				return nil, err
			}
			body.WriteString(`</w:t>`)
		}
		body.WriteString(`</w:r></w:p>`)
	}
	body.WriteString(`<w:sectPr/></w:body></w:document>`)

	parts := []struct {
		name    string
		content string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", rootRelsXML},
		{"word/_rels/document.xml.rels", documentRelsXML},
		{"word/styles.xml", stylesXML()},
		{"word/document.xml", body.String()},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, part := range parts {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     part.name,
			Method:   zip.Deflate,
			Modified: epoch,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", part.name, err)
		}
		if _, err := io.WriteString(w, part.content); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish docx: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadDocx extracts styled paragraphs from a DOCX package.
func ReadDocx(data []byte) ([]Paragraph, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDocx, err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: word/document.xml missing", ErrNotDocx)
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open document.xml: %w", err)
	}
	defer rc.Close()

	return parseDocument(rc)
}

func parseDocument(r io.Reader) ([]Paragraph, error) {
	dec := xml.NewDecoder(r)

	var (
		paras  []Paragraph
		cur    *Paragraph
		text   strings.Builder
		inText bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				cur = &Paragraph{}
				text.Reset()
			case "pStyle":
				if cur != nil {
					cur.Style = attr(t, "val")
				}
			case "t":
				inText = true
			case "tab":
				if cur != nil {
					text.WriteByte('\t')
				}
			case "br", "cr":
				if cur != nil {
					text.WriteByte('\n')
				}
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if cur != nil {
					cur.Text = text.String()
					paras = append(paras, *cur)
					cur = nil
				}
			}

		case xml.CharData:
			if inText && cur != nil {
				text.Write(t)
			}
		}
	}

	return paras, nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
