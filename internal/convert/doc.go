// Package convert transforms Markdown into a minimal DOCX package and back.
//
// The conversion is deliberately lossy. Markdown is parsed with goldmark and
// flattened into a sequence of paragraphs:
//
//   - "# Title" becomes a paragraph in the Title style
//   - "## .." through "######" map to Heading1 through Heading5
//   - paragraphs, list items and code blocks become plain paragraphs
//
// Going the other way, word/document.xml is scanned for paragraphs; Title and
// HeadingN styles are turned back into "#" prefixes and everything else is
// emitted as a plain paragraph. Inline formatting, tables and images are
// dropped. Callers must not rely on a round trip reproducing the input byte
// for byte.
//
// Both directions are pure functions of their input: the same Markdown always
// yields the same DOCX bytes.
package convert
