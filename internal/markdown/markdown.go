// Package markdown turns markdown documents into plain text for speech.
package markdown

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Options controls what ends up in the spoken text.
type Options struct {
	// IncludeCode reads code blocks and code spans.
	IncludeCode bool
	// DescribeImages reads images as "image: <alt text>".
	DescribeImages bool
}

// DefaultOptions skips code and describes images.
func DefaultOptions() Options {
	return Options{DescribeImages: true}
}

// IsMarkdown reports whether path has a markdown extension.
func IsMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdown", ".mkd":
		return true
	}
	return false
}

// ToText renders source as plain text: one line per block, markup removed.
func ToText(source []byte, opts Options) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var (
		out   []string
		block bytes.Buffer
	)
	flush := func() {
		if s := strings.Join(strings.Fields(block.String()), " "); s != "" {
			out = append(out, s)
		}
		block.Reset()
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
			if !entering {
				flush()
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering && opts.IncludeCode {
				lines := node.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					block.Write(seg.Value(source))
					block.WriteByte(' ')
				}
				flush()
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			if !opts.IncludeCode {
				return ast.WalkSkipChildren, nil
			}
		case *ast.Image:
			if entering {
				if opts.DescribeImages {
					block.WriteString(" image: ")
					writeText(&block, node, source)
					block.WriteByte(' ')
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				block.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					block.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				block.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				block.Write(node.Label(source))
			}
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	flush()
	return strings.Join(out, "\n")
}

// writeText appends the text of every descendant of n.
func writeText(buf *bytes.Buffer, n ast.Node, source []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
			continue
		}
		writeText(buf, c, source)
	}
}
