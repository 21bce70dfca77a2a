// Package tgmarkup converts Markdown to Telegram message text with entities,
// which avoids escaping issues of the MarkdownV2 parse mode.
package tgmarkup

import (
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Message is text plus the entities formatting it.
type Message struct {
	Text     string   `json:"text"`
	Entities []Entity `json:"entities,omitempty"`
}

// Type is a Telegram message entity type.
// See https://core.telegram.org/bots/api#messageentity.
type Type string

const (
	Mention       Type = "mention"
	Hashtag       Type = "hashtag"
	BotCommand    Type = "bot_command"
	URL           Type = "url"
	Email         Type = "email"
	Bold          Type = "bold"
	Italic        Type = "italic"
	Underline     Type = "underline"
	Strikethrough Type = "strikethrough"
	Blockquote    Type = "blockquote"
	Code          Type = "code"
	Pre           Type = "pre"
	TextLink      Type = "text_link"
)

// Entity is a formatted span. Offset and Length count UTF-16 code units.
type Entity struct {
	Type     Type   `json:"type"`
	Offset   int    `json:"offset"`
	Length   int    `json:"length"`
	URL      string `json:"url,omitempty"`
	Language string `json:"language,omitempty"`
}

var md = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))

// FromMarkdown converts Markdown to a Message.
func FromMarkdown(source string) Message {
	src := []byte(source)
	doc := md.Parser().Parse(text.NewReader(src))

	c := &converter{src: src}
	c.blocks(doc, "\n\n")
	return Message{
		Text:     c.sb.String(),
		Entities: c.entities,
	}
}

type converter struct {
	src      []byte
	sb       strings.Builder
	off      int // UTF-16 units written so far
	depth    int // list nesting
	entities []Entity
}

func (c *converter) write(s string) {
	c.sb.WriteString(s)
	c.off += utf16len(s)
}

// wrap records e around whatever fn writes. Empty spans are dropped.
func (c *converter) wrap(e Entity, fn func()) {
	start, idx := c.off, len(c.entities)
	c.entities = append(c.entities, e)
	fn()
	if c.off == start {
		c.entities = c.entities[:idx]
		return
	}
	c.entities[idx].Offset = start
	c.entities[idx].Length = c.off - start
}

func (c *converter) blocks(parent ast.Node, sep string) {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if n != parent.FirstChild() {
			c.write(sep)
		}
		c.block(n)
	}
}

func (c *converter) block(n ast.Node) {
	switch n := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		c.inlines(n)
	case *ast.Heading:
		c.wrap(Entity{Type: Bold}, func() { c.inlines(n) })
	case *ast.Blockquote:
		c.wrap(Entity{Type: Blockquote}, func() { c.blocks(n, "\n") })
	case *ast.List:
		c.list(n)
	case *ast.FencedCodeBlock:
		e := Entity{Type: Pre}
		if n.Info != nil {
			e.Language = string(n.Language(c.src))
		}
		c.wrap(e, func() { c.write(c.lines(n)) })
	case *ast.CodeBlock:
		c.wrap(Entity{Type: Pre}, func() { c.write(c.lines(n)) })
	case *ast.HTMLBlock:
		c.write(c.lines(n))
	case *ast.ThematicBreak:
		c.write("⸻")
	default:
		c.blocks(n, "\n")
	}
}

func (c *converter) list(l *ast.List) {
	indent := strings.Repeat("  ", c.depth)
	c.depth++
	defer func() { c.depth-- }()

	num := l.Start
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		if item != l.FirstChild() {
			c.write("\n")
		}
		c.write(indent)
		if l.IsOrdered() {
			c.write(strconv.Itoa(num) + ". ")
			num++
		} else {
			c.write("• ")
		}
		c.blocks(item, "\n")
	}
}

func (c *converter) lines(n ast.Node) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := range lines.Len() {
		seg := lines.At(i)
		sb.Write(seg.Value(c.src))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (c *converter) inlines(parent ast.Node) {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		c.inline(n)
	}
}

func (c *converter) inline(n ast.Node) {
	switch n := n.(type) {
	case *ast.Text:
		c.write(string(util.UnescapePunctuations(n.Segment.Value(c.src))))
		if n.SoftLineBreak() || n.HardLineBreak() {
			c.write("\n")
		}
	case *ast.String:
		c.write(string(n.Value))
	case *ast.CodeSpan:
		c.wrap(Entity{Type: Code}, func() {
			for t := n.FirstChild(); t != nil; t = t.NextSibling() {
				switch t := t.(type) {
				case *ast.Text:
					c.write(string(t.Segment.Value(c.src)))
				case *ast.String:
					c.write(string(t.Value))
				}
			}
		})
	case *ast.Emphasis:
		typ := Italic
		if n.Level >= 2 {
			typ = Bold
		}
		c.wrap(Entity{Type: typ}, func() { c.inlines(n) })
	case *east.Strikethrough:
		c.wrap(Entity{Type: Strikethrough}, func() { c.inlines(n) })
	case *ast.Link:
		c.wrap(Entity{Type: TextLink, URL: string(n.Destination)}, func() { c.inlines(n) })
	case *ast.Image:
		c.wrap(Entity{Type: TextLink, URL: string(n.Destination)}, func() { c.inlines(n) })
	case *ast.AutoLink:
		typ := URL
		if n.AutoLinkType == ast.AutoLinkEmail {
			typ = Email
		}
		c.wrap(Entity{Type: typ}, func() { c.write(string(n.Label(c.src))) })
	case *ast.RawHTML:
		segs := n.Segments
		for i := range segs.Len() {
			seg := segs.At(i)
			c.write(string(seg.Value(c.src)))
		}
	default:
		c.inlines(n)
	}
}

func utf16len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
