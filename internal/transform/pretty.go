package transform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// phpBlock matches embedded PHP. Blocks are swapped for inert markers before
// tokenizing because the HTML tokenizer would end a "<?" bogus comment at the
// first ">" inside the code.
var phpBlock = regexp.MustCompile(`(?s)<\?(?:php|=).*?(?:\?>|$)`)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

var inlineElements = map[string]bool{
	"a": true, "abbr": true, "b": true, "br": true, "button": true,
	"cite": true, "code": true, "em": true, "i": true, "img": true,
	"input": true, "kbd": true, "label": true, "mark": true, "q": true,
	"s": true, "small": true, "span": true, "strong": true, "sub": true,
	"sup": true, "time": true, "u": true, "wbr": true,
}

// Pretty re-indents HTML so that every block element starts on its own line,
// two spaces per nesting level. Inline elements stay within their line, the
// content of pre, textarea, script and style is kept byte for byte, and
// embedded PHP blocks come out unchanged.
func Pretty(src []byte) ([]byte, error) {
	var blocks []string
	masked := phpBlock.ReplaceAllFunc(src, func(m []byte) []byte {
		blocks = append(blocks, string(m))
		return []byte(phpMarker(len(blocks) - 1))
	})

	var toks []token
	z := html.NewTokenizer(bytes.NewReader(masked))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, err
			}
			break
		}
		// Raw must be copied before TagName lowercases the buffer.
		t := token{tt: tt, raw: string(z.Raw())}
		if tt == html.StartTagToken || tt == html.EndTagToken || tt == html.SelfClosingTagToken {
			name, _ := z.TagName()
			t.name = string(name)
		}
		toks = append(toks, t)
	}

	p := &prettyPrinter{indent: "  "}
	for i := 0; i < len(toks); i++ {
		i = p.write(toks, i)
	}
	p.newline()

	out := p.out.String()
	if len(blocks) > 0 {
		pairs := make([]string, 0, 2*len(blocks))
		for i, b := range blocks {
			pairs = append(pairs, phpMarker(i), b)
		}
		out = strings.NewReplacer(pairs...).Replace(out)
	}
	return []byte(out), nil
}

func phpMarker(i int) string {
	return fmt.Sprintf("__siteforge_php_%d__", i)
}

type prettyPrinter struct {
	out      strings.Builder
	indent   string
	depth    int
	lineOpen bool
	space    bool
	// verbatim counts open pre/textarea elements
	verbatim int
	// rawText is set inside script and style
	rawText bool
}

type token struct {
	tt   html.TokenType
	raw  string
	name string
}

// write emits toks[i] and returns the index of the last token consumed.
func (p *prettyPrinter) write(toks []token, i int) int {
	t := toks[i]
	tt, raw, name := t.tt, t.raw, t.name

	if p.verbatim > 0 {
		p.out.WriteString(raw)
		switch {
		case tt == html.StartTagToken && (name == "pre" || name == "textarea"):
			p.verbatim++
		case tt == html.EndTagToken && (name == "pre" || name == "textarea"):
			p.verbatim--
			if p.verbatim == 0 {
				p.lineOpen = true
				p.newline()
			}
		}
		return i
	}

	switch tt {
	case html.DoctypeToken, html.CommentToken:
		p.newline()
		p.open()
		p.out.WriteString(raw)
		p.newline()

	case html.TextToken:
		if p.rawText {
			if strings.TrimSpace(raw) != "" {
				p.out.WriteString(raw)
			}
			return i
		}
		p.text(raw)

	case html.SelfClosingTagToken:
		if inlineElements[name] {
			p.open()
			p.out.WriteString(raw)
			return i
		}
		p.newline()
		p.open()
		p.out.WriteString(raw)
		p.newline()

	case html.StartTagToken:
		switch {
		case name == "pre" || name == "textarea":
			p.newline()
			p.open()
			p.out.WriteString(raw)
			p.verbatim++
		case name == "script" || name == "style":
			p.newline()
			p.open()
			p.out.WriteString(raw)
			p.rawText = true
		case inlineElements[name]:
			p.open()
			p.out.WriteString(raw)
		case voidElements[name]:
			p.newline()
			p.open()
			p.out.WriteString(raw)
			p.newline()
		default:
			p.newline()
			p.open()
			p.out.WriteString(raw)
			if end, ok := inlineRun(toks, i); ok {
				for j := i + 1; j < end; j++ {
					if toks[j].tt == html.TextToken {
						text := toks[j].raw
						if j == i+1 {
							text = strings.TrimLeft(text, " \t\r\n\f")
						}
						p.text(text)
						continue
					}
					p.open()
					p.out.WriteString(toks[j].raw)
				}
				p.space = false
				p.out.WriteString(toks[end].raw)
				p.newline()
				return end
			}
			p.newline()
			p.depth++
		}

	case html.EndTagToken:
		switch {
		case name == "script" || name == "style":
			p.out.WriteString(raw)
			p.rawText = false
			p.newline()
		case inlineElements[name]:
			p.space = false
			p.out.WriteString(raw)
		default:
			p.newline()
			if p.depth > 0 {
				p.depth--
			}
			p.open()
			p.out.WriteString(raw)
			p.newline()
		}
	}
	return i
}

// inlineRun reports whether the block element opened at toks[i] holds only
// text and inline elements, and returns the index of its end tag.
func inlineRun(toks []token, i int) (int, bool) {
	name := toks[i].name
	for j := i + 1; j < len(toks); j++ {
		t := toks[j]
		switch t.tt {
		case html.TextToken:
		case html.StartTagToken, html.SelfClosingTagToken:
			if !inlineElements[t.name] {
				return 0, false
			}
		case html.EndTagToken:
			if t.name == name {
				return j, true
			}
			if !inlineElements[t.name] {
				return 0, false
			}
		default:
			return 0, false
		}
	}
	return 0, false
}

// text writes a text run with whitespace collapsed, keeping a single space
// where the source separated it from neighbouring inline content.
func (p *prettyPrinter) text(raw string) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		if p.lineOpen && raw != "" {
			p.space = true
		}
		return
	}
	if p.lineOpen && startsWithSpace(raw) {
		p.space = true
	}
	p.open()
	p.out.WriteString(strings.Join(fields, " "))
	p.space = endsWithSpace(raw)
}

// open starts a line at the current depth, or emits a pending separator
// when a line is already open.
func (p *prettyPrinter) open() {
	if p.lineOpen {
		if p.space {
			p.out.WriteByte(' ')
			p.space = false
		}
		return
	}
	p.out.WriteString(strings.Repeat(p.indent, p.depth))
	p.lineOpen = true
	p.space = false
}

func (p *prettyPrinter) newline() {
	if p.lineOpen {
		p.out.WriteByte('\n')
		p.lineOpen = false
	}
	p.space = false
}

func startsWithSpace(s string) bool {
	return s != "" && strings.TrimLeft(s, " \t\r\n\f") != s
}

func endsWithSpace(s string) bool {
	return s != "" && strings.TrimRight(s, " \t\r\n\f") != s
}
