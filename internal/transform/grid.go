package transform

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// gridPrefixer re-prints a stylesheet and adds the -ms- grid declarations
// Internet Explorer 10 and 11 understand next to their standard
// counterparts. Only explicit placements are translated; auto placement and
// named areas have no IE equivalent and are left alone.
type gridPrefixer struct {
	out    bytes.Buffer
	depth  int
	indent string
}

func prefixGrid(src []byte) ([]byte, error) {
	g := &gridPrefixer{indent: "  "}
	p := css.NewParser(parse.NewInputBytes(src), false)

	for {
		gt, _, data := p.Next()
		switch gt {
		case css.ErrorGrammar:
			err := p.Err()
			if _, ok := err.(*parse.Error); ok {
				// recoverable: keep the offending text as is
				g.line(strings.TrimSpace(string(data) + joinValues(p.Values(), false)))
				continue
			}
			if err != nil && err != io.EOF {
				return nil, err
			}
			return g.out.Bytes(), nil
		case css.CommentGrammar:
			g.line(string(data))
		case css.AtRuleGrammar:
			g.line(string(data) + joinValues(p.Values(), true) + ";")
		case css.BeginAtRuleGrammar:
			g.line(string(data) + joinValues(p.Values(), true) + " {")
			g.depth++
		case css.QualifiedRuleGrammar:
			g.line(joinValues(p.Values(), false) + ",")
		case css.BeginRulesetGrammar:
			g.line(joinValues(p.Values(), false) + " {")
			g.depth++
		case css.EndRulesetGrammar, css.EndAtRuleGrammar:
			if g.depth > 0 {
				g.depth--
			}
			g.line("}")
		case css.DeclarationGrammar:
			prop := strings.ToLower(string(data))
			value := joinValues(p.Values(), false)
			for _, decl := range msGrid(prop, value) {
				g.line(decl)
			}
			g.line(string(data) + ": " + value + ";")
		case css.CustomPropertyGrammar:
			g.line(string(data) + ":" + joinValues(p.Values(), false) + ";")
		default:
			if s := strings.TrimSpace(string(data)); s != "" {
				g.line(s)
			}
		}
	}
}

func (g *gridPrefixer) line(s string) {
	g.out.WriteString(strings.Repeat(g.indent, g.depth))
	g.out.WriteString(s)
	g.out.WriteByte('\n')
}

// joinValues concatenates tokens, collapsing whitespace runs. lead prefixes
// the result with a space when it is not empty, for at-rule preludes.
func joinValues(tokens []css.Token, lead bool) string {
	var b strings.Builder
	for _, t := range tokens {
		if t.TokenType == css.WhitespaceToken {
			b.WriteByte(' ')
			continue
		}
		b.Write(t.Data)
	}
	s := strings.TrimSpace(b.String())
	if lead && s != "" {
		return " " + s
	}
	return s
}

// msGrid returns the IE declarations for one standard grid declaration.
func msGrid(prop, value string) []string {
	v := strings.TrimSpace(value)
	switch prop {
	case "display":
		switch strings.ToLower(v) {
		case "grid":
			return []string{"display: -ms-grid;"}
		case "inline-grid":
			return []string{"display: -ms-inline-grid;"}
		}
	case "grid-template-columns":
		if t, ok := msTrackList(v); ok {
			return []string{"-ms-grid-columns: " + t + ";"}
		}
	case "grid-template-rows":
		if t, ok := msTrackList(v); ok {
			return []string{"-ms-grid-rows: " + t + ";"}
		}
	case "grid-column", "grid-row":
		axis := strings.TrimPrefix(prop, "grid-")
		return msPlacement(axis, v)
	case "grid-column-start":
		if isInt(v) {
			return []string{"-ms-grid-column: " + v + ";"}
		}
	case "grid-row-start":
		if isInt(v) {
			return []string{"-ms-grid-row: " + v + ";"}
		}
	case "justify-self":
		return []string{"-ms-grid-column-align: " + v + ";"}
	case "align-self":
		return []string{"-ms-grid-row-align: " + v + ";"}
	}
	return nil
}

// msTrackList rewrites repeat(n, tracks) into the IE (tracks)[n] syntax.
// Track lists using auto-fill, auto-fit or line names are not translatable.
func msTrackList(v string) (string, bool) {
	lower := strings.ToLower(v)
	if strings.Contains(lower, "auto-fill") || strings.Contains(lower, "auto-fit") || strings.Contains(v, "[") {
		return "", false
	}

	var out strings.Builder
	rest := v
	for {
		i := strings.Index(strings.ToLower(rest), "repeat(")
		if i < 0 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:i])
		inner, after, ok := cutParen(rest[i+len("repeat("):])
		if !ok {
			return "", false
		}
		count, tracks, ok := strings.Cut(inner, ",")
		count = strings.TrimSpace(count)
		if !ok || !isInt(count) {
			return "", false
		}
		fmt.Fprintf(&out, "(%s)[%s]", strings.TrimSpace(tracks), count)
		rest = after
	}
	return out.String(), true
}

// cutParen splits s at the parenthesis closing an already opened one.
func cutParen(s string) (inner, after string, ok bool) {
	depth := 1
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[:i], s[i+1:], true
			}
		}
	}
	return "", "", false
}

// msPlacement translates "start / end" and "start / span n" shorthands.
func msPlacement(axis, v string) []string {
	startStr, endStr, hasEnd := strings.Cut(v, "/")
	startStr = strings.TrimSpace(startStr)
	if !isInt(startStr) {
		return nil
	}
	decls := []string{fmt.Sprintf("-ms-grid-%s: %s;", axis, startStr)}
	if !hasEnd {
		return decls
	}

	endStr = strings.TrimSpace(endStr)
	span := 0
	if n, ok := strings.CutPrefix(endStr, "span"); ok {
		span, _ = strconv.Atoi(strings.TrimSpace(n))
	} else if isInt(endStr) {
		start, _ := strconv.Atoi(startStr)
		end, _ := strconv.Atoi(endStr)
		span = end - start
	}
	if span > 1 {
		decls = append(decls, fmt.Sprintf("-ms-grid-%s-span: %d;", axis, span))
	}
	return decls
}

func isInt(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
