package errors

import (
	"regexp"
	"strconv"
	"strings"
)

// positionPattern extracts a source position from a compiler message.
type positionPattern struct {
	regex *regexp.Regexp
	// line and column are submatch indexes; column 0 means none.
	line, column int
}

// positionPatterns are tried in order. They cover text/template errors
// raised while executing rendered views ("template: index.pug:4:12: ..."),
// the file:line:col prefix most compilers print, and the prose forms
// ("on line 3", "line: 3, column: 7").
var positionPatterns = []positionPattern{
	{regex: regexp.MustCompile(`template: [^:]+:(\d+):(\d+):`), line: 1, column: 2},
	{regex: regexp.MustCompile(`template: [^:]+:(\d+):`), line: 1},
	{regex: regexp.MustCompile(`^\S+?:(\d+):(\d+):`), line: 1, column: 2},
	{regex: regexp.MustCompile(`(?i)\bline:? (\d+),? col(?:umn)?:? (\d+)`), line: 1, column: 2},
	{regex: regexp.MustCompile(`(?i)\b(?:on )?line:? (\d+)`), line: 1},
}

// Locate finds the line and column a compiler message points at. Column is
// 0 when the message only names a line.
func Locate(message string) (line, column int, ok bool) {
	message = strings.TrimSpace(message)
	for _, p := range positionPatterns {
		m := p.regex.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		line, _ = strconv.Atoi(m[p.line])
		if p.column > 0 {
			column, _ = strconv.Atoi(m[p.column])
		}
		if line > 0 {
			return line, column, true
		}
	}
	return 0, 0, false
}
