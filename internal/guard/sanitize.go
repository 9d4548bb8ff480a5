package guard

import "strings"

// Sanitize neutralises the parts of a statement that must not influence
// classification. Block and line comments become a single space, single
// quoted string literals become '' and quoted identifiers ("x", `x`, [x])
// become "". The input is scanned once, left to right, so a comment marker
// inside a literal or a quote inside a comment is consumed by whichever
// construct opened first.
//
// Unterminated comments, literals and identifiers run to the end of input.
func Sanitize(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))

	n := len(sql)
	for i := 0; i < n; {
		c := sql[i]
		switch {
		case c == '-' && i+1 < n && sql[i+1] == '-':
			i += 2
			for i < n && sql[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
		case c == '/' && i+1 < n && sql[i+1] == '*':
			i += 2
			for i < n && !(sql[i] == '*' && i+1 < n && sql[i+1] == '/') {
				i++
			}
			i = min(i+2, n)
			b.WriteByte(' ')
		case c == '\'':
			i = skipQuoted(sql, i+1, '\'')
			b.WriteString("''")
		case c == '"' || c == '`':
			i = skipQuoted(sql, i+1, c)
			b.WriteString(`""`)
		case c == '[':
			i++
			for i < n && sql[i] != ']' {
				i++
			}
			i = min(i+1, n)
			b.WriteString(`""`)
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// skipQuoted returns the index just past the closing quote starting the scan
// at i. A doubled quote is an escaped quote and does not close the run.
func skipQuoted(s string, i int, quote byte) int {
	for i < len(s) {
		if s[i] == quote {
			if i+1 < len(s) && s[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(s)
}
