// Package guard decides whether a SQL statement is admissible under the
// read-only policy. It is a lexical check, not a parser: text is first
// neutralised (comments, string literals and quoted identifiers are blanked
// out) and the remainder is matched against a read prefix and a list of
// prohibited keywords.
package guard

import (
	"fmt"
	"regexp"
	"strings"
)

// RejectionMessage is the error text recorded for statements the policy refuses.
const RejectionMessage = "Query rejected by read-only policy"

// Prohibited lists the keywords that make a statement inadmissible wherever
// they appear as a whole word outside comments and literals.
var Prohibited = []string{
	"insert", "update", "delete", "replace", "create", "alter", "drop",
	"truncate", "attach", "detach", "vacuum", "reindex", "analyze",
	"begin", "commit", "rollback", "savepoint", "release", "pragma",
}

var (
	readPrefix     = regexp.MustCompile(`^(?:explain\s+(?:query\s+plan\s+)?)?(?:select|with)\b`)
	prohibitedWord = regexp.MustCompile(`\b(` + strings.Join(Prohibited, "|") + `)\b`)
)

// PolicyError explains why a statement was rejected.
type PolicyError struct {
	// Keyword is the prohibited keyword found, empty when the statement
	// lacked a read prefix.
	Keyword string
}

func (e *PolicyError) Error() string {
	if e.Keyword != "" {
		return fmt.Sprintf("%s: prohibited keyword %q", RejectionMessage, e.Keyword)
	}
	return RejectionMessage + ": statement must start with SELECT, WITH or EXPLAIN"
}

// Check returns nil when sql is admissible and a *PolicyError otherwise.
func Check(sql string) error {
	return classify(normalize(Sanitize(sql)))
}

// Classify reports whether already sanitized text is admissible.
func Classify(sanitized string) bool {
	return classify(normalize(sanitized)) == nil
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimSpace(strings.Trim(s, ";"))
}

// classify names the first prohibited keyword when there is one, so a
// rejected write reports what it tried to do rather than the missing prefix.
func classify(cleaned string) error {
	if m := prohibitedWord.FindStringSubmatch(cleaned); m != nil {
		return &PolicyError{Keyword: m[1]}
	}
	if !readPrefix.MatchString(cleaned) {
		return &PolicyError{}
	}
	return nil
}

// HasMultipleStatements reports whether sql holds more than one statement,
// ignoring semicolons inside comments and literals and trailing semicolons.
func HasMultipleStatements(sql string) bool {
	s := strings.TrimSpace(Sanitize(sql))
	s = strings.TrimRight(s, "; \t\r\n")
	return strings.Contains(s, ";")
}
