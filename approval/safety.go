package approval

import (
	"strings"
	"unicode"

	"github.com/datakita/querybridge/errs"
)

// destructiveKeywords are statement tokens that can mutate schema or data.
// The scan is token based, so column names like "updated_at" do not trip it.
var destructiveKeywords = map[string]struct{}{
	"insert":   {},
	"update":   {},
	"delete":   {},
	"drop":     {},
	"truncate": {},
	"alter":    {},
	"create":   {},
	"grant":    {},
	"revoke":   {},
	"exec":     {},
	"execute":  {},
	"merge":    {},
	"copy":     {},
}

// CheckReadOnly rejects statements that are not plainly read-only. Generated
// SQL never reaches a ticket unless it passes.
func CheckReadOnly(sql string) error {
	tokens := tokenize(sql)
	if len(tokens) == 0 {
		return errs.New(errs.KindSQLSafetyRejected, "statement is empty")
	}
	if first := tokens[0]; first != "select" && first != "with" {
		return errs.New(errs.KindSQLSafetyRejected, "statement must start with SELECT or WITH, got %q", first)
	}
	for _, tok := range tokens {
		if _, bad := destructiveKeywords[tok]; bad {
			return errs.New(errs.KindSQLSafetyRejected, "statement contains destructive keyword %q", tok)
		}
	}
	return nil
}

// tokenize lowercases and splits on non-identifier runes, skipping string
// literals so quoted data cannot trigger or mask a keyword.
func tokenize(sql string) []string {
	var tokens []string
	var current strings.Builder
	inString := false

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range strings.ToLower(sql) {
		if r == '\'' {
			inString = !inString
			flush()
			continue
		}
		if inString {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
