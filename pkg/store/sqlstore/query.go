package sqlstore

import (
	"strings"
)

// predicate accumulates the conditions of a WHERE clause, with their
// arguments, for queries whose filters are optional.
type predicate struct {
	conds []string
	args  []interface{}
}

func (p *predicate) and(cond string, args ...interface{}) *predicate {
	p.conds = append(p.conds, cond)
	p.args = append(p.args, args...)
	return p
}

// where renders the clause, or nothing if there are no conditions.
func (p *predicate) where() string {
	if len(p.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.conds, " AND ")
}

// likePattern turns a substring into a LIKE pattern matching it,
// escaping the pattern characters it contains.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(s)) + "%"
}
