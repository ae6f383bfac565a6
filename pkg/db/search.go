package db

import (
	"strings"

	"gorm.io/gorm"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern builds a lower-cased LIKE pattern matching query anywhere,
// with LIKE wildcards in query escaped.
func ContainsPattern(query string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
}

// MatchAny filters db to rows where any of the column expressions contains
// query, case-insensitively. Blank queries leave db untouched. Column
// expressions are trusted SQL and must never come from user input.
func MatchAny(db *gorm.DB, query string, columns ...string) *gorm.DB {
	query = strings.TrimSpace(query)
	if query == "" || len(columns) == 0 {
		return db
	}
	pattern := ContainsPattern(query)
	clauses := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for _, col := range columns {
		clauses = append(clauses, "LOWER("+col+") LIKE ? ESCAPE '\\'")
		args = append(args, pattern)
	}
	return db.Where("("+strings.Join(clauses, " OR ")+")", args...)
}
