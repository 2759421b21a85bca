package sqlxrepos

import (
	"strings"

	"github.com/lib/pq"

	"github.com/lifecraft/backend/core"
)

// Postgres error code for unique constraint violations.
const uniqueViolation pq.ErrorCode = "23505"

// orderByClause renders a safe ORDER BY from the requested ordering, keeping
// only whitelisted fields. Falls back to fallback when nothing survives.
func orderByClause(ordering []core.DBOrdering, fields map[string]string, fallback string) string {
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := fields[ord.Field]
		if !ok {
			continue
		}
		if ord.Ascending {
			clauses = append(clauses, col)
		} else {
			clauses = append(clauses, col+" DESC")
		}
	}
	if len(clauses) == 0 {
		if fallback == "" {
			return ""
		}
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}
