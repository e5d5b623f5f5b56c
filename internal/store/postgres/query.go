package postgres

import (
	"strconv"
	"strings"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// listQuery extends a SELECT that already ends in a WHERE clause with the
// time window, newest-first order and paging of a domain.ListOpts.
type listQuery struct {
	sql  strings.Builder
	args []any
}

func newListQuery(base string, args ...any) *listQuery {
	q := &listQuery{args: args}
	q.sql.WriteString(base)
	return q
}

// bind records v and returns its placeholder.
func (q *listQuery) bind(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

// build applies opts ordering on col, which must be a trusted column name.
func (q *listQuery) build(col string, opts domain.ListOpts) (string, []any) {
	if opts.Since != nil {
		q.sql.WriteString(" AND " + col + " >= " + q.bind(*opts.Since))
	}
	if opts.Until != nil {
		q.sql.WriteString(" AND " + col + " <= " + q.bind(*opts.Until))
	}
	q.sql.WriteString(" ORDER BY " + col + " DESC, id DESC")
	if opts.Limit > 0 {
		q.sql.WriteString(" LIMIT " + q.bind(opts.Limit))
	}
	if opts.Offset > 0 {
		q.sql.WriteString(" OFFSET " + q.bind(opts.Offset))
	}
	return q.sql.String(), q.args
}
