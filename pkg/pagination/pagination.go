// Package pagination holds the page type shared by list queries and a small
// builder for their WHERE clauses.
package pagination

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Request is a 1-based page request.
type Request struct {
	Page     int
	PageSize int
}

// Normalize clamps the request: page < 1 becomes 1, size < 1 becomes
// DefaultPageSize and size > MaxPageSize becomes MaxPageSize.
func (r Request) Normalize() Request {
	if r.Page < 1 {
		r.Page = 1
	}
	switch {
	case r.PageSize < 1:
		r.PageSize = DefaultPageSize
	case r.PageSize > MaxPageSize:
		r.PageSize = MaxPageSize
	}
	return r
}

// Offset is the number of rows skipped before this page.
func (r Request) Offset() int {
	return (r.Page - 1) * r.PageSize
}

// Page is one page of a filtered result.
type Page[T any] struct {
	Items      []T
	Page       int
	PageSize   int
	TotalCount int
}

// New builds a page for a normalized request.
func New[T any](items []T, req Request, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Page: req.Page, PageSize: req.PageSize, TotalCount: total}
}

// TotalPages is ceil(TotalCount / PageSize).
func (p Page[T]) TotalPages() int {
	if p.PageSize <= 0 || p.TotalCount <= 0 {
		return 0
	}
	return (p.TotalCount + p.PageSize - 1) / p.PageSize
}

func (p Page[T]) HasNext() bool { return p.Page < p.TotalPages() }
func (p Page[T]) HasPrev() bool { return p.Page > 1 }

// MarshalJSON includes the derived fields.
func (p Page[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Items      []T  `json:"items"`
		Page       int  `json:"page"`
		PageSize   int  `json:"page_size"`
		TotalCount int  `json:"total_count"`
		TotalPages int  `json:"total_pages"`
		HasNext    bool `json:"has_next"`
		HasPrev    bool `json:"has_prev"`
	}{p.Items, p.Page, p.PageSize, p.TotalCount, p.TotalPages(), p.HasNext(), p.HasPrev()})
}

// Where accumulates AND-ed SQL conditions with positional arguments.
type Where struct {
	clauses []string
	args    []any
}

// Arg appends v and returns its placeholder.
func (w *Where) Arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

// Add appends a condition; each %s in format receives the placeholder of the matching arg.
func (w *Where) Add(format string, args ...any) {
	ph := make([]any, len(args))
	for i, a := range args {
		ph[i] = w.Arg(a)
	}
	w.clauses = append(w.clauses, fmt.Sprintf(format, ph...))
}

// Search adds a case-insensitive substring match of term over any of columns.
// Blank terms add nothing.
func (w *Where) Search(term string, columns ...string) {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return
	}
	p := w.Arg("%" + EscapeLike(strings.ToLower(term)) + "%")
	ors := make([]string, len(columns))
	for i, c := range columns {
		ors[i] = fmt.Sprintf("LOWER(COALESCE(%s, '')) LIKE %s", c, p)
	}
	w.clauses = append(w.clauses, "("+strings.Join(ors, " OR ")+")")
}

// SQL renders " WHERE ..." or "" when empty.
func (w *Where) SQL() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// Args returns the accumulated arguments.
func (w *Where) Args() []any {
	return w.args
}

// Limit appends LIMIT/OFFSET placeholders for req and returns the clause with
// the full argument list.
func (w *Where) Limit(req Request) (string, []any) {
	args := append(append([]any(nil), w.args...), req.PageSize, req.Offset())
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

// EscapeLike escapes LIKE wildcards so user input matches literally.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
