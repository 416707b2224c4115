package query

import (
	"strings"
)

// Pagination defaults and bounds applied by Normalize.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// SortOrder is ASC or DESC; the default sorts newest first.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// Pagination parameterizes list queries.
type Pagination struct {
	Offset    int64
	Limit     int64
	SortOrder SortOrder
	SortBy    Column
}

// Normalize clamps out-of-range values instead of failing: negative offset
// to 0, non-positive limit to the default, oversized limit to the maximum.
func (p Pagination) Normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.SortOrder != SortAsc {
		p.SortOrder = SortDesc
	}
	return p
}

// ListDetails reports result bookkeeping for a list response. TotalCount is
// computed by a count query sharing the filter predicate.
type ListDetails struct {
	TotalCount int64 `json:"totalCount"`
	Offset     int64 `json:"offset"`
	Limit      int64 `json:"limit"`
}

// TextMethod selects how a text filter compares.
type TextMethod int

const (
	// TextEquals matches exactly.
	TextEquals TextMethod = iota
	// TextContainsIgnoreCase matches a case-insensitive substring.
	TextContainsIgnoreCase
)

// TextFilter compares a column against a value.
type TextFilter struct {
	Column Column
	Value  string
	Method TextMethod
}

// BoolFilter is strict equality on a boolean column.
type BoolFilter struct {
	Column Column
	Value  bool
}

// whereBuilder accumulates AND-composed conditions with positional args.
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) equals(column Column, value any) {
	w.conds = append(w.conds, column.Identifier()+" = ?")
	w.args = append(w.args, value)
}

func (w *whereBuilder) text(filter TextFilter) {
	switch filter.Method {
	case TextContainsIgnoreCase:
		w.conds = append(w.conds, "LOWER("+filter.Column.Identifier()+") LIKE ?")
		w.args = append(w.args, "%"+strings.ToLower(filter.Value)+"%")
	default:
		w.equals(filter.Column, filter.Value)
	}
}

func (w *whereBuilder) boolean(filter BoolFilter) {
	value := 0
	if filter.Value {
		value = 1
	}
	w.equals(filter.Column, value)
}

func (w *whereBuilder) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
