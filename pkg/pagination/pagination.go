package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPerPage = 100
	MaxPerPage     = 1000
)

// Params selects one page of a listing. Pages are 1-based.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// New clamps page and perPage to valid values.
func New(page, perPage int) Params {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Params{Page: page, PerPage: perPage}
}

// FromRequest reads the page and per_page query parameters.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return New(page, perPage)
}

// Offset is the number of rows before this page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Next returns the following page.
func (p Params) Next() Params {
	return Params{Page: p.Page + 1, PerPage: p.PerPage}
}

// Page is one page of results together with the total row count.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"total_count"`
	Params
}

// NewPage wraps items. A nil slice becomes empty so it encodes as [].
func NewPage[T any](items []T, total int, p Params) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, TotalCount: total, Params: p}
}

// TotalPages is the number of pages needed for TotalCount rows.
func (p Page[T]) TotalPages() int {
	if p.PerPage <= 0 {
		return 0
	}
	return (p.TotalCount + p.PerPage - 1) / p.PerPage
}

// HasNext reports whether another page follows.
func (p Page[T]) HasNext() bool {
	return p.Page < p.TotalPages()
}
