package shared

import (
	"math"
	"net/http"
	"strconv"
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 50
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// PageRequest is the limit/offset window parsed from a query string.
type PageRequest struct {
	Page    int
	PerPage int
}

// Limit returns the SQL LIMIT.
func (p PageRequest) Limit() int { return p.PerPage }

// Offset returns the SQL OFFSET.
func (p PageRequest) Offset() int { return (p.Page - 1) * p.PerPage }

// PageFromRequest reads ?page= and ?perPage=, clamping perPage to 200.
func PageFromRequest(r *http.Request) PageRequest {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}
	if perPage > 200 {
		perPage = 200
	}
	return PageRequest{Page: page, PerPage: perPage}
}

// Normalized applies the PageFromRequest defaults to a hand-built request.
func (p PageRequest) Normalized() PageRequest {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PerPage <= 0 {
		p.PerPage = 50
	}
	return p
}

// ListResponse is the envelope of every paginated listing.
type ListResponse[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// NewListResponse wraps items; a nil slice is rendered as [].
func NewListResponse[T any](items []T, page PageRequest, total int) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	page = page.Normalized()
	return ListResponse[T]{Data: items, Pagination: NewPagination(page.Page, page.PerPage, total)}
}
