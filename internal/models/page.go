package models

import "math"

// Paging defaults shared by every paginated listing.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Page is one page of an ordered listing. TotalPages is never below 1, so
// "page x of y" displays are always well defined.
type Page[T any] struct {
	Items      []T  `json:"items"`
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NormalizePaging clamps a 1-based page number and page size into their
// valid ranges and returns them along with the row offset. The page is
// capped so the offset cannot overflow; such a page is simply
// past the end.
func NormalizePaging(page, perPage int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if maxPage := math.MaxInt/perPage + 1; page > maxPage {
		page = maxPage
	}
	return page, perPage, (page - 1) * perPage
}

// TotalPages returns ceil(total/perPage), with a floor of 1.
func TotalPages(total, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

// NewPage assembles a Page from a slice of items and the unpaginated total.
// page and perPage are expected to be normalized already.
func NewPage[T any](items []T, total, page, perPage int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := TotalPages(total, perPage)
	return Page[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: pages,
		HasNext:    page < pages,
		HasPrev:    page > 1,
	}
}
