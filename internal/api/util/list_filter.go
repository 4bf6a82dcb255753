package util

const (
	DefaultPerPage = 25
	MaxPerPage     = 100
)

// ListFilter carries the filtering, ordering and paging of a list request.
type ListFilter struct {
	Filters []QueryFilter
	Order   []OrderClause
	Page    int
	PerPage int
}

// NewListFilter clamps page to at least 1 and perPage to 1..MaxPerPage,
// using DefaultPerPage when perPage is not positive.
func NewListFilter(page, perPage int) ListFilter {
	if page < 1 {
		page = 1
	}
	switch {
	case perPage <= 0:
		perPage = DefaultPerPage
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	}
	return ListFilter{Page: page, PerPage: perPage}
}

// TotalPages is the number of pages needed for total items.
func (f ListFilter) TotalPages(total int) int {
	if f.PerPage <= 0 {
		return 0
	}
	return (total + f.PerPage - 1) / f.PerPage
}
