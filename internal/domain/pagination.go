package domain

// Pagination describes where one index page sits in the full result set.
type Pagination struct {
	Page        int `json:"page"`
	PageSize    int `json:"page_size"`
	Total       int `json:"total"`
	TotalPages  int `json:"total_pages"`
	StartOffset int `json:"start_offset"`
}

// NormalizePage treats any page below 1 as page 1.
func NormalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// StartOffset returns the zero-based offset of the first document on a page.
func StartOffset(page, pageSize int) int {
	return (NormalizePage(page) - 1) * pageSize
}

// NewPagination computes pagination for a page of a result set of total documents.
func NewPagination(page, pageSize, total int) Pagination {
	page = NormalizePage(page)
	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	return Pagination{
		Page:        page,
		PageSize:    pageSize,
		Total:       total,
		TotalPages:  pages,
		StartOffset: StartOffset(page, pageSize),
	}
}

// HasNext reports whether a later page exists.
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages }

// HasPrev reports whether an earlier page exists.
func (p Pagination) HasPrev() bool { return p.Page > 1 }
