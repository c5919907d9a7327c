package database

// Page is the pagination envelope returned by every paginated listing.
type Page struct {
	TotalDocs   int64 `json:"totalDocs"`
	TotalPages  int64 `json:"totalPages"`
	HasPrevPage bool  `json:"hasPrevPage"`
	HasNextPage bool  `json:"hasNextPage"`
	Page        int64 `json:"page"`
	Limit       int64 `json:"limit"`
}

// NewPage computes the envelope for a 1-based page of the given size over
// total documents.
func NewPage(page, limit, total int64) Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	totalPages := total / limit
	if total%limit != 0 || totalPages == 0 {
		totalPages++
	}
	return Page{
		TotalDocs:   total,
		TotalPages:  totalPages,
		HasPrevPage: page > 1,
		HasNextPage: page < totalPages,
		Page:        page,
		Limit:       limit,
	}
}

// Skip returns the number of documents to skip for a 1-based page.
func (p Page) Skip() int64 {
	return p.Limit * (p.Page - 1)
}
