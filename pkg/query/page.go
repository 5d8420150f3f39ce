package query

// Pagination is the list-response metadata block.
type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

// NewPagination computes the metadata for a page of results.
// hasMore is true iff skip+limit < total.
func NewPagination(f Filter, total int) Pagination {
	return Pagination{
		Page:    f.Page,
		Limit:   f.Limit,
		Total:   total,
		HasMore: f.Skip()+f.Limit < total,
	}
}
