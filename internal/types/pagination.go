package types

// PageInfo carries limit/offset pagination parameters for list queries.
type PageInfo struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Normalize clamps the page parameters to safe bounds. Zero values get
// the defaults; PerPage is capped to keep list queries bounded.
func (p PageInfo) Normalize() PageInfo {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 50
	}
	if p.PerPage > 200 {
		p.PerPage = 200
	}
	return p
}

// Offset returns the SQL OFFSET for the normalized page.
func (p PageInfo) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PerPage
}

// Paginated wraps a list response with its paging metadata.
type Paginated[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}
