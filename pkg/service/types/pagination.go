package types

type Pagination struct {
	Page     uint32 `json:"page"`
	PageSize uint32 `json:"page_size"`
}

const DefaultPageSize = 50
const MaxPageSize = 500
const DefaultPage = 0

func NewDefaultPagination() *Pagination {
	return &Pagination{
		Page:     DefaultPage,
		PageSize: DefaultPageSize,
	}
}

func (p *Pagination) Load(pageNumber uint32, pageSize uint32) {
	p.Page = pageNumber
	if pageSize > 0 {
		p.PageSize = pageSize
	}
}

// Limit is the page size clamped to MaxPageSize.
func (p *Pagination) Limit() int {
	if p == nil || p.PageSize == 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return int(p.PageSize)
}

func (p *Pagination) Offset() int {
	if p == nil {
		return 0
	}
	return int(p.Page) * p.Limit()
}
