package repository

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type PageRequest struct {
	Page     int
	PageSize int
}

// normalize clamps the request to [1, MaxPageSize]; zero values take the defaults.
func (p PageRequest) normalize() PageRequest {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	switch {
	case p.PageSize < 1:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	return p
}

func (p PageRequest) offset() int {
	return (p.Page - 1) * p.PageSize
}

type PageResult[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func newPageResult[T any](req PageRequest, total int64, items []T) PageResult[T] {
	if items == nil {
		items = []T{}
	}
	return PageResult[T]{
		Items:      items,
		Page:       req.Page,
		PageSize:   req.PageSize,
		Total:      total,
		TotalPages: pageCount(total, req.PageSize),
	}
}

func (p PageResult[T]) HasNext() bool {
	return p.Page < p.TotalPages
}

func pageCount(total int64, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	pages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		pages++
	}
	if maxInt := int64(^uint(0) >> 1); pages > maxInt {
		return int(maxInt)
	}
	return int(pages)
}
