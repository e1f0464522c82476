package models

// Page is one page of a filtered list
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Empty returns true when the filtered set has no items at all
func (p Page[T]) Empty() bool {
	return p.Total == 0
}

// TotalPages returns ceil(total/size), zero for an empty set
func TotalPages(total, size int) int {
	if size < 1 || total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// NewPage wraps an already sliced result with its paging metadata
func NewPage[T any](items []T, page, size, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:      items,
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: TotalPages(total, size),
	}
}

// Paginate slices items into the requested page. Pages below 1 clamp to 1
// and pages past the end are empty.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size < 1 {
		size = MessagePageSize
	}
	if page < 1 {
		page = 1
	}

	start := (page - 1) * size
	if start > len(items) {
		start = len(items)
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}

	return NewPage(items[start:end], page, size, len(items))
}
