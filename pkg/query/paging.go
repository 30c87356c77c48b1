package query

import "fmt"

// Paging selects a window of a result. The nil and zero values are unpaged.
type Paging struct {
	Offset int
	Size   int
}

// NewPaging validates offset and size.
func NewPaging(offset, size int) (*Paging, error) {
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must be >= 0, got %d", ErrInvalidPaging, offset)
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: size must be >= 0, got %d", ErrInvalidPaging, size)
	}
	return &Paging{Offset: offset, Size: size}, nil
}

func (p *Paging) IsEmpty() bool {
	return p == nil || (p.Offset == 0 && p.Size == 0)
}

// Limit returns the size, or 0 when unlimited.
func (p *Paging) Limit() int {
	if p == nil {
		return 0
	}
	return p.Size
}

// Skip returns the offset.
func (p *Paging) Skip() int {
	if p == nil {
		return 0
	}
	return p.Offset
}

// ApplyPaging slices items in memory. A size of 0 takes everything after the offset.
func ApplyPaging[T any](p *Paging, items []T) []T {
	if p.IsEmpty() {
		return items
	}
	if p.Offset >= len(items) {
		return []T{}
	}
	items = items[p.Offset:]
	if p.Size > 0 && p.Size < len(items) {
		items = items[:p.Size]
	}
	return items
}
