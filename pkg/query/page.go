package query

// Page is the shape of every paged result. Count is the exact total only when it
// was requested; otherwise it is the number of returned items.
type Page[M any] struct {
	Items []M `json:"items"`
	Count int `json:"count"`
}

// NewPage builds a page whose count is the item count.
func NewPage[M any](items []M) *Page[M] {
	if items == nil {
		items = []M{}
	}
	return &Page[M]{Items: items, Count: len(items)}
}
