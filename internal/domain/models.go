package domain

// ItemStatus represents the processing status of an item
type ItemStatus string

const (
	ItemStatusCreated   ItemStatus = "CREATED"
	ItemStatusProcessed ItemStatus = "PROCESSED"
)

// Item represents a persisted item record
type Item struct {
	ID          int64      `json:"id" reindex:"id,,pk"`
	Name        string     `json:"name" reindex:"name"`
	Description string     `json:"description,omitempty" reindex:"description"`
	Status      ItemStatus `json:"status" reindex:"status"`
	Email       string     `json:"email" reindex:"email"`
}

// Clone returns a copy of the item so callers never share store-owned memory
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// IsProcessed reports whether the item has already been processed
func (i *Item) IsProcessed() bool {
	return i.Status == ItemStatusProcessed
}
