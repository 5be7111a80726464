package wishlist

import "time"

// Entry is a product saved by a user for later.
type Entry struct {
	UserID    string    `json:"-" db:"user_id"`
	ProductID string    `json:"productId" db:"product_id"`
	AddedAt   time.Time `json:"addedAt" db:"added_at"`
}
