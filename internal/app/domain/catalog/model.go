package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products for browsing.
type Category struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Product is a sellable catalog entry.
type Product struct {
	ID          string          `json:"id" db:"id"`
	CategoryID  string          `json:"categoryId,omitempty" db:"category_id"`
	Title       string          `json:"title" db:"title"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Stock       int             `json:"stock" db:"stock"`
	ImageRef    string          `json:"imageRef,omitempty" db:"image_ref"`
	Active      bool            `json:"active" db:"active"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

// Filter narrows product listings. Zero values mean "any".
type Filter struct {
	CategoryID   string
	Search       string
	IncludeDraft bool
	Limit        int
	Offset       int
}
