// Package abandonment holds the cart-abandonment record and the reminder
// stage machine.
package abandonment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Stage marks which reminder was last sent for a record.
type Stage string

const (
	StageNone   Stage = "none"
	StageFirst  Stage = "first"
	StageSecond Stage = "second"
	StageFinal  Stage = "final"
)

// Stages lists every stage in progression order.
var Stages = []Stage{StageNone, StageFirst, StageSecond, StageFinal}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageNone, StageFirst, StageSecond, StageFinal:
		return true
	}
	return false
}

// Next returns the stage that follows s. The final stage has no successor.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageNone:
		return StageFirst, true
	case StageFirst:
		return StageSecond, true
	case StageSecond:
		return StageFinal, true
	}
	return "", false
}

// Terminal reports whether no further reminder follows s.
func (s Stage) Terminal() bool { return s == StageFinal }

// ParseStage converts a stored value into a Stage. Empty values read as none.
func ParseStage(raw string) (Stage, error) {
	s := Stage(strings.ToLower(strings.TrimSpace(raw)))
	if s == "" {
		return StageNone, nil
	}
	if !s.Valid() {
		return "", fmt.Errorf("unknown reminder stage %q", raw)
	}
	return s, nil
}

// SnapshotItem is one cart line captured at mutation time.
type SnapshotItem struct {
	ProductID string          `json:"productId"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	ImageRef  string          `json:"imageRef,omitempty"`
}

// Snapshot is the ordered cart content of a record.
type Snapshot []SnapshotItem

// Total returns the sum of price*quantity across all lines.
func (s Snapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// Quantity returns the number of units across all lines.
func (s Snapshot) Quantity() int {
	n := 0
	for _, item := range s {
		n += item.Quantity
	}
	return n
}

// Validate checks every line for a product reference, a positive quantity and
// a non-negative price.
func (s Snapshot) Validate() error {
	for i, item := range s {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("snapshot line %d: product id is required", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("snapshot line %d: quantity must be positive", i)
		}
		if item.Price.IsNegative() {
			return fmt.Errorf("snapshot line %d: price must not be negative", i)
		}
	}
	return nil
}

// EncodeSnapshot serializes a snapshot for storage. A nil snapshot encodes as
// an empty JSON array.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s == nil {
		s = Snapshot{}
	}
	return json.Marshal(s)
}

// DecodeSnapshot parses and validates stored snapshot data.
func DecodeSnapshot(raw []byte) (Snapshot, error) {
	if len(raw) == 0 {
		return Snapshot{}, nil
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode cart snapshot: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("decode cart snapshot: %w", err)
	}
	if s == nil {
		s = Snapshot{}
	}
	return s, nil
}

// Record is the per-user abandonment state.
type Record struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	CartData       []byte     `json:"-"`
	ItemCount      int        `json:"itemCount"`
	Stage          Stage      `json:"reminderStage"`
	ReminderSentAt *time.Time `json:"reminderSentAt,omitempty"`
	RemindersSent  int        `json:"remindersSent"`
	Purchased      bool       `json:"isPurchased"`
	PurchasedAt    *time.Time `json:"purchasedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastUpdatedAt  time.Time  `json:"lastUpdatedAt"`
}

// Snapshot decodes the stored cart data.
func (r Record) Snapshot() (Snapshot, error) {
	return DecodeSnapshot(r.CartData)
}

// Resolved reports whether the record is eligible for cleanup once old enough.
func (r Record) Resolved() bool {
	return r.Purchased || r.Stage == StageFinal
}

// ReferenceTime is the instant the next reminder threshold is measured from:
// lastUpdatedAt at stage none, reminderSentAt afterwards. It is false for a
// reminded record with no send time.
func (r Record) ReferenceTime() (time.Time, bool) {
	if r.Stage == StageNone {
		return r.LastUpdatedAt, true
	}
	if r.ReminderSentAt == nil {
		return time.Time{}, false
	}
	return *r.ReminderSentAt, true
}

// Cursor is a keyset position in the due ordering: reference time, then id.
type Cursor struct {
	RefTime time.Time
	ID      string
}

// Position returns the record's place in the due ordering.
func (r Record) Position() Cursor {
	ref, _ := r.ReferenceTime()
	return Cursor{RefTime: ref, ID: r.ID}
}

// Before reports whether c sorts strictly before o.
func (c Cursor) Before(o Cursor) bool {
	if c.RefTime.Equal(o.RefTime) {
		return c.ID < o.ID
	}
	return c.RefTime.Before(o.RefTime)
}

// Candidate is a record due for its next reminder joined with the owner's
// contact details.
type Candidate struct {
	Record
	Email string
	Name  string
}

// Stats summarizes the abandonment table for the admin console.
type Stats struct {
	ActiveByStage map[Stage]int `json:"activeByStage"`
	Active        int           `json:"active"`
	Purchased     int           `json:"purchased"`
	Recovered     int           `json:"recovered"`
}

// StoreError marks a transient persistence failure. The affected record is
// left as it was and picked up again on the next scan.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("abandonment store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsStoreError reports whether err carries a StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
