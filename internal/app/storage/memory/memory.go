// Package memory is an in-memory implementation of the storage interfaces.
// It is safe for concurrent use and intended for tests and local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	"github.com/R3E-Network/storefront/internal/app/domain/abandonment"
	"github.com/R3E-Network/storefront/internal/app/domain/cart"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/domain/coupon"
	"github.com/R3E-Network/storefront/internal/app/domain/order"
	"github.com/R3E-Network/storefront/internal/app/domain/user"
	"github.com/R3E-Network/storefront/internal/app/domain/wishlist"
	"github.com/R3E-Network/storefront/internal/app/storage"
)

// Store holds every table in maps guarded by one lock.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data state
}

type state struct {
	users        map[string]user.User
	categories   map[string]catalog.Category
	products     map[string]catalog.Product
	carts        map[string]map[string]cart.Item
	wishlists    map[string]map[string]wishlist.Entry
	coupons      map[string]coupon.Coupon
	couponUsages []coupon.Usage
	orders       map[string]order.Order
	abandonment  map[string]abandonment.Record
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.CatalogStore = (*Store)(nil)
var _ storage.CartStore = (*Store)(nil)
var _ storage.WishlistStore = (*Store)(nil)
var _ storage.CouponStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)
var _ storage.AbandonmentStore = (*Store)(nil)
var _ storage.TxRunner = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{data: newState()}
}

func newState() state {
	return state{
		users:       make(map[string]user.User),
		categories:  make(map[string]catalog.Category),
		products:    make(map[string]catalog.Product),
		carts:       make(map[string]map[string]cart.Item),
		wishlists:   make(map[string]map[string]wishlist.Entry),
		coupons:     make(map[string]coupon.Coupon),
		orders:      make(map[string]order.Order),
		abandonment: make(map[string]abandonment.Record),
	}
}

// Stores returns s for every store role.
func (s *Store) Stores() storage.Stores {
	return storage.Stores{
		Users:       s,
		Catalog:     s,
		Carts:       s,
		Wishlists:   s,
		Coupons:     s,
		Orders:      s,
		Abandonment: s,
	}
}

// WithinTx runs fn against the store and restores the previous state if fn
// fails. Transactions are serialized with each other; a write made outside a
// transaction while one is rolling back may be lost.
func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Stores) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	saved := s.data.clone()
	s.mu.RUnlock()

	if err := fn(s.Stores()); err != nil {
		s.mu.Lock()
		s.data = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

func (st state) clone() state {
	out := newState()
	for k, v := range st.users {
		out.users[k] = v
	}
	for k, v := range st.categories {
		out.categories[k] = v
	}
	for k, v := range st.products {
		out.products[k] = v
	}
	for k, items := range st.carts {
		m := make(map[string]cart.Item, len(items))
		for pid, item := range items {
			m[pid] = item
		}
		out.carts[k] = m
	}
	for k, entries := range st.wishlists {
		m := make(map[string]wishlist.Entry, len(entries))
		for pid, e := range entries {
			m[pid] = e
		}
		out.wishlists[k] = m
	}
	for k, v := range st.coupons {
		out.coupons[k] = v
	}
	out.couponUsages = append([]coupon.Usage(nil), st.couponUsages...)
	for k, v := range st.orders {
		v.Items = append([]order.Item(nil), v.Items...)
		out.orders[k] = v
	}
	for k, v := range st.abandonment {
		out.abandonment[k] = v
	}
	return out
}

// UserStore -------------------------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range s.data.users {
		if existing.Email == u.Email {
			return user.User{}, service.NewConflictError("email %q already registered", u.Email)
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.data.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.data.users[u.ID]
	if !ok {
		return user.User{}, service.NewNotFoundError("user", u.ID)
	}
	u.Email = existing.Email
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.data.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.data.users[id]
	if !ok {
		return user.User{}, service.NewNotFoundError("user", id)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.data.users {
		if u.Email == email {
			return u, nil
		}
	}
	return user.User{}, service.NewNotFoundError("user", email)
}

func (s *Store) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]user.User, 0, len(s.data.users))
	for _, u := range s.data.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CatalogStore ----------------------------------------------------------------

func (s *Store) CreateCategory(_ context.Context, c catalog.Category) (catalog.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.categories {
		if existing.Slug == c.Slug {
			return catalog.Category{}, service.NewConflictError("category %q already exists", c.Slug)
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	s.data.categories[c.ID] = c
	return c, nil
}

func (s *Store) ListCategories(_ context.Context) ([]catalog.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Category, 0, len(s.data.categories))
	for _, c := range s.data.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.data.products[p.ID] = p
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.data.products[p.ID]
	if !ok {
		return catalog.Product{}, service.NewNotFoundError("product", p.ID)
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.data.products[p.ID] = p
	return p, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data.products[id]
	if !ok {
		return catalog.Product{}, service.NewNotFoundError("product", id)
	}
	return p, nil
}

func (s *Store) ListProducts(_ context.Context, filter catalog.Filter) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]catalog.Product, 0, len(s.data.products))
	for _, p := range s.data.products {
		if !filter.IncludeDraft && !p.Active {
			continue
		}
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Title), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, filter.Offset, filter.Limit), nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.products[id]; !ok {
		return service.NewNotFoundError("product", id)
	}
	delete(s.data.products, id)
	for _, items := range s.data.carts {
		delete(items, id)
	}
	for _, entries := range s.data.wishlists {
		delete(entries, id)
	}
	return nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.data.products[productID]
	if !ok {
		return service.NewNotFoundError("product", productID)
	}
	if p.Stock+delta < 0 {
		return service.NewConflictError("insufficient stock for %q", p.Title)
	}
	p.Stock += delta
	p.UpdatedAt = time.Now().UTC()
	s.data.products[productID] = p
	return nil
}

// CartStore -------------------------------------------------------------------

func (s *Store) ListCartItems(_ context.Context, userID string) ([]cart.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.data.carts[userID]
	out := make([]cart.Item, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out, nil
}

func (s *Store) SetCartItem(_ context.Context, item cart.Item) (cart.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, ok := s.data.carts[item.UserID]
	if !ok {
		items = make(map[string]cart.Item)
		s.data.carts[item.UserID] = items
	}
	if existing, ok := items[item.ProductID]; ok {
		item.AddedAt = existing.AddedAt
	} else if item.AddedAt.IsZero() {
		item.AddedAt = time.Now().UTC()
	}
	items[item.ProductID] = item
	return item, nil
}

func (s *Store) RemoveCartItem(_ context.Context, userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.data.carts[userID]
	if _, ok := items[productID]; !ok {
		return service.NewNotFoundError("cart item", productID)
	}
	delete(items, productID)
	return nil
}

func (s *Store) ClearCart(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data.carts, userID)
	return nil
}

// WishlistStore ---------------------------------------------------------------

func (s *Store) AddWishlistEntry(_ context.Context, entry wishlist.Entry) (wishlist.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.data.wishlists[entry.UserID]
	if !ok {
		entries = make(map[string]wishlist.Entry)
		s.data.wishlists[entry.UserID] = entries
	}
	if existing, ok := entries[entry.ProductID]; ok {
		return existing, nil
	}
	if entry.AddedAt.IsZero() {
		entry.AddedAt = time.Now().UTC()
	}
	entries[entry.ProductID] = entry
	return entry, nil
}

func (s *Store) RemoveWishlistEntry(_ context.Context, userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.data.wishlists[userID]
	if _, ok := entries[productID]; !ok {
		return service.NewNotFoundError("wishlist entry", productID)
	}
	delete(entries, productID)
	return nil
}

func (s *Store) ListWishlist(_ context.Context, userID string) ([]wishlist.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.data.wishlists[userID]
	out := make([]wishlist.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.After(out[j].AddedAt) })
	return out, nil
}

// CouponStore -----------------------------------------------------------------

func (s *Store) CreateCoupon(_ context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if _, exists := s.data.coupons[c.Code]; exists {
		return coupon.Coupon{}, service.NewConflictError("coupon %q already exists", c.Code)
	}
	c.CreatedAt = time.Now().UTC()
	s.data.coupons[c.Code] = c
	return c, nil
}

func (s *Store) GetCoupon(_ context.Context, code string) (coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	code = strings.ToUpper(strings.TrimSpace(code))
	c, ok := s.data.coupons[code]
	if !ok {
		return coupon.Coupon{}, service.NewNotFoundError("coupon", code)
	}
	return c, nil
}

func (s *Store) ListCoupons(_ context.Context) ([]coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]coupon.Coupon, 0, len(s.data.coupons))
	for _, c := range s.data.coupons {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) RecordCouponUsage(_ context.Context, usage coupon.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := strings.ToUpper(strings.TrimSpace(usage.Code))
	c, ok := s.data.coupons[code]
	if !ok {
		return service.NewNotFoundError("coupon", code)
	}
	if c.MaxUses > 0 && c.Used >= c.MaxUses {
		return service.NewConflictError("coupon %q usage limit reached", code)
	}
	c.Used++
	s.data.coupons[code] = c
	usage.Code = code
	if usage.UsedAt.IsZero() {
		usage.UsedAt = time.Now().UTC()
	}
	s.data.couponUsages = append(s.data.couponUsages, usage)
	return nil
}

// OrderStore ------------------------------------------------------------------

func (s *Store) CreateOrder(_ context.Context, o order.Order) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	items := make([]order.Item, len(o.Items))
	for i, item := range o.Items {
		item.OrderID = o.ID
		items[i] = item
	}
	o.Items = items
	s.data.orders[o.ID] = o
	return o, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.data.orders[id]
	if !ok {
		return order.Order{}, service.NewNotFoundError("order", id)
	}
	return o, nil
}

func (s *Store) ListOrders(_ context.Context, userID string) ([]order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]order.Order, 0)
	for _, o := range s.data.orders {
		if userID != "" && o.UserID != userID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, status order.Status) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.data.orders[id]
	if !ok {
		return order.Order{}, service.NewNotFoundError("order", id)
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	s.data.orders[id] = o
	return o, nil
}

// AbandonmentStore ------------------------------------------------------------

func (s *Store) activeRecordLocked(userID string) (abandonment.Record, bool) {
	for _, rec := range s.data.abandonment {
		if rec.UserID == userID && !rec.Purchased {
			return rec, true
		}
	}
	return abandonment.Record{}, false
}

func (s *Store) UpsertActive(_ context.Context, userID string, snapshot abandonment.Snapshot, now time.Time) (abandonment.Record, error) {
	raw, err := abandonment.EncodeSnapshot(snapshot)
	if err != nil {
		return abandonment.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.activeRecordLocked(userID)
	if !ok {
		rec = abandonment.Record{
			ID:        uuid.NewString(),
			UserID:    userID,
			CreatedAt: now,
		}
	}
	rec.CartData = raw
	rec.ItemCount = len(snapshot)
	rec.LastUpdatedAt = now
	rec.Stage = abandonment.StageNone
	rec.ReminderSentAt = nil
	s.data.abandonment[rec.ID] = rec
	return rec, nil
}

func (s *Store) ResetActive(_ context.Context, userID string, snapshot abandonment.Snapshot, now time.Time) (bool, error) {
	raw, err := abandonment.EncodeSnapshot(snapshot)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.activeRecordLocked(userID)
	if !ok {
		return false, nil
	}
	rec.CartData = raw
	rec.ItemCount = len(snapshot)
	rec.LastUpdatedAt = now
	rec.Stage = abandonment.StageNone
	rec.ReminderSentAt = nil
	s.data.abandonment[rec.ID] = rec
	return true, nil
}

func (s *Store) GetActive(_ context.Context, userID string) (abandonment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.activeRecordLocked(userID)
	if !ok {
		return abandonment.Record{}, service.NewNotFoundError("abandonment record", userID)
	}
	return rec, nil
}

func (s *Store) MarkPurchased(_ context.Context, userID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.activeRecordLocked(userID)
	if !ok {
		return false, nil
	}
	purchasedAt := now
	rec.Purchased = true
	rec.PurchasedAt = &purchasedAt
	s.data.abandonment[rec.ID] = rec
	return true, nil
}

func (s *Store) ListDue(_ context.Context, stage abandonment.Stage, cutoff time.Time, after *abandonment.Cursor, limit int) ([]abandonment.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []abandonment.Candidate
	for _, rec := range s.data.abandonment {
		if rec.Purchased || rec.Stage != stage || rec.ItemCount == 0 {
			continue
		}
		ref, ok := rec.ReferenceTime()
		if !ok || ref.After(cutoff) {
			continue
		}
		if after != nil && !after.Before(rec.Position()) {
			continue
		}
		u, ok := s.data.users[rec.UserID]
		if !ok || !u.Active {
			continue
		}
		out = append(out, abandonment.Candidate{Record: rec, Email: u.Email, Name: u.Name})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Position().Before(out[j].Position())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AdvanceStage(_ context.Context, id string, from, to abandonment.Stage, lastUpdatedAt, sentAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data.abandonment[id]
	if !ok || rec.Purchased || rec.Stage != from || !rec.LastUpdatedAt.Equal(lastUpdatedAt) {
		return false, nil
	}
	sent := sentAt
	rec.Stage = to
	rec.ReminderSentAt = &sent
	rec.RemindersSent++
	s.data.abandonment[id] = rec
	return true, nil
}

func (s *Store) DeleteResolvedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, rec := range s.data.abandonment {
		if rec.Resolved() && rec.CreatedAt.Before(cutoff) {
			delete(s.data.abandonment, id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) AbandonmentStats(_ context.Context) (abandonment.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := abandonment.Stats{ActiveByStage: make(map[abandonment.Stage]int)}
	for _, stage := range abandonment.Stages {
		stats.ActiveByStage[stage] = 0
	}
	for _, rec := range s.data.abandonment {
		if rec.Purchased {
			stats.Purchased++
			if rec.RemindersSent > 0 {
				stats.Recovered++
			}
			continue
		}
		stats.Active++
		stats.ActiveByStage[rec.Stage]++
	}
	return stats, nil
}

// AbandonmentRecords returns a copy of every record. Tests use it to check
// store-wide invariants.
func (s *Store) AbandonmentRecords() []abandonment.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]abandonment.Record, 0, len(s.data.abandonment))
	for _, rec := range s.data.abandonment {
		out = append(out, rec)
	}
	return out
}

// CouponUsages returns a copy of every recorded redemption.
func (s *Store) CouponUsages() []coupon.Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]coupon.Usage(nil), s.data.couponUsages...)
}
