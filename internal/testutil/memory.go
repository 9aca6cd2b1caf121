// Package testutil provides in-memory implementations of the repository
// contracts for service and handler tests.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/repository"
)

func paginate[T any](rows []T, p repository.Page) []T {
	p = p.Normalize()
	start := p.Offset()
	if start >= len(rows) {
		return nil
	}
	end := start + p.Limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

type UserStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.User
}

func NewUserStore() *UserStore {
	return &UserStore{rows: map[uuid.UUID]models.User{}}
}

func (s *UserStore) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.Email == u.Email || r.Phone == u.Phone {
			return repository.ErrDuplicate
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	s.rows[u.ID] = *u
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return s.find(func(u models.User) bool { return u.Email == strings.ToLower(email) })
}

func (s *UserStore) GetByPhone(_ context.Context, phone string) (*models.User, error) {
	return s.find(func(u models.User) bool { return u.Phone == phone })
}

func (s *UserStore) find(match func(models.User) bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.rows {
		if match(u) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *UserStore) Update(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[u.ID]; !ok {
		return repository.ErrNotFound
	}
	for id, r := range s.rows {
		if id != u.ID && (r.Email == u.Email || r.Phone == u.Phone) {
			return repository.ErrDuplicate
		}
	}
	u.UpdatedAt = time.Now()
	s.rows[u.ID] = *u
	return nil
}

func (s *UserStore) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.LastLogin = &at
	s.rows[id] = u
	return nil
}

func (s *UserStore) List(_ context.Context, q repository.UserQuery) ([]models.User, int64, error) {
	s.mu.Lock()
	var out []models.User
	for _, u := range s.rows {
		if q.Role != "" && u.Role != q.Role {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(u.Name+" "+u.Email+" "+u.Phone), strings.ToLower(q.Search)) {
			continue
		}
		out = append(out, u)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, q.Page), int64(len(out)), nil
}

// Count returns the number of stored users.
func (s *UserStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// copyListing returns a detached copy so callers cannot mutate stored rows.
func copyListing(l models.Listing) models.Listing {
	switch v := l.(type) {
	case *models.Car:
		c := *v
		c.Images = append(c.Images[:0:0], v.Images...)
		return &c
	case *models.Property:
		c := *v
		c.Images = append(c.Images[:0:0], v.Images...)
		c.Amenities = append(c.Amenities[:0:0], v.Amenities...)
		return &c
	case *models.Land:
		c := *v
		c.Images = append(c.Images[:0:0], v.Images...)
		return &c
	case *models.Machine:
		c := *v
		c.Images = append(c.Images[:0:0], v.Images...)
		return &c
	}
	return l
}

type ListingStore struct {
	mu   sync.Mutex
	kind models.ListingKind
	rows map[uuid.UUID]models.Listing
}

func NewListingStore(kind models.ListingKind) *ListingStore {
	return &ListingStore{kind: kind, rows: map[uuid.UUID]models.Listing{}}
}

// NewListingRegistry returns one in-memory store per listing kind.
func NewListingRegistry() repository.ListingRegistry {
	reg := repository.ListingRegistry{}
	for _, k := range models.AllKinds {
		reg[k] = NewListingStore(k)
	}
	return reg
}

func (s *ListingStore) Kind() models.ListingKind { return s.kind }

func (s *ListingStore) Create(_ context.Context, l models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := l.Common()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
	s.rows[b.ID] = copyListing(l)
	return nil
}

func (s *ListingStore) Get(_ context.Context, id uuid.UUID) (models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyListing(l), nil
}

func (s *ListingStore) List(_ context.Context, q repository.ListingQuery) ([]models.Listing, int64, error) {
	s.mu.Lock()
	var out []models.Listing
	for _, l := range s.rows {
		b := l.Common()
		if q.Approved != nil && b.Approved != *q.Approved {
			continue
		}
		if q.OwnerID != nil && b.OwnerID != *q.OwnerID {
			continue
		}
		if q.Status != "" && b.Status != q.Status {
			continue
		}
		if q.Purpose != "" && b.Purpose != q.Purpose {
			continue
		}
		if q.City != "" && !strings.EqualFold(b.Location.City, q.City) {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(b.Title), strings.ToLower(q.Search)) {
			continue
		}
		if q.MinPrice > 0 && b.Price < q.MinPrice {
			continue
		}
		if q.MaxPrice > 0 && b.Price > q.MaxPrice {
			continue
		}
		out = append(out, copyListing(l))
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Common(), out[j].Common()
		switch q.Sort {
		case "price_low":
			return a.Price < b.Price
		case "price_high":
			return a.Price > b.Price
		case "popular":
			return a.Views > b.Views
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return paginate(out, q.Page), int64(len(out)), nil
}

// Update keeps the stored managed fields, mirroring the gorm store.
func (s *ListingStore) Update(_ context.Context, l models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := l.Common().ID
	old, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	next := copyListing(l)
	b, ob := next.Common(), old.Common()
	b.OwnerID, b.Status, b.Approved, b.Views = ob.OwnerID, ob.Status, ob.Approved, ob.Views
	b.Images = append(ob.Images[:0:0], ob.Images...)
	b.CreatedAt = ob.CreatedAt
	b.UpdatedAt = time.Now()
	s.rows[id] = next
	return nil
}

func (s *ListingStore) UpdateImages(_ context.Context, id uuid.UUID, fn func([]models.Image) ([]models.Image, error)) ([]models.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	b := l.Common()
	next, err := fn(append(b.Images[:0:0], b.Images...))
	if err != nil {
		return nil, err
	}
	b.Images = next
	return append(next[:0:0], next...), nil
}

func (s *ListingStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *ListingStore) IncrementViews(_ context.Context, id uuid.UUID) error {
	return s.mutate(id, func(b *models.ListingBase) { b.Views++ })
}

func (s *ListingStore) SetApproved(_ context.Context, id uuid.UUID, approved bool) error {
	return s.mutate(id, func(b *models.ListingBase) { b.Approved = approved })
}

func (s *ListingStore) SetStatus(_ context.Context, id uuid.UUID, status models.ListingStatus) error {
	return s.mutate(id, func(b *models.ListingBase) { b.Status = status })
}

func (s *ListingStore) mutate(id uuid.UUID, fn func(*models.ListingBase)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(l.Common())
	return nil
}

type favKey struct {
	kind      models.ListingKind
	listingID uuid.UUID
	userID    uuid.UUID
}

type FavoriteStore struct {
	mu   sync.Mutex
	rows map[favKey]models.Favorite
}

func NewFavoriteStore() *FavoriteStore {
	return &FavoriteStore{rows: map[favKey]models.Favorite{}}
}

func (s *FavoriteStore) Toggle(_ context.Context, kind models.ListingKind, listingID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := favKey{kind, listingID, userID}
	if _, ok := s.rows[k]; ok {
		delete(s.rows, k)
		return false, nil
	}
	s.rows[k] = models.Favorite{ID: uuid.New(), Kind: kind, ListingID: listingID, UserID: userID, CreatedAt: time.Now()}
	return true, nil
}

func (s *FavoriteStore) IsFavorite(_ context.Context, kind models.ListingKind, listingID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[favKey{kind, listingID, userID}]
	return ok, nil
}

func (s *FavoriteStore) Count(_ context.Context, kind models.ListingKind, listingID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.rows {
		if k.kind == kind && k.listingID == listingID {
			n++
		}
	}
	return n, nil
}

func (s *FavoriteStore) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Favorite
	for k, f := range s.rows {
		if k.userID == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *FavoriteStore) DeleteByListing(_ context.Context, kind models.ListingKind, listingID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.rows {
		if k.kind == kind && k.listingID == listingID {
			delete(s.rows, k)
		}
	}
	return nil
}

type DealStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.Deal
}

func NewDealStore() *DealStore {
	return &DealStore{rows: map[uuid.UUID]models.Deal{}}
}

func (s *DealStore) Create(_ context.Context, d *models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.DealID == d.DealID {
			return repository.ErrDuplicate
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	s.rows[d.ID] = *d
	return nil
}

func (s *DealStore) Get(_ context.Context, id uuid.UUID) (*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (s *DealStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	return s.Get(ctx, id)
}

func (s *DealStore) GetByDealID(_ context.Context, dealID string) (*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.rows {
		if d.DealID == dealID {
			return &d, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *DealStore) List(_ context.Context, q repository.DealQuery) ([]models.Deal, int64, error) {
	s.mu.Lock()
	var out []models.Deal
	for _, d := range s.rows {
		if q.Party != nil {
			switch q.AsRole {
			case "buyer":
				if d.BuyerID != *q.Party {
					continue
				}
			case "seller":
				if d.SellerID != *q.Party {
					continue
				}
			default:
				if !d.IsParty(*q.Party) {
					continue
				}
			}
		}
		if q.Status != "" && d.Status != q.Status {
			continue
		}
		out = append(out, d)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, q.Page), int64(len(out)), nil
}

// Update keeps the stored deal_id, mirroring the gorm store.
func (s *DealStore) Update(_ context.Context, d *models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.rows[d.ID]
	if !ok {
		return repository.ErrNotFound
	}
	d.DealID = old.DealID
	d.CreatedAt = old.CreatedAt
	d.UpdatedAt = time.Now()
	s.rows[d.ID] = *d
	return nil
}

func (s *DealStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

type ConsultationStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.Consultation
}

func NewConsultationStore() *ConsultationStore {
	return &ConsultationStore{rows: map[uuid.UUID]models.Consultation{}}
}

func (s *ConsultationStore) Create(_ context.Context, c *models.Consultation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.rows[c.ID] = *c
	return nil
}

func (s *ConsultationStore) Get(_ context.Context, id uuid.UUID) (*models.Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (s *ConsultationStore) List(_ context.Context, q repository.ConsultationQuery) ([]models.Consultation, int64, error) {
	s.mu.Lock()
	var out []models.Consultation
	for _, c := range s.rows {
		if q.UserID != nil && (c.UserID == nil || *c.UserID != *q.UserID) {
			continue
		}
		if q.Status != "" && c.Status != q.Status {
			continue
		}
		if q.Category != "" && c.Category != q.Category {
			continue
		}
		out = append(out, c)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DateTime.Before(out[j].DateTime) })
	return paginate(out, q.Page), int64(len(out)), nil
}

func (s *ConsultationStore) Update(_ context.Context, c *models.Consultation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[c.ID]; !ok {
		return repository.ErrNotFound
	}
	c.UpdatedAt = time.Now()
	s.rows[c.ID] = *c
	return nil
}

type NotificationStore struct {
	mu   sync.Mutex
	rows []models.Notification
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{}
}

func (s *NotificationStore) Insert(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, *n)
	return nil
}

func (s *NotificationStore) ListByRecipient(_ context.Context, recipient string, unreadOnly bool, p repository.Page) ([]models.Notification, int64, error) {
	s.mu.Lock()
	var out []models.Notification
	for i := len(s.rows) - 1; i >= 0; i-- {
		n := s.rows[i]
		if n.Recipient != recipient || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	s.mu.Unlock()
	return paginate(out, p), int64(len(out)), nil
}

func (s *NotificationStore) MarkRead(_ context.Context, recipient, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id && s.rows[i].Recipient == recipient {
			s.rows[i].Read = true
			s.rows[i].ReadAt = &at
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *NotificationStore) MarkAllRead(_ context.Context, recipient string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.rows {
		if s.rows[i].Recipient == recipient && !s.rows[i].Read {
			s.rows[i].Read = true
			s.rows[i].ReadAt = &at
			n++
		}
	}
	return n, nil
}

func (s *NotificationStore) CountUnread(_ context.Context, recipient string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.rows {
		if r.Recipient == recipient && !r.Read {
			n++
		}
	}
	return n, nil
}

// All returns a copy of every stored notification in insertion order.
func (s *NotificationStore) All() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.rows...)
}

// Transactor runs fn against the wrapped stores, one unit of work at a
// time, which stands in for the row locks a database transaction takes.
type Transactor struct {
	Stores repository.Stores

	mu sync.Mutex
}

func (t *Transactor) WithinTx(_ context.Context, fn func(tx repository.Stores) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(t.Stores)
}

// NewStores returns a full set of empty in-memory stores.
func NewStores() repository.Stores {
	return repository.Stores{
		Users:         NewUserStore(),
		Listings:      NewListingRegistry(),
		Favorites:     NewFavoriteStore(),
		Deals:         NewDealStore(),
		Consultations: NewConsultationStore(),
	}
}
