// Package ledger owns the canonical set of canteen orders and the waitlist. It
// decides admission for new requests, applies payment and pickup transitions
// and persists the full state through a store.KV after every mutation.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Additional-Code/canteen/internal/config"
	"github.com/Additional-Code/canteen/internal/entity"
	"github.com/Additional-Code/canteen/internal/slot"
	"github.com/Additional-Code/canteen/internal/store"
)

// Persisted keys.
const (
	KeyOrders       = "canteen_orders"
	KeyCurrentOrder = "canteen_current_order"
	KeyWaitlist     = "canteen_waitlist"
)

var qrNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("canteen/qr"))

// Policy holds the admission constants.
type Policy struct {
	Cutoff    time.Duration
	MaxOrders int
	Price     int
	Location  *time.Location
}

// PolicyFromCanteen extracts the admission policy from configuration.
func PolicyFromCanteen(c config.Canteen) Policy {
	return Policy{
		Cutoff:    c.Cutoff,
		MaxOrders: c.MaxOrders,
		Price:     c.Price,
		Location:  c.Location,
	}
}

// Clock returns the current instant.
type Clock func() time.Time

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock replaces the wall clock used for cutoff checks and day bucketing.
func WithClock(c Clock) Option {
	return func(l *Ledger) {
		if c != nil {
			l.now = c
		}
	}
}

// WithLogger attaches a logger for recoverable persistence problems.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Request is an incoming meal request. Identity fields are taken verbatim.
type Request struct {
	UserID    string
	UserName  string
	Email     string
	CollegeID string
	MealType  entity.MealType
}

func (r Request) validate() error {
	if strings.TrimSpace(r.UserID) == "" || strings.TrimSpace(r.UserName) == "" {
		return fmt.Errorf("%w: userId and userName are required", ErrInvalidRequest)
	}
	if !r.MealType.Valid() {
		return fmt.Errorf("%w: unknown meal type %q", ErrInvalidRequest, r.MealType)
	}
	return nil
}

// Result is the outcome of an accepted request: either an order or a
// waitlist placement.
type Result struct {
	Order      *entity.Order
	Waitlisted bool
	Position   int
	Entry      *entity.WaitlistEntry
}

// Cancellation describes a removed order and who is first in line.
type Cancellation struct {
	Order      entity.Order
	NextInLine *entity.WaitlistEntry
}

// Filter narrows Orders listings. Zero values match everything.
type Filter struct {
	PaymentStatus entity.PaymentStatus
	Search        string
}

// Ledger is safe for concurrent use; every operation runs under one mutex so
// the read-check-write of admission is atomic within a process. Mutations
// re-read the store first, but processes sharing a store are not serialised
// against each other: run a single writer per store.
type Ledger struct {
	mu     sync.Mutex
	store  store.KV
	alloc  *slot.Allocator
	policy Policy
	now    Clock
	logger *zap.Logger

	orders   []entity.Order
	waitlist []entity.WaitlistEntry
	current  *entity.Order
	lastID   int64
}

// New builds an empty Ledger. Call Load to restore persisted state.
func New(kv store.KV, alloc *slot.Allocator, policy Policy, opts ...Option) *Ledger {
	if policy.Location == nil {
		policy.Location = time.Local
	}
	l := &Ledger{
		store:  kv,
		alloc:  alloc,
		policy: policy,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load replaces in-memory state with the persisted one. Missing keys and
// malformed values load as empty state; only store failures are returned.
func (l *Ledger) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastID = 0
	if err := l.reload(ctx); err != nil {
		return err
	}
	l.logger.Info("ledger loaded", zap.Int("orders", len(l.orders)), zap.Int("waitlist", len(l.waitlist)))
	return nil
}

// reload re-reads the persisted collections. Every mutation calls it under
// l.mu before its checks so that writes made by other processes sharing the
// store (a seed run, a second API instance) are not overwritten.
func (l *Ledger) reload(ctx context.Context) error {
	orders, err := load[[]entity.Order](ctx, l, KeyOrders)
	if err != nil {
		return err
	}
	waitlist, err := load[[]entity.WaitlistEntry](ctx, l, KeyWaitlist)
	if err != nil {
		return err
	}
	current, err := load[*entity.Order](ctx, l, KeyCurrentOrder)
	if err != nil {
		return err
	}

	l.orders = orders
	l.waitlist = waitlist
	l.current = current
	for _, o := range orders {
		l.lastID = max(l.lastID, o.ID)
	}
	for _, w := range waitlist {
		l.lastID = max(l.lastID, w.ID)
	}
	return nil
}

func load[T any](ctx context.Context, l *Ledger, key string) (T, error) {
	var zero T
	raw, err := l.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("load %s: %w", key, err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		l.logger.Warn("discarding corrupt persisted state", zap.String("key", key), zap.Error(err))
		return zero, nil
	}
	return v, nil
}

func (l *Ledger) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := l.store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

// setCurrent refreshes the denormalised current-order cache. The order list is
// the source of truth, so failures are only logged.
func (l *Ledger) setCurrent(ctx context.Context, o *entity.Order) {
	var err error
	if o == nil {
		err = l.store.Delete(ctx, KeyCurrentOrder)
	} else {
		err = l.save(ctx, KeyCurrentOrder, o)
	}
	if err != nil {
		l.logger.Warn("current order cache write failed", zap.Error(err))
	}
	l.current = o
}

func (l *Ledger) clock() time.Time {
	return l.now().In(l.policy.Location)
}

func (l *Ledger) nextID(now time.Time) int64 {
	id := now.UnixMilli()
	if id <= l.lastID {
		id = l.lastID + 1
	}
	l.lastID = id
	return id
}

func (l *Ledger) openAt(now time.Time) bool {
	return now.Before(slot.At(now, l.policy.Cutoff))
}

func (l *Ledger) countOn(day time.Time) int {
	n := 0
	for _, o := range l.orders {
		if slot.SameDay(o.CreatedAt, day) {
			n++
		}
	}
	return n
}

func (l *Ledger) userOrderOn(userID string, day time.Time) (entity.Order, bool) {
	for i := len(l.orders) - 1; i >= 0; i-- {
		o := l.orders[i]
		if o.UserID == userID && slot.SameDay(o.CreatedAt, day) {
			return o, true
		}
	}
	return entity.Order{}, false
}

func (l *Ledger) indexOf(id int64) int {
	return slices.IndexFunc(l.orders, func(o entity.Order) bool { return o.ID == id })
}

// QRToken derives the pickup token of an order from its identity fields.
func QRToken(id int64, userID string, createdAt time.Time) string {
	name := fmt.Sprintf("%d|%s|%s", id, userID, createdAt.UTC().Format(time.RFC3339Nano))
	return "ORDER-" + uuid.NewSHA1(qrNamespace, []byte(name)).String()
}

// CreateOrder runs admission for req: cutoff, one order per user per day,
// daily cap (waitlist), then slot assignment.
func (l *Ledger) CreateOrder(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.reload(ctx); err != nil {
		return Result{}, err
	}
	now := l.clock()
	if !l.openAt(now) {
		return Result{}, ErrOrderingClosed
	}
	if _, ok := l.userOrderOn(req.UserID, now); ok {
		return Result{}, ErrDuplicateOrder
	}

	if l.countOn(now) >= l.policy.MaxOrders {
		entry := entity.WaitlistEntry{
			ID:        l.nextID(now),
			UserID:    req.UserID,
			UserName:  req.UserName,
			Email:     req.Email,
			MealType:  req.MealType,
			Timestamp: now,
			Position:  len(l.waitlist) + 1,
		}
		waitlist := append(slices.Clone(l.waitlist), entry)
		if err := l.save(ctx, KeyWaitlist, waitlist); err != nil {
			return Result{}, err
		}
		l.waitlist = waitlist
		return Result{Waitlisted: true, Position: entry.Position, Entry: &entry}, nil
	}

	s, ok := l.alloc.NextAvailable(l.orders, now)
	if !ok {
		return Result{}, ErrNoSlotsAvailable
	}

	id := l.nextID(now)
	order := entity.Order{
		ID:            id,
		UserID:        req.UserID,
		UserName:      req.UserName,
		Email:         req.Email,
		CollegeID:     req.CollegeID,
		MealType:      req.MealType,
		Slot:          s.Label,
		SlotDisplay:   s.Display,
		Amount:        l.policy.Price,
		PaymentStatus: entity.PaymentUnpaid,
		OrderStatus:   entity.OrderConfirmed,
		QRCode:        QRToken(id, req.UserID, now),
		CreatedAt:     now,
	}

	orders := append(slices.Clone(l.orders), order)
	if err := l.save(ctx, KeyOrders, orders); err != nil {
		return Result{}, err
	}
	l.orders = orders
	created := order
	l.setCurrent(ctx, &created)

	out := order
	return Result{Order: &out}, nil
}

// mutate applies fn to a copy of the order, persists the new collection and
// swaps it in.
func (l *Ledger) mutate(ctx context.Context, id int64, fn func(*entity.Order)) (entity.Order, error) {
	if err := l.reload(ctx); err != nil {
		return entity.Order{}, err
	}
	idx := l.indexOf(id)
	if idx < 0 {
		return entity.Order{}, ErrOrderNotFound
	}
	orders := slices.Clone(l.orders)
	fn(&orders[idx])
	if err := l.save(ctx, KeyOrders, orders); err != nil {
		return entity.Order{}, err
	}
	l.orders = orders
	updated := orders[idx]
	if l.current != nil && l.current.ID == id {
		c := updated
		l.setCurrent(ctx, &c)
	}
	return updated, nil
}

// UpdatePaymentStatus replaces the payment status. Any known status is
// accepted, including paid back to unpaid.
func (l *Ledger) UpdatePaymentStatus(ctx context.Context, id int64, status entity.PaymentStatus) (entity.Order, error) {
	if !status.Valid() {
		return entity.Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	return l.mutate(ctx, id, func(o *entity.Order) {
		o.PaymentStatus = status
		if status == entity.PaymentPaid {
			o.PaidAt = &now
		} else {
			o.PaidAt = nil
		}
	})
}

// MarkServed flags the order as collected. Repeated calls re-stamp ServedAt;
// callers decide whether a second serve is allowed.
func (l *Ledger) MarkServed(ctx context.Context, id int64) (entity.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	return l.mutate(ctx, id, func(o *entity.Order) {
		o.OrderStatus = entity.OrderServed
		o.Served = true
		o.ServedAt = &now
	})
}

// CancelOrder removes the order. The waitlist is left untouched; the head of
// the waitlist is reported so callers can notify that student.
func (l *Ledger) CancelOrder(ctx context.Context, id int64) (Cancellation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.reload(ctx); err != nil {
		return Cancellation{}, err
	}
	idx := l.indexOf(id)
	if idx < 0 {
		return Cancellation{}, ErrOrderNotFound
	}
	removed := l.orders[idx]
	orders := slices.Delete(slices.Clone(l.orders), idx, idx+1)
	if err := l.save(ctx, KeyOrders, orders); err != nil {
		return Cancellation{}, err
	}
	l.orders = orders
	if l.current != nil && l.current.ID == id {
		l.setCurrent(ctx, nil)
	}

	c := Cancellation{Order: removed}
	if len(l.waitlist) > 0 {
		head := l.waitlist[0]
		c.NextInLine = &head
	}
	return c, nil
}

// LookupByUser returns the user's order for today.
func (l *Ledger) LookupByUser(userID string) (entity.Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.userOrderOn(userID, l.clock())
}

// Get returns the order with id.
func (l *Ledger) Get(id int64) (entity.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.indexOf(id)
	if idx < 0 {
		return entity.Order{}, ErrOrderNotFound
	}
	return l.orders[idx], nil
}

// FindByQRCode resolves a pickup token back to its order.
func (l *Ledger) FindByQRCode(code string) (entity.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	code = strings.TrimSpace(code)
	for _, o := range l.orders {
		if o.QRCode == code {
			return o, nil
		}
	}
	return entity.Order{}, ErrOrderNotFound
}

// Orders lists orders across all days in creation order.
func (l *Ledger) Orders(f Filter) []entity.Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]entity.Order, 0, len(l.orders))
	for _, o := range l.orders {
		if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(o.UserName), search) &&
			!strings.Contains(strings.ToLower(o.Email), search) &&
			!strings.Contains(strings.ToLower(o.CollegeID), search) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// Waitlist returns the waitlist in insertion order.
func (l *Ledger) Waitlist() []entity.WaitlistEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.waitlist)
}

// CurrentOrder returns the most recently created order still in the ledger.
func (l *Ledger) CurrentOrder() (entity.Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return entity.Order{}, false
	}
	return *l.current, true
}

// Slots lists today's pickup buckets with their load.
func (l *Ledger) Slots() []slot.Slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alloc.List(l.orders, l.clock())
}

// OrderingOpen reports whether the cutoff has not passed yet.
func (l *Ledger) OrderingOpen() bool {
	return l.openAt(l.clock())
}

// Now returns the ledger clock in the canteen location.
func (l *Ledger) Now() time.Time {
	return l.clock()
}

// Policy returns the admission constants.
func (l *Ledger) Policy() Policy {
	return l.policy
}

// Allocator exposes the slot schedule.
func (l *Ledger) Allocator() *slot.Allocator {
	return l.alloc
}
