package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/canteen/internal/entity"
	"github.com/Additional-Code/canteen/internal/slot"
	"github.com/Additional-Code/canteen/internal/store"
)

// testClock is a settable clock shared by a ledger under test.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func morning() time.Time {
	return time.Date(2026, time.March, 9, 8, 30, 0, 0, time.UTC)
}

func testPolicy() Policy {
	return Policy{Cutoff: 10 * time.Hour, MaxOrders: 200, Price: 40, Location: time.UTC}
}

func testAllocator(t *testing.T, capacity int) *slot.Allocator {
	t.Helper()
	a, err := slot.New(slot.Config{
		WindowStart: 12 * time.Hour,
		WindowEnd:   14 * time.Hour,
		Width:       15 * time.Minute,
		Capacity:    capacity,
	})
	require.NoError(t, err)
	return a
}

func newTestLedger(t *testing.T, kv store.KV, policy Policy, capacity int) (*Ledger, *testClock) {
	t.Helper()
	clock := &testClock{now: morning()}
	l := New(kv, testAllocator(t, capacity), policy, WithClock(clock.Now))
	require.NoError(t, l.Load(context.Background()))
	return l, clock
}

func request(i int) Request {
	return Request{
		UserID:    fmt.Sprintf("user-%03d", i),
		UserName:  fmt.Sprintf("Student %03d", i),
		Email:     fmt.Sprintf("s%03d@college.edu", i),
		CollegeID: fmt.Sprintf("C%03d", i),
		MealType:  entity.MealVeg,
	}
}

func fill(t *testing.T, l *Ledger, n int) []entity.Order {
	t.Helper()
	out := make([]entity.Order, 0, n)
	for i := 0; i < n; i++ {
		res, err := l.CreateOrder(context.Background(), request(i))
		require.NoError(t, err)
		require.NotNil(t, res.Order)
		out = append(out, *res.Order)
	}
	return out
}

func TestCreateOrderAssignsFirstSlot(t *testing.T) {
	l, clock := newTestLedger(t, store.NewMemory(), testPolicy(), 25)

	res, err := l.CreateOrder(context.Background(), request(1))
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.False(t, res.Waitlisted)

	o := res.Order
	assert.Equal(t, "12:00", o.Slot)
	assert.Equal(t, "12:00 - 12:15", o.SlotDisplay)
	assert.Equal(t, 40, o.Amount)
	assert.Equal(t, entity.PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, entity.OrderConfirmed, o.OrderStatus)
	assert.False(t, o.Served)
	assert.Equal(t, clock.now, o.CreatedAt)
	assert.Equal(t, clock.now.UnixMilli(), o.ID)
	assert.Equal(t, QRToken(o.ID, o.UserID, o.CreatedAt), o.QRCode)
	assert.Contains(t, o.QRCode, "ORDER-")

	current, ok := l.CurrentOrder()
	require.True(t, ok)
	assert.Equal(t, o.ID, current.ID)
}

func TestCreateOrderIDsAreUniqueUnderFixedClock(t *testing.T) {
	l, _ := newTestLedger(t, store.NewMemory(), testPolicy(), 25)

	orders := fill(t, l, 30)
	seenID := map[int64]bool{}
	seenQR := map[string]bool{}
	for _, o := range orders {
		assert.False(t, seenID[o.ID], "duplicate id %d", o.ID)
		assert.False(t, seenQR[o.QRCode], "duplicate qr %s", o.QRCode)
		seenID[o.ID] = true
		seenQR[o.QRCode] = true
	}
	assert.Equal(t, "12:15", orders[25].Slot)
}

func TestCreateOrderRejectsInvalidRequest(t *testing.T) {
	l, _ := newTestLedger(t, store.NewMemory(), testPolicy(), 25)

	_, err := l.CreateOrder(context.Background(), Request{UserName: "x", MealType: entity.MealVeg})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req := request(1)
	req.MealType = "vegan"
	_, err = l.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, l.Orders(Filter{}))
}

// Scenario A: the 201st distinct request is waitlisted at position 1.
func TestCreateOrderWaitlistsAfterDailyCap(t *testing.T) {
	l, _ := newTestLedger(t, store.NewMemory(), testPolicy(), 25)
	fill(t, l, 200)

	res, err := l.CreateOrder(context.Background(), request(200))
	require.NoError(t, err)
	assert.True(t, res.Waitlisted)
	assert.Equal(t, 1, res.Position)
	assert.Nil(t, res.Order)
	require.NotNil(t, res.Entry)
	assert.Equal(t, "user-200", res.Entry.UserID)

	res, err = l.CreateOrder(context.Background(), request(201))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Position)

	assert.Len(t, l.Orders(Filter{}), 200)
	assert.Len(t, l.Waitlist(), 2)
	assert.Equal(t, 0, l.TodayStats().SpotsLeft)
}

// Scenario B.
func TestCreateOrderRejectsDuplicateSameDay(t *testing.T) {
	l, clock := newTestLedger(t, store.NewMemory(), testPolicy(), 25)
	fill(t, l, 1)

	_, err := l.CreateOrder(context.Background(), request(0))
	assert.ErrorIs(t, err, ErrDuplicateOrder)
	assert.Len(t, l.Orders(Filter{}), 1)

	clock.now = clock.now.AddDate(0, 0, 1)
	res, err := l.CreateOrder(context.Background(), request(0))
	require.NoError(t, err)
	assert.Equal(t, "12:00", res.Order.Slot)
	assert.Len(t, l.Orders(Filter{}), 2)
}

// Scenario C.
func TestCreateOrderRejectsAfterCutoff(t *testing.T) {
	l, clock := newTestLedger(t, store.NewMemory(), testPolicy(), 25)

	clock.now = time.Date(2026, time.March, 9, 9, 59, 59, 0, time.UTC)
	assert.True(t, l.OrderingOpen())

	clock.now = time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)
	assert.False(t, l.OrderingOpen())
	_, err := l.CreateOrder(context.Background(), request(1))
	assert.ErrorIs(t, err, ErrOrderingClosed)

	clock.now = time.Date(2026, time.March, 9, 13, 0, 0, 0, time.UTC)
	_, err = l.CreateOrder(context.Background(), request(1))
	assert.ErrorIs(t, err, ErrOrderingClosed)
	assert.Empty(t, l.Orders(Filter{}))
}

func TestCutoffUsesPolicyLocation(t *testing.T) {
	policy := testPolicy()
	policy.Location = time.FixedZone("IST", 5*3600+1800)
	l, clock := newTestLedger(t, store.NewMemory(), policy, 25)

	// 05:00 UTC is 10:30 IST.
	clock.now = time.Date(2026, time.March, 9, 5, 0, 0, 0, time.UTC)
	_, err := l.CreateOrder(context.Background(), request(1))
	assert.ErrorIs(t, err, ErrOrderingClosed)

	clock.now = time.Date(2026, time.March, 9, 4, 0, 0, 0, time.UTC)
	_, err = l.CreateOrder(context.Background(), request(1))
	assert.NoError(t, err)
}

func TestCutoffOnDSTTransitionDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	policy := testPolicy()
	policy.Location = ny
	l, clock := newTestLedger(t, store.NewMemory(), policy, 25)

	// Clocks sprang forward at 02:00 on 2026-03-08, so the day is 23 hours long.
	clock.now = time.Date(2026, time.March, 8, 9, 59, 0, 0, ny)
	assert.True(t, l.OrderingOpen())

	clock.now = time.Date(2026, time.March, 8, 10, 30, 0, 0, ny)
	assert.False(t, l.OrderingOpen())
	_, err = l.CreateOrder(context.Background(), request(2))
	assert.ErrorIs(t, err, ErrOrderingClosed)
}

// Scenario D: the 200th order skips a full bucket and lands in the earliest one with room.
func TestCreateOrderSkipsFullBucket(t *testing.T) {
	kv := store.NewMemory()
	at := morning().Add(-time.Hour)
	var seeded []entity.Order
	add := func(label string, n int) {
		for i := 0; i < n; i++ {
			seeded = append(seeded, entity.Order{
				ID:        int64(len(seeded) + 1),
				UserID:    fmt.Sprintf("seed-%d", len(seeded)),
				UserName:  "seed",
				MealType:  entity.MealVeg,
				Slot:      label,
				CreatedAt: at,
			})
		}
	}
	add("12:00", 25)
	add("12:15", 24)
	for _, label := range []string{"12:30", "12:45", "13:00", "13:15", "13:30", "13:45"} {
		add(label, 25)
	}
	require.Len(t, seeded, 199)
	raw, err := json.Marshal(seeded)
	require.NoError(t, err)
	require.NoError(t, kv.Set(context.Background(), KeyOrders, raw))

	l, _ := newTestLedger(t, kv, testPolicy(), 25)
	res, err := l.CreateOrder(context.Background(), request(1))
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.Equal(t, "12:15", res.Order.Slot)
	assert.Greater(t, res.Order.ID, int64(199))

	res, err = l.CreateOrder(context.Background(), request(2))
	require.NoError(t, err)
	assert.True(t, res.Waitlisted)
}

func TestCreateOrderNoSlotsBeforeCap(t *testing.T) {
	l, _ := newTestLedger(t, store.NewMemory(), testPolicy(), 2)
	fill(t, l, 16)

	_, err := l.CreateOrder(context.Background(), request(16))
	assert.ErrorIs(t, err, ErrNoSlotsAvailable)
	assert.Empty(t, l.Waitlist())
	assert.Equal(t, 184, l.TodayStats().SpotsLeft)
}

func TestCapReachedBeforeBuckets(t *testing.T) {
	policy := testPolicy()
	policy.MaxOrders = 3
	l, _ := newTestLedger(t, store.NewMemory(), policy, 25)
	fill(t, l, 3)

	res, err := l.CreateOrder(context.Background(), request(3))
	require.NoError(t, err)
	assert.True(t, res.Waitlisted)
	assert.Equal(t, 1, res.Position)
	assert.True(t, l.Slots()[0].Available)
}

func TestYesterdayOrdersDoNotCountAgainstToday(t *testing.T) {
	policy := testPolicy()
	policy.MaxOrders = 2
	l, clock := newTestLedger(t, store.NewMemory(), policy, 25)
	fill(t, l, 2)

	clock.now = clock.now.AddDate(0, 0, 1)
	res, err := l.CreateOrder(context.Background(), request(5))
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.Equal(t, "12:00", res.Order.Slot)
	assert.Equal(t, 1, l.Slots()[0].Count)
}

func TestBucketCountsMatchTodaysOrders(t *testing.T) {
	l, _ := newTestLedger(t, store.NewMemory(), testPolicy(), 7)
	fill(t, l, 40)

	sum := 0
	for _, s := range l.Slots() {
		sum += s.Count
		assert.LessOrEqual(t, s.Count, 7)
	}
	assert.Equal(t, l.TodayStats().TotalOrders, sum)
}

func TestSlotNeverChangesAfterMutations(t *testing.T) {
	l, _ := newTestLedger(t, store.NewMemory(), testPolicy(), 1)
	orders := fill(t, l, 3)
	ctx := context.Background()

	for _, o := range orders {
		_, err := l.UpdatePaymentStatus(ctx, o.ID, entity.PaymentPaid)
		require.NoError(t, err)
		_, err = l.MarkServed(ctx, o.ID)
		require.NoError(t, err)
		_, err = l.UpdatePaymentStatus(ctx, o.ID, entity.PaymentUnpaid)
		require.NoError(t, err)
	}
	_, err := l.CancelOrder(ctx, orders[0].ID)
	require.NoError(t, err)

	for _, o := range orders[1:] {
		got, err := l.Get(o.ID)
		require.NoError(t, err)
		assert.Equal(t, o.Slot, got.Slot)
		assert.Equal(t, o.QRCode, got.QRCode)
	}
}

func TestUpdatePaymentStatusIsPermissive(t *testing.T) {
	l, _ := newTestLedger(t, store.NewMemory(), testPolicy(), 25)
	o := fill(t, l, 1)[0]
	ctx := context.Background()

	paid, err := l.UpdatePaymentStatus(ctx, o.ID, entity.PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentPaid, paid.PaymentStatus)
	require.NotNil(t, paid.PaidAt)

	current, _ := l.CurrentOrder()
	assert.Equal(t, entity.PaymentPaid, current.PaymentStatus)

	reverted, err := l.UpdatePaymentStatus(ctx, o.ID, entity.PaymentUnpaid)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentUnpaid, reverted.PaymentStatus)
	assert.Nil(t, reverted.PaidAt)

	_, err = l.UpdatePaymentStatus(ctx, o.ID, "refunded")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = l.UpdatePaymentStatus(ctx, 42, entity.PaymentPaid)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestMarkServed(t *testing.T) {
	l, clock := newTestLedger(t, store.NewMemory(), testPolicy(), 25)
	o := fill(t, l, 1)[0]
	ctx := context.Background()

	clock.now = time.Date(2026, time.March, 9, 12, 5, 0, 0, time.UTC)
	served, err := l.MarkServed(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, served.Served)
	assert.Equal(t, entity.OrderServed, served.OrderStatus)
	require.NotNil(t, served.ServedAt)
	assert.Equal(t, clock.now, *served.ServedAt)

	// No guard against a second serve; the scan workflow decides.
	_, err = l.MarkServed(ctx, o.ID)
	assert.NoError(t, err)

	_, err = l.MarkServed(ctx, 7)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

// Scenario E.
func TestCancelOrderLeavesWaitlistUntouched(t *testing.T) {
	policy := testPolicy()
	policy.MaxOrders = 2
	l, _ := newTestLedger(t, store.NewMemory(), policy, 25)
	orders := fill(t, l, 2)
	ctx := context.Background()

	res, err := l.CreateOrder(ctx, request(9))
	require.NoError(t, err)
	require.True(t, res.Waitlisted)

	before := l.TodayStats()
	c, err := l.CancelOrder(ctx, orders[1].ID)
	require.NoError(t, err)
	assert.Equal(t, orders[1].ID, c.Order.ID)
	require.NotNil(t, c.NextInLine)
	assert.Equal(t, "user-009", c.NextInLine.UserID)

	after := l.TodayStats()
	assert.Equal(t, before.TotalOrders-1, after.TotalOrders)
	assert.Equal(t, 1, after.WaitlistCount)
	assert.Len(t, l.Waitlist(), 1)

	_, ok := l.LookupByUser(orders[1].UserID)
	assert.False(t, ok)
	_, ok = l.CurrentOrder()
	assert.False(t, ok, "current order cache cleared when its order is cancelled")

	_, err = l.CancelOrder(ctx, orders[1].ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestLookups(t *testing.T) {
	l, clock := newTestLedger(t, store.NewMemory(), testPolicy(), 25)
	o := fill(t, l, 2)[1]

	got, ok := l.LookupByUser("user-001")
	require.True(t, ok)
	assert.Equal(t, o.ID, got.ID)

	byQR, err := l.FindByQRCode(" " + o.QRCode + " ")
	require.NoError(t, err)
	assert.Equal(t, o.ID, byQR.ID)

	_, err = l.FindByQRCode("ORDER-unknown")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = l.Get(1)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	clock.now = clock.now.AddDate(0, 0, 1)
	_, ok = l.LookupByUser("user-001")
	assert.False(t, ok, "lookup is scoped to today")
}

func TestOrdersFilter(t *testing.T) {
	l, _ := newTestLedger(t, store.NewMemory(), testPolicy(), 25)
	orders := fill(t, l, 4)
	_, err := l.UpdatePaymentStatus(context.Background(), orders[2].ID, entity.PaymentPaid)
	require.NoError(t, err)

	assert.Len(t, l.Orders(Filter{PaymentStatus: entity.PaymentPaid}), 1)
	assert.Len(t, l.Orders(Filter{PaymentStatus: entity.PaymentUnpaid}), 3)
	assert.Len(t, l.Orders(Filter{Search: "STUDENT 003"}), 1)
	assert.Len(t, l.Orders(Filter{Search: "c001"}), 1)
	assert.Len(t, l.Orders(Filter{Search: "college.edu"}), 4)
	assert.Empty(t, l.Orders(Filter{Search: "nobody"}))
}

func TestLoadRestoresState(t *testing.T) {
	kv := store.NewMemory()
	policy := testPolicy()
	policy.MaxOrders = 1
	l, _ := newTestLedger(t, kv, policy, 25)
	o := fill(t, l, 1)[0]
	_, err := l.CreateOrder(context.Background(), request(5))
	require.NoError(t, err)

	restored, _ := newTestLedger(t, kv, policy, 25)
	got, err := restored.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, o, got)
	assert.Len(t, restored.Waitlist(), 1)
	current, ok := restored.CurrentOrder()
	require.True(t, ok)
	assert.Equal(t, o.ID, current.ID)

	_, err = restored.CreateOrder(context.Background(), request(0))
	assert.ErrorIs(t, err, ErrDuplicateOrder)
}

func TestMutationsSeeWritesFromOtherLedgers(t *testing.T) {
	kv := store.NewMemory()
	ctx := context.Background()
	api, _ := newTestLedger(t, kv, testPolicy(), 25)
	seed, _ := newTestLedger(t, kv, testPolicy(), 25)

	first := fill(t, api, 1)[0]
	second, err := seed.CreateOrder(ctx, request(1))
	require.NoError(t, err)
	require.NotNil(t, second.Order)
	assert.Greater(t, second.Order.ID, first.ID)

	_, err = api.CreateOrder(ctx, request(2))
	require.NoError(t, err)
	_, err = api.CreateOrder(ctx, request(1))
	assert.ErrorIs(t, err, ErrDuplicateOrder)

	paid, err := api.UpdatePaymentStatus(ctx, second.Order.ID, entity.PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, second.Order.ID, paid.ID)

	restored, _ := newTestLedger(t, kv, testPolicy(), 25)
	assert.Len(t, restored.Orders(Filter{}), 3)
	got, err := restored.Get(second.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentPaid, got.PaymentStatus)
}

func TestLoadToleratesCorruptState(t *testing.T) {
	kv := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, KeyOrders, []byte("{not json")))
	require.NoError(t, kv.Set(ctx, KeyWaitlist, []byte(`{"position":"one"}`)))
	require.NoError(t, kv.Set(ctx, KeyCurrentOrder, []byte("[]")))

	l, _ := newTestLedger(t, kv, testPolicy(), 25)
	assert.Empty(t, l.Orders(Filter{}))
	assert.Empty(t, l.Waitlist())
	_, ok := l.CurrentOrder()
	assert.False(t, ok)

	res, err := l.CreateOrder(ctx, request(1))
	require.NoError(t, err)
	assert.NotNil(t, res.Order)
}

type failingStore struct {
	*store.Memory
	failSet bool
	failGet bool
}

var errStoreDown = errors.New("store down")

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failGet {
		return nil, errStoreDown
	}
	return f.Memory.Get(ctx, key)
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet {
		return errStoreDown
	}
	return f.Memory.Set(ctx, key, value)
}

func TestPersistenceFailureLeavesStateUnchanged(t *testing.T) {
	kv := &failingStore{Memory: store.NewMemory()}
	l, _ := newTestLedger(t, kv, testPolicy(), 25)
	o := fill(t, l, 1)[0]
	ctx := context.Background()

	kv.failSet = true
	_, err := l.CreateOrder(ctx, request(1))
	assert.ErrorIs(t, err, errStoreDown)
	_, err = l.UpdatePaymentStatus(ctx, o.ID, entity.PaymentPaid)
	assert.ErrorIs(t, err, errStoreDown)
	_, err = l.CancelOrder(ctx, o.ID)
	assert.ErrorIs(t, err, errStoreDown)

	assert.Len(t, l.Orders(Filter{}), 1)
	got, err := l.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentUnpaid, got.PaymentStatus)

	kv.failSet = false
	kv.failGet = true
	assert.ErrorIs(t, l.Load(ctx), errStoreDown)
}
