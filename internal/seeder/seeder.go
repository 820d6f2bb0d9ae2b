package seeder

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/canteen/internal/config"
	"github.com/Additional-Code/canteen/internal/entity"
	"github.com/Additional-Code/canteen/internal/ledger"
	"github.com/Additional-Code/canteen/internal/slot"
	"github.com/Additional-Code/canteen/internal/store"
)

// ErrAlreadySeeded is returned when the store already holds orders.
var ErrAlreadySeeded = errors.New("store already contains orders")

var students = []struct{ name, college string }{
	{"Aarav Shah", "CS21001"},
	{"Diya Patel", "CS21014"},
	{"Kabir Mehta", "ME21007"},
	{"Ananya Rao", "EE21022"},
	{"Vihaan Gupta", "CS21031"},
	{"Isha Nair", "CE21005"},
	{"Arjun Iyer", "ME21019"},
	{"Meera Joshi", "EE21011"},
	{"Rohan Das", "CS21044"},
	{"Sara Khan", "CE21016"},
}

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Seeder fills a store with demo order history for local/dev setups.
type Seeder struct {
	kv     store.KV
	cfg    config.Canteen
	logger *zap.Logger
	rng    *rand.Rand
}

// New constructs a Seeder writing through kv.
func New(cfg config.Config, kv store.KV, logger *zap.Logger) *Seeder {
	return &Seeder{
		kv:     kv,
		cfg:    cfg.Canteen,
		logger: logger,
		rng:    rand.New(rand.NewPCG(42, 7)),
	}
}

// Orders seeds perDay orders for each of the trailing days ending today,
// settling payment and pickup on past days the way a real canteen would.
func (s *Seeder) Orders(ctx context.Context, days, perDay int) (int, error) {
	if days <= 0 || perDay <= 0 {
		return 0, fmt.Errorf("days and perDay must be positive")
	}

	alloc, err := slot.New(slot.FromCanteen(s.cfg))
	if err != nil {
		return 0, err
	}
	loc := s.cfg.Location
	if loc == nil {
		loc = time.Local
	}
	var now time.Time
	l := ledger.New(s.kv, alloc, ledger.PolicyFromCanteen(s.cfg),
		ledger.WithClock(func() time.Time { return now }),
		ledger.WithLogger(s.logger),
	)
	if err := l.Load(ctx); err != nil {
		return 0, err
	}
	if len(l.Orders(ledger.Filter{})) > 0 {
		return 0, ErrAlreadySeeded
	}

	today := slot.StartOfDay(time.Now().In(loc))
	opens := max(0, s.cfg.Cutoff-3*time.Hour)
	step := (s.cfg.Cutoff - opens) / time.Duration(perDay+1)

	created := 0
	for d := days - 1; d >= 0; d-- {
		day := today.AddDate(0, 0, -d)
		for i := 0; i < perDay; i++ {
			now = day.Add(opens + time.Duration(i+1)*step)
			st := students[s.rng.IntN(len(students))]
			meal := entity.MealVeg
			if s.rng.IntN(3) == 0 {
				meal = entity.MealNonVeg
			}
			res, err := l.CreateOrder(ctx, ledger.Request{
				UserID:    fmt.Sprintf("%s-%d", st.college, i),
				UserName:  st.name,
				Email:     fmt.Sprintf("%s@college.edu", st.college),
				CollegeID: st.college,
				MealType:  meal,
			})
			if errors.Is(err, ledger.ErrNoSlotsAvailable) || errors.Is(err, ledger.ErrDuplicateOrder) {
				continue
			}
			if err != nil {
				return created, err
			}
			if res.Waitlisted {
				continue
			}
			created++
			if d == 0 {
				continue
			}
			if err := s.settle(ctx, l, res.Order.ID); err != nil {
				return created, err
			}
		}
	}

	s.logger.Info("seeded orders", zap.Int("count", created), zap.Int("days", days))
	return created, nil
}

// settle marks most past orders paid and served.
func (s *Seeder) settle(ctx context.Context, l *ledger.Ledger, id int64) error {
	if s.rng.IntN(10) == 0 {
		return nil
	}
	if _, err := l.UpdatePaymentStatus(ctx, id, entity.PaymentPaid); err != nil {
		return err
	}
	_, err := l.MarkServed(ctx, id)
	return err
}
