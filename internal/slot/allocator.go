// Package slot partitions the daily pickup window into fixed-width buckets and
// decides which bucket a new order lands in.
package slot

import (
	"errors"
	"fmt"
	"time"

	"github.com/Additional-Code/canteen/internal/config"
	"github.com/Additional-Code/canteen/internal/entity"
)

// Config describes the pickup schedule. Offsets are measured from local midnight.
type Config struct {
	WindowStart time.Duration
	WindowEnd   time.Duration
	Width       time.Duration
	Capacity    int
}

// FromCanteen extracts the schedule from the application configuration.
func FromCanteen(c config.Canteen) Config {
	return Config{
		WindowStart: c.SlotStart,
		WindowEnd:   c.SlotEnd,
		Width:       c.SlotWidth,
		Capacity:    c.SlotCapacity,
	}
}

// Validate checks the schedule produces at least one whole bucket.
func (c Config) Validate() error {
	if c.Width <= 0 {
		return errors.New("slot width must be positive")
	}
	if c.Capacity <= 0 {
		return errors.New("slot capacity must be positive")
	}
	if c.WindowEnd <= c.WindowStart {
		return errors.New("slot window end must be after start")
	}
	if (c.WindowEnd-c.WindowStart)%c.Width != 0 {
		return fmt.Errorf("slot window %s is not a multiple of %s", c.WindowEnd-c.WindowStart, c.Width)
	}
	return nil
}

// Count returns the number of buckets in the window.
func (c Config) Count() int {
	return int((c.WindowEnd - c.WindowStart) / c.Width)
}

// Slot is one pickup bucket together with its load for a given day.
type Slot struct {
	Index     int       `json:"index"`
	Label     string    `json:"slot"`
	Display   string    `json:"time"`
	Start     time.Time `json:"startTime"`
	End       time.Time `json:"endTime"`
	Count     int       `json:"count"`
	Capacity  int       `json:"capacity"`
	Remaining int       `json:"remaining"`
	Available bool      `json:"available"`
}

// Allocator assigns orders to buckets. It holds no order state.
type Allocator struct {
	cfg Config
}

// New builds an Allocator for a validated schedule.
func New(cfg Config) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Allocator{cfg: cfg}, nil
}

// Config returns the schedule the allocator was built with.
func (a *Allocator) Config() Config {
	return a.cfg
}

// List returns every bucket of day in chronological order with the number of
// orders created on that day already assigned to it.
func (a *Allocator) List(orders []entity.Order, day time.Time) []Slot {
	counts := make(map[string]int, a.cfg.Count())
	for _, o := range orders {
		if SameDay(o.CreatedAt, day) {
			counts[o.Slot]++
		}
	}

	slots := a.schedule(day)
	for i := range slots {
		n := counts[slots[i].Label]
		slots[i].Count = n
		slots[i].Remaining = max(0, a.cfg.Capacity-n)
		slots[i].Available = n < a.cfg.Capacity
	}
	return slots
}

// NextAvailable returns the earliest bucket below capacity. The boolean is
// false when every bucket of the day is full.
func (a *Allocator) NextAvailable(orders []entity.Order, day time.Time) (Slot, bool) {
	for _, s := range a.List(orders, day) {
		if s.Available {
			return s, true
		}
	}
	return Slot{}, false
}

// Lookup resolves a bucket label to its schedule on day. Counts are left zero.
func (a *Allocator) Lookup(label string, day time.Time) (Slot, bool) {
	for _, s := range a.schedule(day) {
		if s.Label == label {
			return s, true
		}
	}
	return Slot{}, false
}

func (a *Allocator) schedule(day time.Time) []Slot {
	n := a.cfg.Count()
	slots := make([]Slot, 0, n)
	for i := 0; i < n; i++ {
		from := a.cfg.WindowStart + time.Duration(i)*a.cfg.Width
		to := from + a.cfg.Width
		label := config.FormatClock(from)
		slots = append(slots, Slot{
			Index:    i,
			Label:    label,
			Display:  label + " - " + config.FormatClock(to),
			Start:    At(day, from),
			End:      At(day, to),
			Capacity: a.cfg.Capacity,
		})
	}
	return slots
}

// StartOfDay returns local midnight of t in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// At returns the wall-clock time offset from midnight on day's calendar date,
// in day's location. Offsets are read as hours and minutes on the clock, so
// DST transitions do not shift them.
func At(day time.Time, offset time.Duration) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(offset/time.Hour), int(offset%time.Hour/time.Minute), 0, 0, day.Location())
}

// SameDay reports whether a falls on the calendar day of ref, in ref's location.
func SameDay(a, ref time.Time) bool {
	ay, am, ad := a.In(ref.Location()).Date()
	ry, rm, rd := ref.Date()
	return ay == ry && am == rm && ad == rd
}
