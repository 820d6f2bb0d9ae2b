package ledger

import (
	"sort"

	"github.com/Additional-Code/canteen/internal/entity"
	"github.com/Additional-Code/canteen/internal/slot"
)

// Stats summarises today's orders.
type Stats struct {
	TotalOrders    int `json:"totalOrders"`
	PaidOrders     int `json:"paidOrders"`
	UnpaidOrders   int `json:"unpaidOrders"`
	PendingOrders  int `json:"pendingOrders"`
	ServedOrders   int `json:"servedOrders"`
	AwaitingPickup int `json:"awaitingPickup"`
	Revenue        int `json:"revenue"`
	WaitlistCount  int `json:"waitlistCount"`
	SpotsLeft      int `json:"spotsLeft"`
}

// DayStat is one day of the weekly breakdown.
type DayStat struct {
	Date    string `json:"date"`
	Label   string `json:"label"`
	Orders  int    `json:"orders"`
	Revenue int    `json:"revenue"`
}

// CustomerCount is one row of the top customers ranking.
type CustomerCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// HourCount is the number of orders placed during one hour of the day.
type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// MealCount is the number of orders for one meal type.
type MealCount struct {
	MealType entity.MealType `json:"mealType"`
	Count    int             `json:"count"`
}

const (
	defaultTopCustomers = 5
	defaultPeakHours    = 3
)

// TodayStats counts today's orders by payment and pickup state.
func (l *Ledger) TodayStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	var s Stats
	for _, o := range l.orders {
		if !slot.SameDay(o.CreatedAt, now) {
			continue
		}
		s.TotalOrders++
		switch o.PaymentStatus {
		case entity.PaymentPaid:
			s.PaidOrders++
		case entity.PaymentPending:
			s.PendingOrders++
		default:
			s.UnpaidOrders++
		}
		if o.Served {
			s.ServedOrders++
		} else {
			s.AwaitingPickup++
		}
	}
	s.Revenue = s.PaidOrders * l.policy.Price
	s.WaitlistCount = len(l.waitlist)
	s.SpotsLeft = max(0, l.policy.MaxOrders-s.TotalOrders)
	return s
}

// HourlyDistribution buckets today's orders by the hour they were placed.
func (l *Ledger) HourlyDistribution() [24]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hourly()
}

func (l *Ledger) hourly() [24]int {
	now := l.clock()
	var hours [24]int
	for _, o := range l.orders {
		if slot.SameDay(o.CreatedAt, now) {
			hours[o.CreatedAt.In(now.Location()).Hour()]++
		}
	}
	return hours
}

// WeeklyDistribution returns order counts and paid revenue for the trailing
// seven days, oldest first and today last.
func (l *Ledger) WeeklyDistribution() []DayStat {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := slot.StartOfDay(l.clock())
	days := make([]DayStat, 0, 7)
	for i := 6; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		ds := DayStat{
			Date:  day.Format("2006-01-02"),
			Label: day.Format("Mon, Jan 2"),
		}
		for _, o := range l.orders {
			if !slot.SameDay(o.CreatedAt, day) {
				continue
			}
			ds.Orders++
			if o.PaymentStatus == entity.PaymentPaid {
				ds.Revenue += o.Amount
			}
		}
		days = append(days, ds)
	}
	return days
}

// TopCustomers ranks user names by order count over the whole history. Ties
// keep the order in which names were first seen. n <= 0 means 5.
func (l *Ledger) TopCustomers(n int) []CustomerCount {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 {
		n = defaultTopCustomers
	}
	index := make(map[string]int)
	var ranking []CustomerCount
	for _, o := range l.orders {
		i, ok := index[o.UserName]
		if !ok {
			i = len(ranking)
			index[o.UserName] = i
			ranking = append(ranking, CustomerCount{Name: o.UserName})
		}
		ranking[i].Count++
	}
	sort.SliceStable(ranking, func(i, j int) bool { return ranking[i].Count > ranking[j].Count })
	if len(ranking) > n {
		ranking = ranking[:n]
	}
	return ranking
}

// PeakHours returns the n busiest hours of today, earliest first on ties.
// Hours without orders are omitted. n <= 0 means 3.
func (l *Ledger) PeakHours(n int) []HourCount {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 {
		n = defaultPeakHours
	}
	var peaks []HourCount
	for h, c := range l.hourly() {
		if c > 0 {
			peaks = append(peaks, HourCount{Hour: h, Count: c})
		}
	}
	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].Count > peaks[j].Count })
	if len(peaks) > n {
		peaks = peaks[:n]
	}
	return peaks
}

// MealTypeBreakdown counts orders per meal type over the whole history.
func (l *Ledger) MealTypeBreakdown() []MealCount {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []MealCount{{MealType: entity.MealVeg}, {MealType: entity.MealNonVeg}}
	for _, o := range l.orders {
		for i := range out {
			if out[i].MealType == o.MealType {
				out[i].Count++
			}
		}
	}
	return out
}
