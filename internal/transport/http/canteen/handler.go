// Package canteen serves read-only views of the day: slots, waitlist,
// admission status and statistics.
package canteen

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/canteen/internal/config"
	"github.com/Additional-Code/canteen/internal/dto"
	"github.com/Additional-Code/canteen/internal/presentation/http/response"
	service "github.com/Additional-Code/canteen/internal/service/order"
	"github.com/Additional-Code/canteen/pkg/errorbank"
)

// Handler exposes canteen views over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a canteen Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.GET("/slots", h.slots)
	e.GET("/waitlist", h.waitlist)
	e.GET("/status", h.status)

	g := e.Group("/stats")
	g.GET("/today", h.today)
	g.GET("/hourly", h.hourly)
	g.GET("/weekly", h.weekly)
	g.GET("/meal-types", h.mealTypes)
	g.GET("/top-customers", h.topCustomers)
	g.GET("/peak-hours", h.peakHours)
}

func (h *Handler) slots(c echo.Context) error {
	slots := h.svc.Slots(c.Request().Context())
	return response.New(c).WithData(slots).WithTotal(len(slots)).Build()
}

func (h *Handler) waitlist(c echo.Context) error {
	entries := h.svc.Waitlist(c.Request().Context())
	return response.New(c).WithData(entries).WithTotal(len(entries)).Build()
}

func (h *Handler) status(c echo.Context) error {
	st := h.svc.Status(c.Request().Context())
	return response.New(c).WithData(dto.StatusResponse{
		Open:         st.Open,
		Now:          st.Now,
		Cutoff:       config.FormatClock(st.Policy.Cutoff),
		MaxOrders:    st.Policy.MaxOrders,
		SlotCapacity: st.SlotCapacity,
		Price:        st.Policy.Price,
		SpotsLeft:    st.SpotsLeft,
	}).Build()
}

func (h *Handler) today(c echo.Context) error {
	return response.New(c).WithData(h.svc.TodayStats(c.Request().Context())).Build()
}

func (h *Handler) hourly(c echo.Context) error {
	return response.New(c).WithData(h.svc.Hourly(c.Request().Context())).Build()
}

func (h *Handler) weekly(c echo.Context) error {
	return response.New(c).WithData(h.svc.Weekly(c.Request().Context())).Build()
}

func (h *Handler) mealTypes(c echo.Context) error {
	return response.New(c).WithData(h.svc.MealTypes(c.Request().Context())).Build()
}

func (h *Handler) topCustomers(c echo.Context) error {
	b := response.New(c)
	n, err := limitParam(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(h.svc.TopCustomers(c.Request().Context(), n)).Build()
}

func (h *Handler) peakHours(c echo.Context) error {
	b := response.New(c)
	n, err := limitParam(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(h.svc.PeakHours(c.Request().Context(), n)).Build()
}

// limitParam reads ?n=; absent means the service default.
func limitParam(c echo.Context) (int, error) {
	raw := c.QueryParam("n")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errorbank.BadRequest("n must be a non-negative integer", errorbank.WithCode("invalid_request"))
	}
	return n, nil
}
