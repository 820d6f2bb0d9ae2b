package order

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/canteen/internal/dto"
	"github.com/Additional-Code/canteen/internal/entity"
	"github.com/Additional-Code/canteen/internal/ledger"
	"github.com/Additional-Code/canteen/internal/presentation/http/response"
	service "github.com/Additional-Code/canteen/internal/service/order"
	"github.com/Additional-Code/canteen/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/canteen/transport/http/order")

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo group.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/current", h.current)
	g.GET("/users/:userId", h.byUser)
	g.POST("/payments", h.bulkPayment)
	g.GET("/:id", h.getByID)
	g.PATCH("/:id/payment", h.updatePayment)
	g.POST("/:id/serve", h.serve)
	g.DELETE("/:id", h.cancel)

	e.POST("/scan", h.scan)
}

type createRequest struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Email     string `json:"email"`
	CollegeID string `json:"collegeId"`
	MealType  string `json:"mealType"`
}

type paymentRequest struct {
	Status string `json:"status"`
}

type bulkPaymentRequest struct {
	IDs    []int64 `json:"ids"`
	Status string  `json:"status"`
}

type scanRequest struct {
	Code string `json:"code"`
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload createRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create")
	span.SetAttributes(attribute.String("user.id", payload.UserID))
	defer span.End()

	res, err := h.svc.Create(ctx, ledger.Request{
		UserID:    payload.UserID,
		UserName:  payload.UserName,
		Email:     payload.Email,
		CollegeID: payload.CollegeID,
		MealType:  entity.MealType(payload.MealType),
	})
	if err != nil {
		return b.WithError(err).Build()
	}

	if res.Waitlisted {
		return b.WithStatus(http.StatusAccepted).WithData(dto.WaitlistResponse{
			Waitlisted: true,
			Position:   res.Position,
			Message:    "daily limit reached, you are on the waitlist",
		}).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(toDTO(*res.Order)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	orders, err := h.svc.List(c.Request().Context(), ledger.Filter{
		PaymentStatus: entity.PaymentStatus(c.QueryParam("paymentStatus")),
		Search:        c.QueryParam("q"),
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTOs(orders)).WithTotal(len(orders)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(toDTO(order)).Build()
}

func (h *Handler) byUser(c echo.Context) error {
	b := response.New(c)

	order, err := h.svc.ByUser(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTO(order)).Build()
}

func (h *Handler) current(c echo.Context) error {
	b := response.New(c)

	order, err := h.svc.Current(c.Request().Context())
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTO(order)).Build()
}

func (h *Handler) updatePayment(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload paymentRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.updatePayment", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.UpdatePayment(ctx, id, entity.PaymentStatus(payload.Status))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTO(order)).Build()
}

func (h *Handler) bulkPayment(c echo.Context) error {
	b := response.New(c)

	var payload bulkPaymentRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.bulkPayment", trace.WithAttributes(attribute.Int("orders.count", len(payload.IDs))))
	defer span.End()

	orders, err := h.svc.BulkUpdatePayment(ctx, payload.IDs, entity.PaymentStatus(payload.Status))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTOs(orders)).WithTotal(len(orders)).Build()
}

func (h *Handler) serve(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.serve", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Serve(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTO(order)).Build()
}

func (h *Handler) cancel(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.cancel", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	cancelled, err := h.svc.Cancel(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	out := dto.CancelResponse{Order: toDTO(cancelled.Order)}
	if cancelled.NextInLine != nil {
		name := cancelled.NextInLine.UserName
		out.NextInLine = &name
	}
	return b.WithData(out).Build()
}

func (h *Handler) scan(c echo.Context) error {
	b := response.New(c)

	var payload scanRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.scan")
	defer span.End()

	res, err := h.svc.Verify(ctx, payload.Code)
	if err != nil {
		return b.WithError(err).Build()
	}
	span.SetAttributes(attribute.String("scan.outcome", string(res.Outcome)))
	return b.WithData(dto.ScanResponse{
		Outcome: string(res.Outcome),
		Message: res.Message,
		Order:   toDTO(res.Order),
	}).WithMeta("servable", res.Outcome.Servable()).Build()
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errorbank.BadRequest("invalid id", errorbank.WithCode("invalid_request"), errorbank.WithCause(err))
	}
	return id, nil
}

func toDTO(order entity.Order) dto.OrderResponse {
	return dto.OrderResponse{
		ID:            order.ID,
		UserID:        order.UserID,
		UserName:      order.UserName,
		Email:         order.Email,
		CollegeID:     order.CollegeID,
		MealType:      string(order.MealType),
		Slot:          order.Slot,
		SlotDisplay:   order.SlotDisplay,
		Amount:        order.Amount,
		PaymentStatus: string(order.PaymentStatus),
		OrderStatus:   string(order.OrderStatus),
		Served:        order.Served,
		QRCode:        order.QRCode,
		CreatedAt:     order.CreatedAt,
		PaidAt:        order.PaidAt,
		ServedAt:      order.ServedAt,
	}
}

func toDTOs(orders []entity.Order) []dto.OrderResponse {
	out := make([]dto.OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toDTO(o))
	}
	return out
}
