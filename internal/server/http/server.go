package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/canteen/internal/config"
	"github.com/Additional-Code/canteen/internal/observability"
	"github.com/Additional-Code/canteen/internal/presentation/http/response"
	"github.com/Additional-Code/canteen/pkg/errorbank"
)

// Module exposes the HTTP server lifecycle to Fx.
var Module = fx.Module("http_server",
	fx.Provide(NewEcho),
	fx.Invoke(Run),
)

// NewEcho configures the Echo router with recovery, request ids, access logs
// and an error handler that renders the standard response envelope.
func NewEcho(cfg config.Config, obs *observability.Manager, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(accessLog(logger))

	if obs != nil && obs.TracingEnabled() {
		e.Use(otelecho.Middleware(cfg.Observability.ServiceName))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if obs != nil && obs.MetricsEnabled() && obs.MetricsHandler() != nil {
		e.GET(cfg.Observability.PrometheusPath, echo.WrapHandler(obs.MetricsHandler()))
	}

	return e
}

// errorHandler turns errors escaping handlers (unknown routes, bad methods,
// recovered panics) into errorbank envelopes.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var appErr *errorbank.AppError
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &appErr):
		case errors.As(err, &httpErr):
			msg := http.StatusText(httpErr.Code)
			switch {
			case httpErr.Code == http.StatusNotFound:
				appErr = errorbank.NotFound(msg, errorbank.WithCode("route_not_found"))
			case httpErr.Code == http.StatusMethodNotAllowed:
				appErr = errorbank.BadRequest(msg, errorbank.WithCode("method_not_allowed"))
			case httpErr.Code < http.StatusInternalServerError:
				appErr = errorbank.BadRequest(msg)
			default:
				appErr = errorbank.Internal(msg, errorbank.WithCause(err))
			}
			if err := response.New(c).WithStatus(httpErr.Code).WithError(appErr).Build(); err != nil {
				logger.Error("write error response", zap.Error(err))
			}
			return
		default:
			logger.Error("http request failed", zap.String("path", c.Path()), zap.Error(err))
			appErr = errorbank.From(err)
		}

		if err := response.New(c).WithError(appErr).Build(); err != nil {
			logger.Error("write error response", zap.Error(err))
		}
	}
}

func accessLog(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				logger.Warn("http request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("http request", fields...)
			return nil
		},
	})
}

// Run starts the HTTP server and ties it to the Fx lifecycle.
func Run(lc fx.Lifecycle, cfg config.Config, e *echo.Echo, logger *zap.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)

	server := &http.Server{
		Addr:              addr,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting HTTP server", zap.String("addr", addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping HTTP server")
			return server.Shutdown(ctx)
		},
	})
}
