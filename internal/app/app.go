package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/canteen/internal/config"
	"github.com/Additional-Code/canteen/internal/database"
	"github.com/Additional-Code/canteen/internal/logger"
	"github.com/Additional-Code/canteen/internal/messaging"
	"github.com/Additional-Code/canteen/internal/observability"
	grpcserver "github.com/Additional-Code/canteen/internal/server/grpc"
	httpserver "github.com/Additional-Code/canteen/internal/server/http"
	serviceorder "github.com/Additional-Code/canteen/internal/service/order"
	"github.com/Additional-Code/canteen/internal/store"
	transporthttp "github.com/Additional-Code/canteen/internal/transport/http"
	"github.com/Additional-Code/canteen/internal/worker"
	workerorder "github.com/Additional-Code/canteen/internal/worker/order"
)

// Core provides the foundational modules shared across executables: the
// configured store, the order ledger restored from it and the order service.
var Core = fx.Options(
	config.Module,
	database.Module,
	store.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	serviceorder.Module,
)

// HTTP wires the HTTP API and the gRPC health endpoint on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)
