package http

import (
	"go.uber.org/fx"

	canteentransport "github.com/Additional-Code/canteen/internal/transport/http/canteen"
	ordertransport "github.com/Additional-Code/canteen/internal/transport/http/order"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	canteentransport.Module,
)
