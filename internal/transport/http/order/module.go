package order

import "go.uber.org/fx"

// Module registers the order handlers on the shared echo instance.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)
