package canteen

import "go.uber.org/fx"

// Module registers the slot, waitlist and reporting handlers on the shared echo instance.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)
