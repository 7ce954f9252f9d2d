package capability

import (
	"go.uber.org/fx"
)

var Module = fx.Module("capability.projector",
	fx.Provide(NewProjector),
)
