package providers

import (
	"github.com/yunzhijiao/bridge/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	pdf.Module,
)
