package traceability

import (
	"github.com/smallbiznis/pipelineintel/internal/traceability/service"
	"go.uber.org/fx"
)

var Module = fx.Module("traceability.service",
	fx.Provide(service.New),
)
