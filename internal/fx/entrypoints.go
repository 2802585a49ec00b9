package fx

import (
	"go.uber.org/fx"

	httpFX "github.com/sp3dr4/webcache/internal/fx/http"
)

// HTTPServerModules combines all modules needed for HTTP server entrypoint
var HTTPServerModules = fx.Options(
	CoreModules,
	httpFX.HTTPModule,
	httpFX.HTTPLifecycleModule,
)

// CLIModules combines the modules needed by one-shot command line entrypoints
var CLIModules = fx.Options(
	CoreModules,
	fx.Decorate(ProvideCLILogger),
	fx.NopLogger,
)
