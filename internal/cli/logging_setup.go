package cli

import (
	"github.com/spf13/cobra"

	"github.com/rshade/jsoncache/internal/logging"
)

// setupLogging builds the CLI logger from the resolved config and stores it
// in the command context.
func (a *app) setupLogging(cmd *cobra.Command) {
	result := logging.NewLoggerWithPath(a.cfg.Logging.ToLoggingConfig())
	a.logResult = &result
	a.logger = logging.ComponentLogger(result.Logger, "cli")

	if result.FallbackUsed {
		logging.PrintFallbackWarning(cmd.ErrOrStderr(), result.FallbackReason)
	}

	cmd.SetContext(a.logger.WithContext(cmd.Context()))
}
