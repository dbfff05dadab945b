package cmd

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	fulmenerrors "github.com/fulmenhq/gofulmen/errors"

	"github.com/threadline/threadline/internal/core/tracker"
)

// osExit is swapped in tests.
var osExit = os.Exit

// ExitCodeFor picks the exit code for a failed command. Tracker or relay
// failures and unreachable hosts are reported as an unavailable external
// service.
func ExitCodeFor(err error) foundry.ExitCode {
	var netErr net.Error
	switch {
	case err == nil:
		return foundry.ExitFailure
	case tracker.StatusCode(err) >= 500, errors.As(err, &netErr):
		return foundry.ExitExternalServiceUnavailable
	default:
		return foundry.ExitFailure
	}
}

// ExitWithCode logs err with the exit code's catalog entry and exits.
// logger may be nil before logging is set up.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	if logger == nil {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	code := int(exitCode)
	var fields []zap.Field
	if info, ok := foundry.GetExitCodeInfo(exitCode); ok {
		code = info.Code
		fields = append(fields,
			zap.Int("exit_code", info.Code),
			zap.String("exit_name", info.Name),
			zap.String("exit_category", info.Category))
	}

	var envelope *fulmenerrors.ErrorEnvelope
	if errors.As(err, &envelope) {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("correlation_id", envelope.CorrelationID))
		if len(envelope.Context) > 0 {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
	}
	fields = append(fields, zap.Error(err))

	logger.Error(msg, fields...)
	osExit(code)
}

// ExitWithCodeStderr reports to stderr and exits. Used before a logger exists
// and by main.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	osExit(writeExitReport(os.Stderr, exitCode, msg, err))
}

func writeExitReport(w io.Writer, exitCode foundry.ExitCode, msg string, err error) int {
	var envelope *fulmenerrors.ErrorEnvelope
	switch {
	case errors.As(err, &envelope):
		fmt.Fprintf(w, "FATAL: %s [%s]: %s (correlation: %s)\n", msg, envelope.Code, envelope.Message, envelope.CorrelationID)
	case err != nil:
		fmt.Fprintf(w, "FATAL: %s: %v\n", msg, err)
	default:
		fmt.Fprintf(w, "FATAL: %s\n", msg)
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(w, "Exit Code: %d\n", int(exitCode))
		return int(exitCode)
	}
	fmt.Fprintf(w, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	return info.Code
}
