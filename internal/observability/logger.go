package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

// EnvironmentVar names the deployment environment stamped on server logs.
const EnvironmentVar = "THREADLINE_ENV"

var (
	// CLILogger is used for CLI commands (SIMPLE profile)
	CLILogger *logging.Logger

	// ServerLogger is used by the relay (STRUCTURED profile)
	ServerLogger *logging.Logger
)

// InitCLILogger initializes the CLI logger with SIMPLE profile
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}

	if verbose {
		logger.SetLevel(logging.DEBUG)
	}

	CLILogger = logger
}

// InitServerLogger initializes the relay logger: JSON on stderr with request
// correlation. namespace, when given, is attached to every entry.
func InitServerLogger(serviceName string, logLevel string, namespace ...string) {
	staticFields := make(map[string]any)
	if len(namespace) > 0 && namespace[0] != "" {
		staticFields["namespace"] = namespace[0]
	}

	logger, err := logging.New(serverLoggerConfig(serviceName, parseLogLevel(logLevel), environment(), staticFields))
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}

	ServerLogger = logger
}

func serverLoggerConfig(service, level, env string, static map[string]any) *logging.LoggerConfig {
	return &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: level,
		Service:      service,
		Environment:  env,
		StaticFields: static,
		Middleware: []logging.MiddlewareConfig{
			{
				Name:    "correlation",
				Enabled: true,
				Order:   100,
				Config:  make(map[string]any),
			},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:   "console",
				Format: "json",
				Console: &logging.ConsoleSinkConfig{
					Stream:   "stderr",
					Colorize: false,
				},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

func environment() string {
	if env := strings.TrimSpace(os.Getenv(EnvironmentVar)); env != "" {
		return env
	}
	return "production"
}

// parseLogLevel maps a configured level onto a logging severity name.
// Unknown values fall back to INFO.
func parseLogLevel(levelStr string) string {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// exitWithCodeStderr is used when no logger exists yet to report through.
func exitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	code := int(exitCode)
	detail := ""
	if info, ok := foundry.GetExitCodeInfo(exitCode); ok {
		code = info.Code
		detail = fmt.Sprintf(" (%s) - %s", info.Name, info.Description)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d%s\n", code, detail)
	os.Exit(code)
}
