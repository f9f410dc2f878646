package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"sysutils-mcp/internal/server"
	"sysutils-mcp/internal/telemetry"
	"sysutils-mcp/internal/tools/sysinfo"
)

// Build information - set by ldflags during build
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const (
	cmdServe   = "serve"
	cmdInfo    = "info"
	cmdVersion = "version"
	cmdHelp    = "help"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd, configFile, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "sysutils-mcp: %v\n\n", err)
		printUsage(stderr)
		return 1
	}

	switch cmd {
	case cmdVersion:
		fmt.Fprintf(stdout, "sysutils-mcp %s\n", server.Version)
		fmt.Fprintf(stdout, "  Build time: %s\n", BuildTime)
		fmt.Fprintf(stdout, "  Git commit: %s\n", GitCommit)
		return 0
	case cmdHelp:
		printUsage(stdout)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The report ignores the server configuration.
	if cmd == cmdInfo {
		logger := newLogger(infoConfig(), stderr)
		report, err := sysinfo.NewCollector(logger).Run(ctx, sysinfo.Request{})
		if err != nil {
			logger.Error().Err(err).Msg("Failed to collect system information")
			return 1
		}
		fmt.Fprint(stdout, report)
		return 0
	}

	cfg, err := server.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(stderr, "sysutils-mcp: %v\n", err)
		return 1
	}
	logger := newLogger(cfg, stderr)

	if err := serve(ctx, cfg, logger, stdin, stdout); err != nil {
		logger.Error().Err(err).Msg("Server stopped with error")
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg server.Config, logger zerolog.Logger, stdin io.Reader, stdout io.Writer) error {
	logger.Info().
		Str("version", server.Version).
		Str("commit", GitCommit).
		Msg("Starting MCP server on stdio")

	metrics := telemetry.NewMetrics()
	srv, err := server.New(cfg, logger, server.WithMetrics(metrics))
	if err != nil {
		return errors.Wrap(err, "create server")
	}

	if cfg.AdminAddr != "" {
		collector := telemetry.NewSystemMetricsCollector(metrics, logger, cfg.MetricsInterval)
		go collector.Start(ctx)
		defer collector.Stop()

		admin := &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           srv.AdminHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.AdminAddr).Msg("Starting admin server")
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Admin server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
			defer cancel()
			if err := admin.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("Admin server shutdown")
			}
		}()
	}

	return srv.Run(ctx, stdin, stdout)
}

// parseArgs returns the command and the optional config file.
func parseArgs(args []string) (cmd, configFile string, err error) {
	cmd = cmdServe
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--version" || arg == "-v" || arg == "version":
			return cmdVersion, "", nil
		case arg == "--help" || arg == "-h" || arg == "help":
			return cmdHelp, "", nil
		case arg == "info":
			cmd = cmdInfo
		case arg == "--config":
			if i+1 >= len(args) {
				return "", "", errors.New("--config requires a file")
			}
			i++
			configFile = args[i]
		case strings.HasPrefix(arg, "--config="):
			configFile = strings.TrimPrefix(arg, "--config=")
		default:
			return "", "", errors.Newf("unknown argument %q", arg)
		}
	}
	return cmd, configFile, nil
}

// infoConfig is DefaultConfig with the log level taken from the environment
// when it parses.
func infoConfig() server.Config {
	cfg := server.DefaultConfig()
	if v, ok := os.LookupEnv(server.EnvLogLevel); ok {
		v = strings.ToLower(strings.TrimSpace(v))
		if _, err := zerolog.ParseLevel(v); err == nil && v != "" {
			cfg.LogLevel = v
		}
	}
	return cfg
}

func newLogger(cfg server.Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := w
	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.Name).
		Logger()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "sysutils-mcp - MCP server for system information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: sysutils-mcp [info] [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  info             Print the system information report and exit")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  --config FILE    Load configuration from a YAML file")
	fmt.Fprintln(w, "  --version, -v    Print version information")
	fmt.Fprintln(w, "  --help, -h       Print this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintf(w, "  %s    Configuration file\n", server.EnvConfigFile)
	fmt.Fprintf(w, "  %s    trace|debug|info|warn|error|disabled\n", server.EnvLogLevel)
	fmt.Fprintf(w, "  %s   json|console\n", server.EnvLogFormat)
	fmt.Fprintf(w, "  %s   Serve health, metrics and tools over HTTP\n", server.EnvAdminAddr)
	fmt.Fprintf(w, "  %s Concurrent tool calls\n", server.EnvMaxInFlight)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Without a command the server speaks MCP over stdin/stdout.")
}
