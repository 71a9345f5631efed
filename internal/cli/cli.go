// Package cli parses the pluginhost command line.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/srediag/plugin-lifecycle/internal/config"
	"github.com/srediag/plugin-lifecycle/internal/logging"
)

// ExitError carries the process exit code for a failure.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments on top of the file and environment
// configuration. It returns the resulting configuration, whether the program
// should exit cleanly, or an *ExitError.
func Parse(args []string, output io.Writer) (*config.Config, bool, error) {
	flagSet := flag.NewFlagSet("pluginhost", flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, `
pluginhost - runs lifecycle-managed modules.

Usage:
  pluginhost [options]

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to a TOML configuration file.")
	modulesDirFlag := flagSet.String("modules-dir", "", "Directory containing one sub-directory per module.")
	activateFlag := flagSet.String("activate", "", "Comma separated modules to activate at startup.")
	healthPortFlag := flagSet.Int("health-port", -1, "Port for the health and metrics server. 0 is disabled.")
	logLevelFlag := flagSet.String("log-level", "", "Logging level: trace, debug, info, warn or error.")
	logFormatFlag := flagSet.String("log-format", "", "Log output format: pretty, text or json.")
	hotReloadFlag := flagSet.Bool("hot-reload", false, "Update modules when their files change.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if flagSet.NArg() > 0 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected arguments: %s", strings.Join(flagSet.Args(), " "))}
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	set := map[string]bool{}
	flagSet.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["modules-dir"] {
		cfg.ModulesDir = *modulesDirFlag
	}
	if set["activate"] {
		cfg.Modules = splitList(*activateFlag)
	}
	if set["health-port"] {
		cfg.HealthPort = *healthPortFlag
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevelFlag
	}
	if set["log-format"] {
		cfg.LogFormat = *logFormatFlag
	}
	if set["hot-reload"] {
		cfg.HotReload = *hotReloadFlag
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	switch cfg.LogFormat {
	case "pretty", "text", "json":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'pretty', 'text' or 'json'"}
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: " + err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", cfg)
	return &cfg, false, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
