package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/lucasspain13/out-sports-qc-sub001/internal/config"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/logging"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/server"
)

const serviceName = "livescores"

// Overridable for tests.
var (
	loadConfig  = config.Load
	openBackend = server.OpenBackend
)

// RootOptions holds global flags and the state resolved before any command runs.
type RootOptions struct {
	Version   string
	LogLevel  string
	LogFormat string

	cfg    config.Config
	logger *slog.Logger
}

// NewRootCommand creates the livescores command tree. Without a subcommand it serves.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version}

	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Live score synchronization service",
		Long:          "Serves a live view of in-progress games, reconciled from the database change channel.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), overrides LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json), overrides LOG_FORMAT")

	serve := NewServeCommand(opts)
	cmd.Flags().AddFlagSet(serve.Flags())
	cmd.RunE = serve.RunE

	cmd.AddCommand(serve)
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewScoreCommand(opts))

	return cmd
}

func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg := loadConfig()
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	o.cfg = cfg
	o.logger = logging.NewLogger(logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: serviceName,
		Version: o.Version,
		Output:  cmd.ErrOrStderr(),
	})
	return nil
}

// syncWriter serializes writes from listener goroutines onto command output.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}
