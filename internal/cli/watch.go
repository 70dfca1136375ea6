package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/liveview"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/notify"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/server"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/store"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var game string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print live game changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := rootOpts.cfg
			if game != "" {
				cfg.Sync.GameID = game
			}

			backend, err := openBackend(ctx, cfg, rootOpts.logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			out := &syncWriter{w: cmd.OutOrStdout()}
			sink := notify.Fanout{
				notify.LogSink{Logger: rootOpts.logger},
				notify.SinkFunc(func(n notify.Notification) {
					out.printf("%s %s: %s\n", n.Kind, n.GameID, n.Detail)
				}),
			}

			view := liveview.New(backend.Repo, backend.Feed, server.ViewOptions(cfg, rootOpts.logger, nil, sink))
			defer view.Stop()

			view.Subscribe(func(e store.Event) {
				switch e.Type {
				case store.EventUpserted:
					out.printf("live %s\n", formatGame(e.Game))
				case store.EventRemoved:
					out.printf("gone %s\n", formatGame(e.Game))
				}
			})
			view.SubscribeConnection(func(s domaingames.ConnectionState) {
				out.printf("connection %s\n", s.Status)
			})

			if err := view.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&game, "game", "", "watch a single game")
	return cmd
}
