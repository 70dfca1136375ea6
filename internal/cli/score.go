package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/liveview"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/server"
)

// NewScoreCommand creates the score command group.
func NewScoreCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Change a live game's score",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <game-id> <home> <away>",
		Short: "Set both scores",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := parseScore(args[1])
			if err != nil {
				return err
			}
			away, err := parseScore(args[2])
			if err != nil {
				return err
			}
			return withGameView(cmd, rootOpts, args[0], func(ctx context.Context, v *liveview.View) error {
				return v.SetScore(ctx, args[0], home, away)
			})
		},
	})
	cmd.AddCommand(deltaCommand(rootOpts, "inc", "Add one point", (*liveview.View).IncrementScore))
	cmd.AddCommand(deltaCommand(rootOpts, "dec", "Take one point away, never below zero", (*liveview.View).DecrementScore))

	return cmd
}

func deltaCommand(rootOpts *RootOptions, use, short string, op func(*liveview.View, context.Context, string, domaingames.Team) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <game-id> <home|away>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			team, err := domaingames.ParseTeam(args[1])
			if err != nil {
				return err
			}
			return withGameView(cmd, rootOpts, args[0], func(ctx context.Context, v *liveview.View) error {
				return op(v, ctx, args[0], team)
			})
		},
	}
}

// withGameView runs fn against a view scoped to id and prints the game afterwards.
func withGameView(cmd *cobra.Command, rootOpts *RootOptions, id string, fn func(context.Context, *liveview.View) error) error {
	ctx := cmd.Context()
	cfg := rootOpts.cfg
	cfg.Sync.GameID = id

	backend, err := openBackend(ctx, cfg, rootOpts.logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	view := liveview.New(backend.Repo, backend.Feed, server.ViewOptions(cfg, rootOpts.logger, nil, nil))
	defer view.Stop()
	if err := view.Start(ctx); err != nil {
		return err
	}

	if err := fn(ctx, view); err != nil {
		return err
	}
	if g, ok := view.Game(id); ok {
		fmt.Fprintln(cmd.OutOrStdout(), formatGame(g))
	}
	return nil
}

func parseScore(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid score %q", raw)
	}
	return n, nil
}

func formatGame(g domaingames.Game) string {
	return fmt.Sprintf("%s %s %d - %d %s [%s]", g.ID, g.HomeTeam, g.Score.Home, g.Score.Away, g.AwayTeam, g.Status)
}
