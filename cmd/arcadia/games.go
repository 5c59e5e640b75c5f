package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/and161185/arcadia/internal/model"
)

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func newGamesCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "games",
		Short: "List games and whether you can play them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, deps, func(ctx context.Context, rt *runtime, tok string) error {
				games, err := rt.arcade.Games(ctx, tok)
				if err != nil {
					return err
				}
				if len(games) == 0 {
					printf(cmd, "no games yet\n")
					return nil
				}
				w := table(cmd.OutOrStdout())
				fmt.Fprintln(w, "ID\tTITLE\tPOLICY\tCOST\tDIFFICULTY\tACCESS")
				for _, g := range games {
					access := "yes"
					if !g.CanPlay {
						access = g.Reason
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", g.Game.ID, g.Game.Title, g.Game.Policy, g.Cost, g.Game.Difficulty, access)
				}
				return w.Flush()
			})
		},
	}
}

func newPlayCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "play <game-id>",
		Short: "Play a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, err := uuid.FromString(args[0])
			if err != nil {
				return fmt.Errorf("bad game id %q: %w", args[0], err)
			}
			return withSession(cmd, deps, func(ctx context.Context, rt *runtime, tok string) error {
				out, err := rt.arcade.Play(ctx, tok, gameID)
				if err != nil {
					return err
				}
				printf(cmd, "playing %s (difficulty %d)\n", out.Session.GameTitle, out.Session.Difficulty)
				for _, ev := range out.Result.Events {
					printf(cmd, "  %s\n", ev)
				}
				status := "not completed"
				if out.Result.Completed {
					status = "completed"
				}
				printf(cmd, "score %d in %ds, %s\n", out.Result.Score, out.Result.DurationSeconds, status)
				printf(cmd, "charged %d tokens, %d left\n", out.Session.TokensCharged, out.Session.RemainingTokens)
				for _, a := range out.Achievements {
					printf(cmd, "achievement unlocked: %s\n", a)
				}
				if len(out.Flags) > 0 {
					r := rt.arcade.ThreatReport()
					printf(cmd, "flagged for review: %s (%d incident(s) this run)\n", strings.Join(out.Flags, ", "), r.TotalIncidents)
				}
				return nil
			})
		},
	}
}

func newBuyCmd(deps Deps) *cobra.Command {
	var tokens int64
	var paid string
	cmd := &cobra.Command{
		Use:   "buy",
		Short: "Credit purchased tokens to your account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := decimal.NewFromString(paid)
			if err != nil {
				return fmt.Errorf("bad --paid %q: %w", paid, err)
			}
			return withSession(cmd, deps, func(ctx context.Context, rt *runtime, tok string) error {
				if err := rt.arcade.Purchase(ctx, tok, tokens, amount); err != nil {
					return err
				}
				printf(cmd, "purchased %d tokens for %s\n", tokens, amount.StringFixed(2))
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&tokens, "tokens", 0, "number of tokens")
	cmd.Flags().StringVar(&paid, "paid", "0", "amount paid")
	_ = cmd.MarkFlagRequired("tokens")
	return cmd
}

func newLeaderboardCmd(deps Deps) *cobra.Command {
	var game string
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the best scores, overall or for one game",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var gameID *uuid.UUID
			if game != "" {
				id, err := uuid.FromString(game)
				if err != nil {
					return fmt.Errorf("bad --game %q: %w", game, err)
				}
				gameID = &id
			}
			return withRuntime(cmd, deps, func(ctx context.Context, rt *runtime) error {
				rows, err := rt.arcade.Leaderboard(ctx, gameID, limit)
				if err != nil {
					return err
				}
				w := table(cmd.OutOrStdout())
				fmt.Fprintln(w, "RANK\tPLAYER\tSCORE\tGAME\tDATE")
				for _, r := range rows {
					fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", r.Rank, r.Username, r.Score, r.GameTitle, r.Date)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&game, "game", "", "game id")
	cmd.Flags().IntVar(&limit, "limit", 10, "rows to show (max 100)")
	return cmd
}

func newStatsCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show your play statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, deps, func(ctx context.Context, rt *runtime, tok string) error {
				s, err := rt.arcade.Stats(ctx, tok)
				if err != nil {
					return err
				}
				printf(cmd, "sessions:        %d (%d completed, %.1f%%)\n", s.TotalSessions, s.CompletedSessions, s.CompletionRate)
				printf(cmd, "total score:     %d\n", s.TotalScore)
				printf(cmd, "tokens spent:    %d\n", s.TokensSpent)
				printf(cmd, "games created:   %d\n", s.GamesCreated)
				printf(cmd, "creator revenue: %s\n", s.CreatorRevenue.StringFixed(2))
				if len(s.Achievements) > 0 {
					names := make([]string, 0, len(s.Achievements))
					for _, a := range s.Achievements {
						names = append(names, a.Name)
					}
					printf(cmd, "achievements:    %s\n", strings.Join(names, ", "))
				}
				for _, b := range s.BestScores {
					printf(cmd, "best on %s: %d\n", b.GameTitle, b.BestScore)
				}
				return nil
			})
		},
	}
}

func newHistoryCmd(deps Deps) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show your recent token transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, deps, func(ctx context.Context, rt *runtime, tok string) error {
				txs, err := rt.arcade.Ledger(ctx, tok, limit)
				if err != nil {
					return err
				}
				w := table(cmd.OutOrStdout())
				fmt.Fprintln(w, "DATE\tKIND\tTOKENS\tAMOUNT\tDESCRIPTION")
				for _, t := range txs {
					fmt.Fprintf(w, "%s\t%s\t%+d\t%s\t%s\n",
						t.CreatedAt.UTC().Format("2006-01-02 15:04"), t.Kind, t.TokenDelta, t.Amount.StringFixed(2), t.Description)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "rows to show (max 100)")
	return cmd
}

func newPublishCmd(deps Deps) *cobra.Command {
	var g model.NewGame
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a community game; you earn a share of every paid play",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, deps, func(ctx context.Context, rt *runtime, tok string) error {
				game, err := rt.arcade.Publish(ctx, tok, g)
				if err != nil {
					return err
				}
				printf(cmd, "published %s (%s)\n", game.Title, game.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&g.Title, "title", "", "game title")
	cmd.Flags().StringVar(&g.Description, "description", "", "game description")
	cmd.Flags().Int64Var(&g.TokenPrice, "price", 1, "tokens per play")
	cmd.Flags().IntVar(&g.Difficulty, "difficulty", 1, "difficulty 1..5")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}
