package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/and161185/arcadia/internal/config"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// NewRootCmd creates the root command of the arcadia CLI.
func NewRootCmd(deps Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "arcadia",
		Short: "Arcadia - token-metered arcade",
		Long: `Arcadia runs an arcade where players spend tokens to play catalog
and community games, earn achievements and climb leaderboards.
Configuration comes from the environment (see check-config).`,
		Version:      version + " (" + buildDate + ")",
		SilenceUsage: true,
	}

	cmd.AddCommand(
		newMigrateCmd(),
		newCheckConfigCmd(),
		newSeedCmd(deps),
		newMaintenanceCmd(deps),
		newAuditCmd(deps),
		newRegisterCmd(deps),
		newLoginCmd(deps),
		newLogoutCmd(deps),
		newWhoamiCmd(deps),
		newPasswdCmd(deps),
		newGamesCmd(deps),
		newPlayCmd(deps),
		newBuyCmd(deps),
		newLeaderboardCmd(deps),
		newStatsCmd(deps),
		newHistoryCmd(deps),
		newPublishCmd(deps),
	)
	return cmd
}

// withRuntime loads configuration, opens the runtime and runs fn with it.
func withRuntime(cmd *cobra.Command, deps Deps, fn func(ctx context.Context, rt *runtime) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime(ctx, cfg, deps)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

// withSession is withRuntime for commands that need a logged-in user.
func withSession(cmd *cobra.Command, deps Deps, fn func(ctx context.Context, rt *runtime, tok string) error) error {
	tf, err := loadToken(deps.Now())
	if err != nil {
		return err
	}
	return withRuntime(cmd, deps, func(ctx context.Context, rt *runtime) error {
		return fn(ctx, rt, tf.AccessToken)
	})
}

func printf(cmd *cobra.Command, format string, a ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, a...)
}
