// Package main is a command-line client for one-shot engine operations.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/easeaico/persona-engine/internal/config"
	"github.com/easeaico/persona-engine/internal/engine"
	"github.com/easeaico/persona-engine/internal/types"
)

var (
	cfg     config.Config
	verbose bool
	persist bool
)

var rootCmd = &cobra.Command{
	Use:   "personactl",
	Short: "Persona reply engine CLI",
	Long:  `Builds the engine from the configured corpus and runs single replies, reloads and reports.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		level := cfg.SlogLevel()
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return cfg.Validate()
	},
	SilenceUsage: true,
}

var replyCmd = &cobra.Command{
	Use:   "reply <message>",
	Short: "Generate one reply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		personaName, _ := cmd.Flags().GetString("persona")
		userID, _ := cmd.Flags().GetString("user")
		method, _ := cmd.Flags().GetString("method")
		maxLength, _ := cmd.Flags().GetInt("max-length")
		rate, _ := cmd.Flags().GetFloat64("rate")

		ctx := cmd.Context()
		eng, done, err := openEngine(ctx, func(o *engine.Options) {
			if method != "" {
				o.SelectionMethod = method
			}
		})
		if err != nil {
			return err
		}
		defer done()

		resp, err := eng.Reply(ctx, types.Request{Persona: personaName, Message: args[0], UserID: userID, MaxLength: maxLength})
		if err != nil {
			return fmt.Errorf("failed to reply: %w", err)
		}
		if rate >= 0 {
			if err := eng.RecordFeedback(ctx, rate, resp.Strategy, userID); err != nil {
				return fmt.Errorf("failed to record feedback: %w", err)
			}
		}
		return printJSON(resp)
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Build every index from the configured sources and report",
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := engine.BuildIndexSet(engine.OptionsFromConfig(cfg).Sources)
		if err != nil {
			return fmt.Errorf("failed to build indices: %w", err)
		}
		return printJSON(set.Report)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show engine statistics, including restored learned state",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, done, err := openEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer done()
		return printJSON(eng.Stats())
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset-bandit [arm]",
	Short: "Reset one bandit arm, or all arms and contexts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !persist {
			return fmt.Errorf("reset-bandit needs --persist to have any effect")
		}
		eng, done, err := openEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer done()
		arm := ""
		if len(args) == 1 {
			arm = args[0]
		}
		eng.ResetBandit(arm)
		fmt.Println("bandit reset")
		return nil
	},
}

// openEngine builds an engine and, with --persist, restores learned state
// before and checkpoints it after the command.
func openEngine(ctx context.Context, mutate func(*engine.Options)) (*engine.Engine, func(), error) {
	opts := engine.OptionsFromConfig(cfg)
	if mutate != nil {
		mutate(&opts)
	}
	closeStores := func() {}
	if persist {
		stores, closer, err := engine.OpenStores(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		opts.Stores, closeStores = stores, closer
	}

	eng, err := engine.New(opts)
	if err != nil {
		closeStores()
		return nil, nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	if !persist {
		return eng, closeStores, nil
	}
	if err := eng.Restore(ctx); err != nil {
		slog.Warn("restore incomplete", "error", err)
	}
	return eng, func() {
		if err := eng.Checkpoint(context.WithoutCancel(ctx)); err != nil {
			slog.Error("checkpoint failed", "error", err)
		}
		closeStores()
	}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().BoolVar(&persist, "persist", false, "Restore and checkpoint learned state via DATABASE_URL / REDIS_ADDR")

	replyCmd.Flags().StringP("persona", "p", "Elio", "Persona to answer as")
	replyCmd.Flags().StringP("user", "u", "", "User id for personalization")
	replyCmd.Flags().StringP("method", "m", "", "Selection method: best, weighted_random or thompson")
	replyCmd.Flags().Int("max-length", 0, "Maximum generated tokens")
	replyCmd.Flags().Float64("rate", -1, "Record this reward in [0,1] for the chosen strategy")

	rootCmd.AddCommand(replyCmd, reloadCmd, statsCmd, resetCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
