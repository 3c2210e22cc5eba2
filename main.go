package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"groupchat/app"
	"groupchat/config"
	"groupchat/mcp"
	"groupchat/model"
)

const Version = "v0.01.00"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "groupchat",
	Short: "Group chat where AI participants decide when to speak",
	Long: `groupchat runs a multi-user chat service. Each conversation carries AI
participants (moderator, planner, summarizer, educator) that read every new
message and decide whether to reply, based on mentions, their role and their
sensitivity level.`,
	SilenceUsage: true,
	Version:      Version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and the generation worker when enabled)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			return a.Serve(ctx)
		})
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the generation worker for queued requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			return a.Worker.Run(ctx)
		})
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the chat tools over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		// stdout carries the protocol
		cfg.Log.Format = "json"
		logger := config.NewLogger(cfg.Log, os.Stderr)

		a, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		tools := mcp.NewTools(a.Service, a.Engine, mcp.WithLogger(logger))
		return mcp.ServeStdio(mcp.NewServer(Version, tools))
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the settings file",
}

var initFromEnv bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented settings template if none exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.GetSettingsFilePath()
		}
		create := config.CreateDefault
		if initFromEnv {
			create = config.CreateFromEnv
		}
		created, err := create(path)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", path)
		}
		return nil
	},
}

var configTemplateCmd = &cobra.Command{
	Use:   "template",
	Short: "Print the settings template",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), config.GenerateConfigTemplate())
	},
}

var (
	decideRole        string
	decideSensitivity string
	decideMention     string
)

var decideCmd = &cobra.Command{
	Use:   "decide <message>",
	Short: "Show whether a participant would reply to a message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Storage.Driver = "memory"
		cfg.Provider.Type = "none"
		cfg.RateLimit.Backend = "memory"
		a, err := app.New(cmd.Context(), cfg, config.NewLogger(config.LogConfig{Level: "error"}, os.Stderr))
		if err != nil {
			return err
		}
		defer a.Close()

		p := model.AIParticipant{
			Role:          model.Role(decideRole),
			Sensitivity:   model.Sensitivity(decideSensitivity),
			CustomMention: decideMention,
		}.Normalize()
		latest := model.Message{Kind: model.KindHuman, Content: args[0]}
		d := a.Engine.Decide([]model.Message{latest}, p, args[0])

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"role": p.Role, "decision": d})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Settings file (default: platform config dir)")

	decideCmd.Flags().StringVarP(&decideRole, "role", "r", string(model.RoleModerator), "Participant role")
	decideCmd.Flags().StringVarP(&decideSensitivity, "sensitivity", "s", string(model.SensitivityConservative), "silent, conservative, balanced or proactive")
	decideCmd.Flags().StringVar(&decideMention, "mention", "", "Custom @alias")

	configInitCmd.Flags().BoolVar(&initFromEnv, "from-env", false, "Write the effective settings from the environment instead of the template")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configTemplateCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(decideCmd)
}

// withApp loads config, builds the app and runs fn until SIGINT or SIGTERM.
func withApp(parent context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := cfg.Logger()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close resources")
		}
	}()

	return fn(ctx, a)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
