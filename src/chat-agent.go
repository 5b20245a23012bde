package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stake-plus/chat-agent/src/agent"
	"github.com/stake-plus/chat-agent/src/commands"
	"github.com/stake-plus/chat-agent/src/config"
	"github.com/stake-plus/chat-agent/src/data"
	"github.com/stake-plus/chat-agent/src/discord"
	"github.com/stake-plus/chat-agent/src/logging"
	"github.com/stake-plus/chat-agent/src/status"
)

type flags struct {
	token      string
	prefix     string
	guildID    string
	logFile    string
	logLevel   string
	redisURL   string
	statusAddr string
	noSync     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "chat-agent",
		Short: "Run the chat agent",
		Long: `Connects to Discord, loads the feature extensions, publishes slash commands
and serves both prefix and slash commands until interrupted.

Settings resolve from the MySQL settings table (when MYSQL_DSN is set), then
the environment, then defaults. Flags override both.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.token, "token", "", "bot token (overrides DISCORD_TOKEN)")
	fl.StringVar(&f.prefix, "prefix", "", "prefix for legacy commands")
	fl.StringVar(&f.guildID, "guild", "", "publish slash commands to this guild only")
	fl.StringVar(&f.logFile, "log-file", "", "log file path")
	fl.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fl.StringVar(&f.redisURL, "redis", "", "redis URL for shared cooldowns")
	fl.StringVar(&f.statusAddr, "status-addr", "", "listen address of the status endpoint")
	fl.BoolVar(&f.noSync, "no-sync", false, "skip publishing slash commands")
	return cmd
}

// resolveConfig layers explicitly set flags over the loaded settings.
func resolveConfig(cmd *cobra.Command, f flags) config.Base {
	cfg := config.LoadBase()
	set := cmd.Flags().Changed

	if set("token") {
		cfg.Token = f.token
	}
	if set("prefix") {
		cfg.Prefix = f.prefix
	}
	if set("guild") {
		cfg.GuildID = f.guildID
	}
	if set("log-file") {
		cfg.LogFile = f.logFile
	}
	if set("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if set("redis") {
		cfg.RedisURL = f.redisURL
	}
	if set("status-addr") {
		cfg.StatusAddr = f.statusAddr
	}
	if f.noSync {
		cfg.SyncCommands = false
	}
	return cfg
}

func run(ctx context.Context, cmd *cobra.Command, f flags) error {
	stderr := cmd.ErrOrStderr()

	if dsn := data.GetMySQLDSN(); dsn != "" {
		loadSettings(dsn, stderr)
	}

	cfg := resolveConfig(cmd, f)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "Error: DISCORD_TOKEN environment variable not set!")
		return err
	}

	log, closeLog, err := logging.New(logging.Options{
		File:    cfg.LogFile,
		Level:   cfg.LogLevel,
		Console: stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return err
	}
	defer closeLog()

	cooldowns, closeCooldowns := newCooldowns(ctx, cfg.RedisURL, log)
	defer closeCooldowns()

	bot := agent.New(agent.Config{
		Token:        cfg.Token,
		Prefix:       cfg.Prefix,
		GuildID:      cfg.GuildID,
		SyncCommands: cfg.SyncCommands,
		Cooldowns:    cooldowns,
	}, log)

	if cfg.StatusAddr != "" {
		go func() {
			if err := status.Serve(ctx, cfg.StatusAddr, bot.State(), log.Named("status")); err != nil {
				log.Error("Status endpoint stopped", zap.Error(err))
			}
		}()
	}

	if err := bot.Run(ctx, discord.Factory(log.Named("discord"))); err != nil {
		log.Error("Fatal error", zap.Error(err))
		return err
	}
	return nil
}

// loadSettings fills the settings cache from MySQL. Failures fall back to the
// environment.
func loadSettings(dsn string, stderr io.Writer) {
	boot, closeBoot, err := logging.New(logging.Options{Console: stderr})
	if err != nil {
		return
	}
	defer closeBoot()

	db, err := data.ConnectMySQL(dsn, boot.Named("data"))
	if err != nil {
		boot.Warn("Settings database unavailable, using environment", zap.Error(err))
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := data.LoadSettings(db); err != nil {
		boot.Warn("Failed to load settings, using environment", zap.Error(err))
	}
}

// newCooldowns picks the Redis store when a URL is configured and reachable.
func newCooldowns(ctx context.Context, url string, log *zap.Logger) (commands.CooldownStore, func()) {
	if url == "" {
		return commands.NewMemoryCooldowns(), func() {}
	}
	rdb, err := data.ConnectRedis(ctx, url)
	if err != nil {
		log.Warn("Redis unavailable, using in-memory cooldowns", zap.Error(err))
		return commands.NewMemoryCooldowns(), func() {}
	}
	return commands.NewRedisCooldowns(rdb, "chat-agent:cooldown:"), func() { _ = rdb.Close() }
}
