// Package agent drives the startup state machine of the chat agent and owns
// the handlers the transport calls for gateway events.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/chat-agent/src/classify"
	"github.com/stake-plus/chat-agent/src/commands"
	"github.com/stake-plus/chat-agent/src/config"
	"github.com/stake-plus/chat-agent/src/embeds"
	"github.com/stake-plus/chat-agent/src/extensions"
	"go.uber.org/zap"
)

// Intents are the capability flags the extensions rely on: guild list,
// member list and message content.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent

// Stats describes the connection at the time of a Ready event.
type Stats struct {
	Username string
	Guilds   int
	Users    int
	Latency  time.Duration
}

// Gateway is the transport the agent runs on.
type Gateway interface {
	Configure(intents discordgo.Intent)
	SyncCommands(ctx context.Context, guildID string, defs []*discordgo.ApplicationCommand) (int, error)
	Open(ctx context.Context, h EventHandler) error
	Close() error

	Stats() Stats
	AvatarURL() string
	UpdateWatchStatus(name string) error

	SelfID() string
	UserChannelPermissions(userID, channelID string) (int64, error)
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) error
}

// GatewayFactory builds a gateway for token.
type GatewayFactory func(token string) (Gateway, error)

// EventHandler is the set of callbacks a Gateway delivers events to.
type EventHandler interface {
	OnReady(ctx context.Context)
	OnGuildJoin(ctx context.Context, ev GuildJoinEvent)
	OnMessage(ctx context.Context, s *discordgo.Session, m *discordgo.Message)
	OnInteraction(ctx context.Context, i *discordgo.Interaction, resp commands.Responder)
	OnCommandError(ctx context.Context, ev commands.ErrorEvent)
	OnInteractionError(ctx context.Context, ev commands.ErrorEvent)
	OnEvent(ctx context.Context, event string, err error)
}

// Config configures an Agent.
type Config struct {
	Token   string
	Prefix  string
	GuildID string
	// SyncCommands publishes the slash registry on startup.
	SyncCommands bool
	// Extensions defaults to extensions.Default.
	Extensions []string
	Cooldowns  commands.CooldownStore
}

// Agent is the lifecycle controller.
type Agent struct {
	cfg   Config
	log   *zap.Logger
	state *State

	legacy *commands.Router
	slash  *commands.InteractionRouter
	loader *extensions.Loader

	gw                Gateway
	legacyErrors      *classify.LegacyHandler
	interactionErrors *classify.InteractionHandler
	joins             *GuildNotifier

	now func() time.Time
}

var (
	_ EventHandler                = (*Agent)(nil)
	_ extensions.Host             = (*Agent)(nil)
	_ extensions.Remover          = (*Agent)(nil)
	_ commands.PermissionResolver = (*Agent)(nil)
)

// New returns an idle agent.
func New(cfg Config, log *zap.Logger) *Agent {
	if cfg.Extensions == nil {
		cfg.Extensions = extensions.Default
	}
	a := &Agent{
		cfg:   cfg,
		log:   log,
		state: &State{},
		now:   time.Now,
	}
	a.legacy = commands.NewRouter(commands.RouterConfig{
		Prefix:      cfg.Prefix,
		Permissions: a,
		Cooldowns:   cfg.Cooldowns,
		AgentID:     a.selfID,
		OnError:     a.OnCommandError,
		Logger:      log.Named("commands"),
	})
	a.slash = commands.NewInteractionRouter(commands.InteractionRouterConfig{
		Cooldowns: cfg.Cooldowns,
		OnError:   a.OnInteractionError,
		Logger:    log.Named("commands"),
	})
	a.loader = extensions.NewLoader(log.Named("extensions"), a)
	return a
}

// State returns the agent state.
func (a *Agent) State() *State { return a.state }

// Start runs the startup sequence up to opening the gateway connection.
// Only a missing token or an unusable transport is fatal; extension and
// command sync failures are logged and startup continues.
func (a *Agent) Start(ctx context.Context, newGateway GatewayFactory) error {
	if err := (config.Base{Token: a.cfg.Token}).Validate(); err != nil {
		a.state.setPhase(PhaseFailed)
		return err
	}
	a.log.Info("Starting bot setup...")

	a.state.setPhase(PhaseConfiguring)
	gw, err := newGateway(a.cfg.Token)
	if err != nil {
		a.state.setPhase(PhaseFailed)
		return fmt.Errorf("agent: create gateway: %w", err)
	}
	gw.Configure(Intents)
	a.gw = gw
	classifyLog := a.log.Named("classify")
	a.legacyErrors = classify.NewLegacyHandler(classifyLog, gw)
	a.interactionErrors = classify.NewInteractionHandler(classifyLog)
	a.joins = NewGuildNotifier(a.log, gw)

	a.state.setPhase(PhaseLoadingExtensions)
	a.state.setExtensions(a.loader.Load(ctx, a.cfg.Extensions))

	a.state.setPhase(PhaseSyncingCommands)
	if a.cfg.SyncCommands {
		a.syncCommands(ctx)
	}
	a.log.Info("Bot setup completed!")

	if err := gw.Open(ctx, a); err != nil {
		a.state.setPhase(PhaseFailed)
		return fmt.Errorf("agent: open gateway: %w", err)
	}
	return nil
}

func (a *Agent) syncCommands(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			a.log.Error(fmt.Sprintf("Failed to sync commands: panic: %v", rec))
		}
	}()
	n, err := a.gw.SyncCommands(ctx, a.cfg.GuildID, a.slash.Definitions())
	if err != nil {
		a.log.Error("Failed to sync commands: " + err.Error())
		return
	}
	a.log.Info(fmt.Sprintf("Synced %d command(s)", n))
}

// Stop closes the gateway and unloads extensions.
func (a *Agent) Stop(ctx context.Context) {
	if a.gw != nil {
		if err := a.gw.Close(); err != nil {
			a.log.Warn("Failed to close gateway", zap.Error(err))
		}
	}
	a.loader.Unload(ctx)
	if a.state.Phase() != PhaseFailed {
		a.state.setPhase(PhaseStopped)
	}
	a.log.Info("Bot stopped")
}

// Run starts the agent and blocks until ctx is cancelled.
func (a *Agent) Run(ctx context.Context, newGateway GatewayFactory) error {
	if err := a.Start(ctx, newGateway); err != nil {
		if !errors.Is(err, config.ErrMissingToken) {
			a.Stop(context.Background())
		}
		return err
	}
	<-ctx.Done()
	a.Stop(context.Background())
	return nil
}

// OnReady enters the Ready phase and announces it. It runs once per
// established connection.
func (a *Agent) OnReady(ctx context.Context) {
	defer a.recoverEvent(ctx, "ready")

	a.state.enterReady(a.now())
	a.announce()
}

// announce logs the status notification and refreshes the presence. Nothing
// in here may fail the transition to Ready.
func (a *Agent) announce() {
	defer func() {
		if rec := recover(); rec != nil {
			a.log.Debug("ready announcement aborted", zap.Any("panic", rec))
		}
	}()

	stats := a.gw.Stats()
	latency := int(math.Round(float64(stats.Latency) / float64(time.Millisecond)))

	n := embeds.New(embeds.Notification{
		Title:       "🤖 Bot Online",
		Description: fmt.Sprintf("**%s** is now online and ready!", stats.Username),
		Color:       embeds.ColorSuccess,
		Timestamp:   a.now().UTC(),
	}).
		WithField("Servers", fmt.Sprint(stats.Guilds), true).
		WithField("Users", fmt.Sprint(stats.Users), true).
		WithField("Latency", fmt.Sprintf("%dms", latency), true).
		WithThumbnail(a.avatarURL())
	a.state.setAnnouncement(n)

	a.log.Info("Bot is ready! Logged in as "+stats.Username,
		zap.Int("servers", stats.Guilds),
		zap.Int("users", stats.Users),
		zap.Int("latency_ms", latency),
	)

	if err := a.gw.UpdateWatchStatus(fmt.Sprintf("%d servers", stats.Guilds)); err != nil {
		a.log.Warn("Failed to update presence", zap.Error(err))
	}
}

func (a *Agent) avatarURL() (url string) {
	defer func() {
		if recover() != nil {
			url = ""
		}
	}()
	return a.gw.AvatarURL()
}

// OnGuildJoin welcomes the agent into a new guild.
func (a *Agent) OnGuildJoin(ctx context.Context, ev GuildJoinEvent) {
	defer a.recoverEvent(ctx, "guild_join")
	a.joins.Notify(ctx, ev)
}

// OnMessage routes prefix commands.
func (a *Agent) OnMessage(ctx context.Context, s *discordgo.Session, m *discordgo.Message) {
	defer a.recoverEvent(ctx, "message")
	a.legacy.Dispatch(ctx, s, m)
}

// OnInteraction routes slash commands.
func (a *Agent) OnInteraction(ctx context.Context, i *discordgo.Interaction, resp commands.Responder) {
	defer a.recoverEvent(ctx, "interaction")
	a.slash.Dispatch(ctx, i, resp)
}

// OnCommandError reports a prefix command failure.
func (a *Agent) OnCommandError(ctx context.Context, ev commands.ErrorEvent) {
	defer a.recoverEvent(ctx, "command_error")
	if a.legacyErrors != nil {
		a.legacyErrors.Handle(ctx, ev)
	}
}

// OnInteractionError reports a slash command failure.
func (a *Agent) OnInteractionError(ctx context.Context, ev commands.ErrorEvent) {
	defer a.recoverEvent(ctx, "interaction_error")
	if a.interactionErrors != nil {
		a.interactionErrors.Handle(ctx, ev)
	}
}

// OnEvent logs a failure that escaped an event handler.
func (a *Agent) OnEvent(_ context.Context, event string, err error) {
	a.log.Error("Error in event "+event, zap.Error(err), zap.Stack("stacktrace"))
}

func (a *Agent) recoverEvent(ctx context.Context, event string) {
	if rec := recover(); rec != nil {
		a.OnEvent(ctx, event, fmt.Errorf("panic: %v", rec))
	}
}

// AddCommand implements extensions.Host.
func (a *Agent) AddCommand(cmd *commands.Command) error { return a.legacy.Add(cmd) }

// AddSlashCommand implements extensions.Host.
func (a *Agent) AddSlashCommand(cmd *commands.SlashCommand) error { return a.slash.Add(cmd) }

// RemoveCommand implements extensions.Remover.
func (a *Agent) RemoveCommand(name string) { a.legacy.Remove(name) }

// RemoveSlashCommand implements extensions.Remover.
func (a *Agent) RemoveSlashCommand(name string) { a.slash.Remove(name) }

// UserChannelPermissions resolves permissions through the gateway state.
func (a *Agent) UserChannelPermissions(userID, channelID string) (int64, error) {
	if a.gw == nil {
		return 0, errors.New("agent: gateway not started")
	}
	return a.gw.UserChannelPermissions(userID, channelID)
}

func (a *Agent) selfID() string {
	if a.gw == nil {
		return ""
	}
	return a.gw.SelfID()
}
