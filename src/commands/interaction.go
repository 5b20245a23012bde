package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// SlashCommand is a native interaction command.
type SlashCommand struct {
	Definition *discordgo.ApplicationCommand

	UserPermissions  int64
	AgentPermissions int64
	Cooldown         time.Duration

	Run func(ctx *InteractionContext) error
}

// Name returns the registered command name.
func (c *SlashCommand) Name() string {
	if c == nil || c.Definition == nil {
		return ""
	}
	return c.Definition.Name
}

// Responder answers one interaction. Done reports whether a primary response
// (message or deferral) has already been sent.
type Responder interface {
	Done() bool
	Respond(data *discordgo.InteractionResponseData) error
	Defer(ephemeral bool) error
	Followup(params *discordgo.WebhookParams) error
}

// InteractionContext is handed to a running slash command.
type InteractionContext struct {
	context.Context
	Responder
	Interaction *discordgo.Interaction
}

// Option returns the named top-level option or nil.
func (c *InteractionContext) Option(name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range c.Interaction.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt
		}
	}
	return nil
}

// InteractionRouterConfig configures an InteractionRouter.
type InteractionRouterConfig struct {
	Cooldowns CooldownStore
	OnError   ErrorHandler
	Logger    *zap.Logger
}

// InteractionRouter holds the slash command registry and dispatches
// application command interactions.
type InteractionRouter struct {
	cfg InteractionRouterConfig
	log *zap.Logger

	mu       sync.RWMutex
	commands map[string]*SlashCommand
	order    []*SlashCommand
}

// NewInteractionRouter returns an empty router.
func NewInteractionRouter(cfg InteractionRouterConfig) *InteractionRouter {
	if cfg.Cooldowns == nil {
		cfg.Cooldowns = NewMemoryCooldowns()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &InteractionRouter{
		cfg:      cfg,
		log:      cfg.Logger,
		commands: make(map[string]*SlashCommand),
	}
}

// Add registers cmd.
func (r *InteractionRouter) Add(cmd *SlashCommand) error {
	if cmd == nil || cmd.Definition == nil || cmd.Run == nil {
		return fmt.Errorf("commands: slash command without definition or handler")
	}
	key := normalizeKey(cmd.Definition.Name)
	if key == "" {
		return fmt.Errorf("commands: slash command has an empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[key]; exists {
		return fmt.Errorf("%w: /%s", ErrDuplicateCommand, key)
	}
	r.commands[key] = cmd
	r.order = append(r.order, cmd)
	return nil
}

// Remove unregisters the named command.
func (r *InteractionRouter) Remove(name string) {
	key := normalizeKey(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	cmd := r.commands[key]
	if cmd == nil {
		return
	}
	delete(r.commands, key)
	for i, c := range r.order {
		if c == cmd {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Definitions returns the registry to publish, in registration order.
func (r *InteractionRouter) Definitions() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*discordgo.ApplicationCommand, 0, len(r.order))
	for _, cmd := range r.order {
		defs = append(defs, cmd.Definition)
	}
	return defs
}

// Dispatch runs the slash command named by i. Failures go to the error handler.
func (r *InteractionRouter) Dispatch(ctx context.Context, i *discordgo.Interaction, resp Responder) {
	if i == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	name := i.ApplicationCommandData().Name
	userID := interactionUserID(i)

	ev := ErrorEvent{
		Path:      PathInteraction,
		Command:   name,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		UserID:    userID,
		Responder: resp,
	}

	r.mu.RLock()
	cmd := r.commands[normalizeKey(name)]
	r.mu.RUnlock()
	if cmd == nil {
		r.fail(ctx, ev, &NotFound{Name: name})
		return
	}

	if cmd.UserPermissions != 0 {
		var have int64
		if i.Member != nil {
			have = i.Member.Permissions
		}
		if missing := missingPermissions(cmd.UserPermissions, have); missing != 0 {
			r.fail(ctx, ev, &MissingUserPermission{Missing: missing})
			return
		}
	}
	if cmd.AgentPermissions != 0 {
		if missing := missingPermissions(cmd.AgentPermissions, i.AppPermissions); missing != 0 {
			r.fail(ctx, ev, &MissingAgentPermission{Missing: missing})
			return
		}
	}

	if cmd.Cooldown > 0 {
		retry, err := r.cfg.Cooldowns.Acquire(ctx, cooldownKey("/"+cmd.Name(), userID), cmd.Cooldown)
		if err != nil {
			r.log.Warn("Cooldown store unavailable", zap.String("command", cmd.Name()), zap.Error(err))
		} else if retry > 0 {
			r.fail(ctx, ev, &OnCooldown{RetryAfter: retry})
			return
		}
	}

	ictx := &InteractionContext{Context: ctx, Responder: resp, Interaction: i}
	if kind := run(func() error { return cmd.Run(ictx) }); kind != nil {
		r.fail(ctx, ev, kind)
	}
}

func (r *InteractionRouter) fail(ctx context.Context, ev ErrorEvent, kind Kind) {
	ev.Kind = kind
	if r.cfg.OnError != nil {
		r.cfg.OnError(ctx, ev)
	}
}

func interactionUserID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
