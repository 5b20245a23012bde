package commands

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Param describes one positional argument of a prefix command. The last
// parameter may be marked Rest to receive the remainder of the message.
type Param struct {
	Name     string
	Required bool
	Rest     bool
}

// Command is a prefix-triggered command.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Params      []Param

	UserPermissions  int64
	AgentPermissions int64
	Cooldown         time.Duration

	Run func(ctx *Context) error
}

// Context is handed to a running prefix command.
type Context struct {
	context.Context
	Session *discordgo.Session
	Message *discordgo.Message
	Command *Command

	args map[string]string
}

// Arg returns the raw value of the named parameter.
func (c *Context) Arg(name string) string {
	return c.args[name]
}

// Int converts the named parameter, failing with BadArgument.
func (c *Context) Int(name string) (int, error) {
	raw := c.args[name]
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &BadArgument{Param: name, Err: err}
	}
	return v, nil
}

// Reply sends content to the channel the command was invoked in.
func (c *Context) Reply(content string) error {
	_, err := c.Session.ChannelMessageSend(c.Message.ChannelID, content)
	return err
}

// PermissionResolver computes effective channel permissions.
// *discordgo.State satisfies it.
type PermissionResolver interface {
	UserChannelPermissions(userID, channelID string) (int64, error)
}

// RouterConfig configures a Router.
type RouterConfig struct {
	Prefix      string
	Permissions PermissionResolver
	Cooldowns   CooldownStore
	// AgentID returns the agent's own user ID for permission checks.
	AgentID func() string
	OnError ErrorHandler
	Logger  *zap.Logger
}

// Router dispatches prefix commands. Names and aliases match case-insensitively.
type Router struct {
	cfg RouterConfig
	log *zap.Logger

	mu       sync.RWMutex
	commands map[string]*Command
	order    []*Command
}

// NewRouter returns an empty router. A blank prefix defaults to "!".
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}
	if cfg.Cooldowns == nil {
		cfg.Cooldowns = NewMemoryCooldowns()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.AgentID == nil {
		cfg.AgentID = func() string { return "" }
	}
	return &Router{
		cfg:      cfg,
		log:      cfg.Logger,
		commands: make(map[string]*Command),
	}
}

// Prefix returns the configured prefix.
func (r *Router) Prefix() string { return r.cfg.Prefix }

// Add registers cmd under its name and aliases.
func (r *Router) Add(cmd *Command) error {
	if cmd == nil || cmd.Run == nil {
		return fmt.Errorf("commands: command without handler")
	}
	keys := append([]string{cmd.Name}, cmd.Aliases...)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range keys {
		key = normalizeKey(key)
		if key == "" {
			return fmt.Errorf("commands: command %q has an empty name or alias", cmd.Name)
		}
		if _, exists := r.commands[key]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateCommand, key)
		}
	}
	for _, key := range keys {
		r.commands[normalizeKey(key)] = cmd
	}
	r.order = append(r.order, cmd)
	return nil
}

// Remove unregisters the command called name together with its aliases.
func (r *Router) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmd := r.commands[normalizeKey(name)]
	if cmd == nil {
		return
	}
	for key, c := range r.commands {
		if c == cmd {
			delete(r.commands, key)
		}
	}
	for i, c := range r.order {
		if c == cmd {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Commands returns the registered commands in registration order.
func (r *Router) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Command(nil), r.order...)
}

// Dispatch runs the command invoked by m, if any. It reports whether m was
// addressed to the router. Failures are passed to the error handler and
// never returned.
func (r *Router) Dispatch(ctx context.Context, s *discordgo.Session, m *discordgo.Message) bool {
	if m == nil || m.Author == nil || m.Author.Bot {
		return false
	}
	if !strings.HasPrefix(m.Content, r.cfg.Prefix) {
		return false
	}

	body := strings.TrimSpace(strings.TrimPrefix(m.Content, r.cfg.Prefix))
	name, rest := splitWord(body)
	if name == "" {
		return false
	}

	ev := ErrorEvent{
		Path:      PathLegacy,
		Command:   name,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
	}

	r.mu.RLock()
	cmd := r.commands[normalizeKey(name)]
	r.mu.RUnlock()
	if cmd == nil {
		r.fail(ctx, ev, &NotFound{Name: name})
		return true
	}
	ev.Command = cmd.Name

	if kind := r.checkPermissions(cmd, m); kind != nil {
		r.fail(ctx, ev, kind)
		return true
	}

	if cmd.Cooldown > 0 {
		retry, err := r.cfg.Cooldowns.Acquire(ctx, cooldownKey(cmd.Name, m.Author.ID), cmd.Cooldown)
		if err != nil {
			r.log.Warn("Cooldown store unavailable", zap.String("command", cmd.Name), zap.Error(err))
		} else if retry > 0 {
			r.fail(ctx, ev, &OnCooldown{RetryAfter: retry})
			return true
		}
	}

	args, kind := bindArgs(cmd.Params, rest)
	if kind != nil {
		r.fail(ctx, ev, kind)
		return true
	}

	cctx := &Context{Context: ctx, Session: s, Message: m, Command: cmd, args: args}
	if kind := run(func() error { return cmd.Run(cctx) }); kind != nil {
		r.fail(ctx, ev, kind)
	}
	return true
}

func (r *Router) checkPermissions(cmd *Command, m *discordgo.Message) Kind {
	if cmd.UserPermissions == 0 && cmd.AgentPermissions == 0 {
		return nil
	}
	if m.GuildID == "" || r.cfg.Permissions == nil {
		// no guild permissions outside a guild
		if cmd.UserPermissions != 0 {
			return &MissingUserPermission{Missing: cmd.UserPermissions}
		}
		return &MissingAgentPermission{Missing: cmd.AgentPermissions}
	}

	if cmd.UserPermissions != 0 {
		have, err := r.cfg.Permissions.UserChannelPermissions(m.Author.ID, m.ChannelID)
		if err != nil {
			return &Unexpected{Err: fmt.Errorf("resolve user permissions: %w", err)}
		}
		if missing := missingPermissions(cmd.UserPermissions, have); missing != 0 {
			return &MissingUserPermission{Missing: missing}
		}
	}
	if cmd.AgentPermissions != 0 {
		have, err := r.cfg.Permissions.UserChannelPermissions(r.cfg.AgentID(), m.ChannelID)
		if err != nil {
			return &Unexpected{Err: fmt.Errorf("resolve agent permissions: %w", err)}
		}
		if missing := missingPermissions(cmd.AgentPermissions, have); missing != 0 {
			return &MissingAgentPermission{Missing: missing}
		}
	}
	return nil
}

func (r *Router) fail(ctx context.Context, ev ErrorEvent, kind Kind) {
	ev.Kind = kind
	if r.cfg.OnError != nil {
		r.cfg.OnError(ctx, ev)
	}
}

// bindArgs assigns whitespace separated words to params in order.
func bindArgs(params []Param, rest string) (map[string]string, Kind) {
	args := make(map[string]string, len(params))
	for _, p := range params {
		var word string
		if p.Rest {
			word, rest = strings.TrimSpace(rest), ""
		} else {
			word, rest = splitWord(rest)
		}
		if word == "" {
			if p.Required {
				return nil, &MissingArgument{Param: p.Name}
			}
			continue
		}
		args[p.Name] = word
	}
	return args, nil
}

func splitWord(s string) (string, string) {
	s = strings.TrimLeft(s, " \t\n")
	idx := strings.IndexAny(s, " \t\n")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}

// run calls fn, converting returned errors and panics into a Kind.
func run(fn func() error) (kind Kind) {
	defer func() {
		if rec := recover(); rec != nil {
			kind = &Unexpected{Err: fmt.Errorf("panic: %v", rec), Stack: debug.Stack()}
		}
	}()
	if err := fn(); err != nil {
		return KindOf(err)
	}
	return nil
}
