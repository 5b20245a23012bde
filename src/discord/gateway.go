// Package discord binds the agent to a discordgo session.
package discord

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/chat-agent/src/agent"
	"github.com/stake-plus/chat-agent/src/commands"
	"go.uber.org/zap"
)

// Gateway implements agent.Gateway on top of a discordgo session.
//
// Handlers run in gateway order (SyncEvents) so guild bookkeeping sees Ready
// before the GuildCreate burst that follows it. Anything that may block is
// handed to spawn.
type Gateway struct {
	s   *discordgo.Session
	log *zap.Logger

	// bounds on waiting for Ready guilds and the first heartbeat ack
	guildWait time.Duration
	ackWait   time.Duration
	poll      time.Duration
	spawn     func(func())

	mu sync.Mutex
	// guilds the agent is a member of, outages included
	known map[string]struct{}
	// Ready guilds whose GuildCreate has not arrived yet
	pending  map[string]struct{}
	readyGen int
}

var _ agent.Gateway = (*Gateway)(nil)

// New creates a session for a bot token. No connection is made.
func New(token string, log *zap.Logger) (*Gateway, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	s.SyncEvents = true
	return &Gateway{
		s:         s,
		log:       log,
		guildWait: 2 * time.Second,
		ackWait:   15 * time.Second,
		poll:      50 * time.Millisecond,
		spawn:     func(fn func()) { go fn() },
		known:     make(map[string]struct{}),
		pending:   make(map[string]struct{}),
	}, nil
}

// Factory adapts New to agent.GatewayFactory.
func Factory(log *zap.Logger) agent.GatewayFactory {
	return func(token string) (agent.Gateway, error) {
		return New(token, log)
	}
}

// Configure sets the gateway intents sent on identify.
func (g *Gateway) Configure(intents discordgo.Intent) {
	g.s.Identify.Intents = intents
}

// SyncCommands replaces the published slash commands with defs, for guildID
// or globally when guildID is empty. It returns the number published.
func (g *Gateway) SyncCommands(ctx context.Context, guildID string, defs []*discordgo.ApplicationCommand) (int, error) {
	app, err := g.s.Application("@me")
	if err != nil {
		return 0, fmt.Errorf("discord: resolve application: %w", err)
	}
	if defs == nil {
		defs = []*discordgo.ApplicationCommand{}
	}
	synced, err := g.s.ApplicationCommandBulkOverwrite(app.ID, guildID, defs, discordgo.WithContext(ctx))
	if err != nil {
		if commands.IsDuplicateCommandError(err) {
			return 0, fmt.Errorf("%w: %v", commands.ErrDuplicateCommand, err)
		}
		return 0, err
	}
	return len(synced), nil
}

// Open registers h for gateway events and connects.
func (g *Gateway) Open(ctx context.Context, h agent.EventHandler) error {
	g.s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		g.onReady(ctx, h, r)
	})
	g.s.AddHandler(func(_ *discordgo.Session, gc *discordgo.GuildCreate) {
		g.onGuildCreate(ctx, h, gc)
	})
	g.s.AddHandler(func(_ *discordgo.Session, gd *discordgo.GuildDelete) {
		g.onGuildDelete(gd)
	})
	g.s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		g.spawn(func() {
			defer recoverEvent(ctx, h, "message_create")
			h.OnMessage(ctx, s, m.Message)
		})
	})
	g.s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		g.spawn(func() {
			defer recoverEvent(ctx, h, "interaction_create")
			h.OnInteraction(ctx, i.Interaction, NewResponder(s, i.Interaction))
		})
	})
	return g.s.Open()
}

// Close disconnects from the gateway.
func (g *Gateway) Close() error {
	return g.s.Close()
}

// Stats reports the cached guild and member counts and the last measured
// heartbeat round trip. Latency is zero until a heartbeat was acknowledged.
func (g *Gateway) Stats() agent.Stats {
	var stats agent.Stats
	if latency, ok := g.latency(); ok {
		stats.Latency = latency
	}

	st := g.s.State
	st.RLock()
	defer st.RUnlock()

	stats.Guilds = len(st.Guilds)
	if st.User != nil {
		stats.Username = st.User.Username
	}
	for _, guild := range st.Guilds {
		stats.Users += guild.MemberCount
	}
	return stats
}

// latency is only meaningful once an ack answered a sent heartbeat. Before
// the first beat discordgo reports a saturated duration.
func (g *Gateway) latency() (time.Duration, bool) {
	g.s.RLock()
	sent, ack := g.s.LastHeartbeatSent, g.s.LastHeartbeatAck
	g.s.RUnlock()
	if sent.IsZero() || ack.Before(sent) {
		return 0, false
	}
	return ack.Sub(sent), true
}

// AvatarURL returns the agent's avatar URL.
func (g *Gateway) AvatarURL() string {
	if g.s.State.User == nil {
		return ""
	}
	return g.s.State.User.AvatarURL("")
}

// UpdateWatchStatus sets a "watching <name>" presence.
func (g *Gateway) UpdateWatchStatus(name string) error {
	return g.s.UpdateWatchStatus(0, name)
}

// SelfID returns the agent's user ID once connected.
func (g *Gateway) SelfID() string {
	if g.s.State.User == nil {
		return ""
	}
	return g.s.State.User.ID
}

// UserChannelPermissions computes permissions from the state cache.
func (g *Gateway) UserChannelPermissions(userID, channelID string) (int64, error) {
	return g.s.State.UserChannelPermissions(userID, channelID)
}

// SendEmbed posts embed to channelID.
func (g *Gateway) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	_, err := g.s.ChannelMessageSendEmbed(channelID, embed)
	return err
}

func (g *Gateway) canSend(channelID string) bool {
	perms, err := g.UserChannelPermissions(g.SelfID(), channelID)
	if err != nil {
		g.log.Debug("permission lookup failed", zap.String("channel", channelID), zap.Error(err))
		return false
	}
	const need = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages
	return perms&need == need
}

// buildJoinEvent lists the guild's text channels in client display order.
func buildJoinEvent(guild *discordgo.Guild, canSend func(channelID string) bool) agent.GuildJoinEvent {
	var text []*discordgo.Channel
	for _, ch := range guild.Channels {
		if ch != nil && ch.Type == discordgo.ChannelTypeGuildText {
			text = append(text, ch)
		}
	}
	sort.SliceStable(text, func(i, j int) bool {
		if text[i].Position != text[j].Position {
			return text[i].Position < text[j].Position
		}
		return text[i].ID < text[j].ID
	})

	ev := agent.GuildJoinEvent{
		GuildID:     guild.ID,
		Name:        guild.Name,
		MemberCount: guild.MemberCount,
		IconURL:     guild.IconURL(""),
	}
	for _, ch := range text {
		ev.Channels = append(ev.Channels, agent.ChannelRef{
			ID:      ch.ID,
			Name:    ch.Name,
			CanSend: canSend(ch.ID),
		})
	}
	return ev
}

func recoverEvent(ctx context.Context, h agent.EventHandler, event string) {
	if rec := recover(); rec != nil {
		h.OnEvent(ctx, event, fmt.Errorf("panic: %v", rec))
	}
}
