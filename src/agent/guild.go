package agent

import (
	"context"
	"fmt"

	"github.com/stake-plus/chat-agent/src/classify"
	"github.com/stake-plus/chat-agent/src/embeds"
	"github.com/stake-plus/chat-agent/src/logging"
	"go.uber.org/zap"
)

// ChannelRef is a text channel of a guild as seen by the agent.
type ChannelRef struct {
	ID      string
	Name    string
	CanSend bool
}

// GuildJoinEvent describes a guild the agent was just added to. Channels are
// in platform order.
type GuildJoinEvent struct {
	GuildID     string
	Name        string
	MemberCount int
	IconURL     string
	Channels    []ChannelRef
}

// GuildNotifier posts a welcome message when the agent joins a guild.
type GuildNotifier struct {
	log    *zap.Logger
	sender classify.ChannelSender
}

// NewGuildNotifier returns a notifier sending through sender.
func NewGuildNotifier(log *zap.Logger, sender classify.ChannelSender) *GuildNotifier {
	return &GuildNotifier{log: log, sender: sender}
}

// SelectChannel returns the first channel the agent may send messages to.
func SelectChannel(channels []ChannelRef) (ChannelRef, bool) {
	for _, ch := range channels {
		if ch.CanSend {
			return ch, true
		}
	}
	return ChannelRef{}, false
}

// WelcomeNotification describes the joined guild.
func WelcomeNotification(ev GuildJoinEvent) embeds.Notification {
	return embeds.New(embeds.Notification{
		Title:       "🎉 Joined New Server!",
		Description: fmt.Sprintf("Thanks for adding me to **%s**!", ev.Name),
		Color:       embeds.ColorSuccess,
		Thumbnail:   ev.IconURL,
	}).
		WithField("Server Name", ev.Name, true).
		WithField("Member Count", fmt.Sprint(ev.MemberCount), true).
		WithField("Server ID", ev.GuildID, true)
}

// Notify welcomes the guild in its first writable channel. A guild without
// one gets no message. The join is logged either way.
func (g *GuildNotifier) Notify(_ context.Context, ev GuildJoinEvent) {
	defer g.log.Info(fmt.Sprintf("Joined guild: %s (ID: %s)", ev.Name, ev.GuildID))

	if ch, ok := SelectChannel(ev.Channels); ok && g.sender != nil {
		// A permission change after selection can still reject the send.
		if err := g.sender.SendEmbed(ch.ID, WelcomeNotification(ev).Embed()); err != nil {
			g.log.Debug("discarded welcome message", zap.String("guild", ev.GuildID), zap.String("channel", ch.ID), zap.String("reason", logging.FailureReason(err)), zap.Error(err))
		}
	}
}
