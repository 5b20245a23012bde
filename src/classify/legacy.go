package classify

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/chat-agent/src/commands"
	"github.com/stake-plus/chat-agent/src/logging"
	"go.uber.org/zap"
)

// ChannelSender posts an embed to a channel.
type ChannelSender interface {
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) error
}

// LegacyHandler reports prefix command failures back to the invoking channel.
type LegacyHandler struct {
	log    *zap.Logger
	sender ChannelSender
}

// NewLegacyHandler returns a handler sending through sender.
func NewLegacyHandler(log *zap.Logger, sender ChannelSender) *LegacyHandler {
	return &LegacyHandler{log: log, sender: sender}
}

// Handle classifies ev and sends the notification. It never fails: send
// errors are discarded.
func (h *LegacyHandler) Handle(_ context.Context, ev commands.ErrorEvent) {
	if ev.Kind == nil {
		return
	}
	out := Legacy(ev.Kind)
	if out.Ignore {
		return
	}

	var incident string
	if out.Unexpected {
		incident = logUnexpected(h.log, "Unexpected error in command", ev)
	}

	if h.sender == nil || ev.ChannelID == "" {
		return
	}
	// Delivery is best effort; the channel may not accept messages from us.
	if err := h.sender.SendEmbed(ev.ChannelID, notification(out, incident).Embed()); err != nil {
		h.log.Debug("discarded command error notification", zap.String("channel", ev.ChannelID), zap.String("reason", logging.FailureReason(err)), zap.Error(err))
	}
}
