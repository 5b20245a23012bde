package classify

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/chat-agent/src/commands"
	"github.com/stake-plus/chat-agent/src/logging"
	"go.uber.org/zap"
)

// InteractionHandler reports slash command failures to the invoking user.
type InteractionHandler struct {
	log *zap.Logger
}

// NewInteractionHandler returns an interaction error handler.
func NewInteractionHandler(log *zap.Logger) *InteractionHandler {
	return &InteractionHandler{log: log}
}

// Handle classifies ev and answers the interaction with an ephemeral embed.
// Whether that is the primary response or a follow-up is decided at send
// time. Send errors are discarded.
func (h *InteractionHandler) Handle(_ context.Context, ev commands.ErrorEvent) {
	if ev.Kind == nil {
		return
	}
	out := Interaction(ev.Kind)

	var incident string
	if out.Unexpected {
		incident = logUnexpected(h.log, "Unexpected error in slash command", ev)
	}

	if ev.Responder == nil {
		return
	}
	embed := notification(out, incident).Embed()

	var err error
	if ev.Responder.Done() {
		err = ev.Responder.Followup(&discordgo.WebhookParams{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		})
	} else {
		err = ev.Responder.Respond(&discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		})
	}
	if err != nil {
		h.log.Debug("discarded interaction error notification", zap.String("command", ev.Command), zap.String("reason", logging.FailureReason(err)), zap.Error(err))
	}
}
