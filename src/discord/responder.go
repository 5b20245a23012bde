package discord

import (
	"errors"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/chat-agent/src/commands"
)

// Discord rejects a second initial response with this code.
const codeAlreadyAcknowledged = 40060

// Responder answers one interaction and tracks whether the initial response
// was sent, so later replies become followups.
type Responder struct {
	respond  func(resp *discordgo.InteractionResponse) error
	followup func(params *discordgo.WebhookParams) error
	done     atomic.Bool
}

var _ commands.Responder = (*Responder)(nil)

// NewResponder binds a responder to an interaction on s.
func NewResponder(s *discordgo.Session, i *discordgo.Interaction) *Responder {
	return &Responder{
		respond: func(resp *discordgo.InteractionResponse) error {
			return s.InteractionRespond(i, resp)
		},
		followup: func(params *discordgo.WebhookParams) error {
			_, err := s.FollowupMessageCreate(i, true, params)
			return err
		},
	}
}

// Done reports whether the initial response was already sent.
func (r *Responder) Done() bool { return r.done.Load() }

// Respond sends the initial response message.
func (r *Responder) Respond(data *discordgo.InteractionResponseData) error {
	return r.initial(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

// Defer acknowledges the interaction without content.
func (r *Responder) Defer(ephemeral bool) error {
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	return r.initial(resp)
}

// Followup sends a message after the initial response.
func (r *Responder) Followup(params *discordgo.WebhookParams) error {
	return r.followup(params)
}

func (r *Responder) initial(resp *discordgo.InteractionResponse) error {
	err := r.respond(resp)
	if err == nil || alreadyAcknowledged(err) {
		r.done.Store(true)
	}
	return err
}

func alreadyAcknowledged(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Message != nil && restErr.Message.Code == codeAlreadyAcknowledged
}
