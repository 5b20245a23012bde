package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/chat-agent/src/commands"
	"github.com/stake-plus/chat-agent/src/embeds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type sentEmbed struct {
	channelID string
	embed     *discordgo.MessageEmbed
}

type fakeSender struct {
	sent []sentEmbed
	err  error
}

func (f *fakeSender) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	f.sent = append(f.sent, sentEmbed{channelID, embed})
	return f.err
}

type fakeResponder struct {
	done      bool
	err       error
	responses []*discordgo.InteractionResponseData
	followups []*discordgo.WebhookParams
}

func (f *fakeResponder) Done() bool { return f.done }

func (f *fakeResponder) Respond(data *discordgo.InteractionResponseData) error {
	f.responses = append(f.responses, data)
	if f.err == nil {
		f.done = true
	}
	return f.err
}

func (f *fakeResponder) Defer(bool) error {
	f.done = true
	return nil
}

func (f *fakeResponder) Followup(params *discordgo.WebhookParams) error {
	f.followups = append(f.followups, params)
	return f.err
}

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return zap.New(core), logs
}

func TestLegacyTemplates(t *testing.T) {
	cases := []struct {
		kind commands.Kind
		want string
	}{
		{&commands.MissingUserPermission{}, "You don't have permission to use this command."},
		{&commands.MissingAgentPermission{}, "I don't have the required permissions to execute this command."},
		{&commands.OnCooldown{RetryAfter: 3456 * time.Millisecond}, "Command is on cooldown. Try again in 3.46 seconds."},
		{&commands.OnCooldown{RetryAfter: 2 * time.Second}, "Command is on cooldown. Try again in 2.00 seconds."},
		{&commands.MissingArgument{Param: "member"}, "Missing required argument: `member`."},
		{&commands.BadArgument{Param: "amount"}, "Invalid argument provided."},
		{&commands.Unexpected{Err: errors.New("secret detail")}, "An unexpected error occurred."},
	}
	for _, tc := range cases {
		out := Legacy(tc.kind)
		assert.False(t, out.Ignore)
		assert.Equal(t, tc.want, out.Description)
	}
	assert.True(t, Legacy(&commands.Unexpected{}).Unexpected)
	assert.True(t, Legacy(&commands.NotFound{Name: "x"}).Ignore)
}

func TestInteractionVocabulary(t *testing.T) {
	assert.Equal(t, "You don't have permission to use this command.", Interaction(&commands.MissingUserPermission{}).Description)
	assert.Equal(t, "I don't have the required permissions to execute this command.", Interaction(&commands.MissingAgentPermission{}).Description)
	assert.Equal(t, "Command is on cooldown. Try again in 0.50 seconds.", Interaction(&commands.OnCooldown{RetryAfter: 500 * time.Millisecond}).Description)

	for _, kind := range []commands.Kind{
		&commands.NotFound{Name: "gone"},
		&commands.MissingArgument{Param: "x"},
		&commands.BadArgument{Param: "x"},
		&commands.Unexpected{Err: errors.New("boom")},
	} {
		out := Interaction(kind)
		assert.True(t, out.Unexpected)
		assert.Equal(t, "An unexpected error occurred.", out.Description)
	}
}

func TestLegacyHandlerNotFoundIsSilent(t *testing.T) {
	log, logs := observed()
	sender := &fakeSender{}
	h := NewLegacyHandler(log, sender)

	h.Handle(context.Background(), commands.ErrorEvent{
		Path:      commands.PathLegacy,
		Kind:      &commands.NotFound{Name: "typo"},
		ChannelID: "c1",
	})

	assert.Empty(t, sender.sent)
	assert.Zero(t, logs.Len())
}

func TestLegacyHandlerSendsClassifiedError(t *testing.T) {
	log, logs := observed()
	sender := &fakeSender{}
	h := NewLegacyHandler(log, sender)

	h.Handle(context.Background(), commands.ErrorEvent{
		Path:      commands.PathLegacy,
		Kind:      &commands.MissingArgument{Param: "reason"},
		Command:   "warn",
		ChannelID: "c1",
	})

	require.Len(t, sender.sent, 1)
	got := sender.sent[0]
	assert.Equal(t, "c1", got.channelID)
	assert.Equal(t, "❌ Command Error", got.embed.Title)
	assert.Equal(t, "Missing required argument: `reason`.", got.embed.Description)
	assert.Equal(t, int(embeds.ColorError), got.embed.Color)
	assert.NotEmpty(t, got.embed.Timestamp)
	assert.Nil(t, got.embed.Footer)
	assert.Zero(t, logs.Len())
}

func TestLegacyHandlerUnexpectedLogsDetailOnly(t *testing.T) {
	log, logs := observed()
	sender := &fakeSender{err: errors.New("403 Forbidden")}
	h := NewLegacyHandler(log, sender)

	assert.NotPanics(t, func() {
		h.Handle(context.Background(), commands.ErrorEvent{
			Path:      commands.PathLegacy,
			Kind:      &commands.Unexpected{Err: errors.New("connection refused"), Stack: []byte("goroutine 1")},
			Command:   "balance",
			ChannelID: "c1",
		})
	})

	require.Len(t, sender.sent, 1)
	embed := sender.sent[0].embed
	assert.Equal(t, "An unexpected error occurred.", embed.Description)
	assert.NotContains(t, embed.Description, "connection refused")
	require.NotNil(t, embed.Footer)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Contains(t, entry.Message, "balance")
	assert.Contains(t, entry.Message, "connection refused")
	ctx := entry.ContextMap()
	assert.Equal(t, "goroutine 1", ctx["stacktrace"])
	assert.True(t, strings.HasSuffix(embed.Footer.Text, ctx["incident"].(string)))
}

func TestLegacyHandlerReturnedErrorHasNoStack(t *testing.T) {
	log, logs := observed()
	h := NewLegacyHandler(log, &fakeSender{})

	h.Handle(context.Background(), commands.ErrorEvent{
		Path:      commands.PathLegacy,
		Kind:      &commands.Unexpected{Err: errors.New("upstream timeout")},
		Command:   "balance",
		ChannelID: "c1",
	})

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.NotContains(t, ctx, "stacktrace")
	assert.Equal(t, "upstream timeout", ctx["detail"])
}

func TestInteractionHandlerPrimaryResponse(t *testing.T) {
	log, _ := observed()
	resp := &fakeResponder{}
	h := NewInteractionHandler(log)

	h.Handle(context.Background(), commands.ErrorEvent{
		Path:      commands.PathInteraction,
		Kind:      &commands.MissingUserPermission{},
		Responder: resp,
	})

	require.Len(t, resp.responses, 1)
	assert.Empty(t, resp.followups)
	data := resp.responses[0]
	assert.Equal(t, discordgo.MessageFlagsEphemeral, data.Flags)
	require.Len(t, data.Embeds, 1)
	assert.Equal(t, "You don't have permission to use this command.", data.Embeds[0].Description)
}

func TestInteractionHandlerFollowupWhenAlreadyAnswered(t *testing.T) {
	log, _ := observed()
	resp := &fakeResponder{}
	require.NoError(t, resp.Defer(true))
	h := NewInteractionHandler(log)

	h.Handle(context.Background(), commands.ErrorEvent{
		Path:      commands.PathInteraction,
		Kind:      &commands.OnCooldown{RetryAfter: time.Second},
		Responder: resp,
	})

	assert.Empty(t, resp.responses)
	require.Len(t, resp.followups, 1)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.followups[0].Flags)
	assert.Equal(t, "Command is on cooldown. Try again in 1.00 seconds.", resp.followups[0].Embeds[0].Description)
}

func TestInteractionHandlerEvaluatesStateAtSendTime(t *testing.T) {
	log, _ := observed()
	resp := &fakeResponder{}
	h := NewInteractionHandler(log)
	ev := commands.ErrorEvent{
		Path:      commands.PathInteraction,
		Kind:      &commands.MissingAgentPermission{},
		Responder: resp,
	}

	h.Handle(context.Background(), ev)
	h.Handle(context.Background(), ev)

	assert.Len(t, resp.responses, 1)
	assert.Len(t, resp.followups, 1)
}

func TestInteractionHandlerSwallowsSendErrors(t *testing.T) {
	log, logs := observed()
	resp := &fakeResponder{err: errors.New("unknown interaction")}
	h := NewInteractionHandler(log)

	assert.NotPanics(t, func() {
		h.Handle(context.Background(), commands.ErrorEvent{
			Path:      commands.PathInteraction,
			Kind:      &commands.Unexpected{Err: errors.New("nil pointer")},
			Command:   "play",
			Responder: resp,
		})
	})

	assert.Len(t, resp.responses, 1)
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "slash command play")
}
