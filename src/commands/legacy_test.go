package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePerms map[string]int64

func (f fakePerms) UserChannelPermissions(userID, _ string) (int64, error) {
	perms, ok := f[userID]
	if !ok {
		return 0, errors.New("state cache miss")
	}
	return perms, nil
}

type recorder struct {
	events []ErrorEvent
}

func (r *recorder) handle(_ context.Context, ev ErrorEvent) {
	r.events = append(r.events, ev)
}

func newTestRouter(t *testing.T, perms fakePerms) (*Router, *recorder) {
	t.Helper()
	rec := &recorder{}
	r := NewRouter(RouterConfig{
		Permissions: perms,
		AgentID:     func() string { return "agent" },
		OnError:     rec.handle,
	})
	return r, rec
}

func message(content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        "m1",
		GuildID:   "g1",
		ChannelID: "c1",
		Content:   content,
		Author:    &discordgo.User{ID: "user"},
	}
}

func TestDispatchIgnoresOtherMessages(t *testing.T) {
	r, rec := newTestRouter(t, nil)

	assert.False(t, r.Dispatch(context.Background(), nil, message("hello")))
	assert.False(t, r.Dispatch(context.Background(), nil, message("!")))

	bot := message("!ping")
	bot.Author.Bot = true
	assert.False(t, r.Dispatch(context.Background(), nil, bot))
	assert.Empty(t, rec.events)
}

func TestDispatchNotFound(t *testing.T) {
	r, rec := newTestRouter(t, nil)

	assert.True(t, r.Dispatch(context.Background(), nil, message("!nope")))
	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, PathLegacy, ev.Path)
	assert.Equal(t, "c1", ev.ChannelID)
	assert.IsType(t, &NotFound{}, ev.Kind)
}

func TestDispatchCaseInsensitiveAliasAndArgs(t *testing.T) {
	r, rec := newTestRouter(t, nil)

	var got *Context
	require.NoError(t, r.Add(&Command{
		Name:    "say",
		Aliases: []string{"echo"},
		Params:  []Param{{Name: "times", Required: true}, {Name: "text", Rest: true}},
		Run: func(ctx *Context) error {
			got = ctx
			return nil
		},
	}))

	assert.True(t, r.Dispatch(context.Background(), nil, message("!ECHO 3 hello   world")))
	require.NotNil(t, got)
	assert.Empty(t, rec.events)
	n, err := got.Int("times")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "hello   world", got.Arg("text"))
}

func TestDispatchMissingAndBadArgument(t *testing.T) {
	r, rec := newTestRouter(t, nil)
	require.NoError(t, r.Add(&Command{
		Name:   "roll",
		Params: []Param{{Name: "sides", Required: true}},
		Run: func(ctx *Context) error {
			_, err := ctx.Int("sides")
			return err
		},
	}))

	r.Dispatch(context.Background(), nil, message("!roll"))
	r.Dispatch(context.Background(), nil, message("!roll six"))

	require.Len(t, rec.events, 2)
	missing, ok := rec.events[0].Kind.(*MissingArgument)
	require.True(t, ok)
	assert.Equal(t, "sides", missing.Param)

	bad, ok := rec.events[1].Kind.(*BadArgument)
	require.True(t, ok)
	assert.Equal(t, "sides", bad.Param)
	assert.Equal(t, "roll", rec.events[1].Command)
}

func TestDispatchPermissions(t *testing.T) {
	r, rec := newTestRouter(t, fakePerms{
		"user":  discordgo.PermissionSendMessages,
		"agent": discordgo.PermissionSendMessages,
	})
	require.NoError(t, r.Add(&Command{
		Name:            "kick",
		UserPermissions: discordgo.PermissionKickMembers,
		Run:             func(*Context) error { return nil },
	}))
	require.NoError(t, r.Add(&Command{
		Name:             "purge",
		AgentPermissions: discordgo.PermissionManageMessages,
		Run:              func(*Context) error { return nil },
	}))

	r.Dispatch(context.Background(), nil, message("!kick"))
	r.Dispatch(context.Background(), nil, message("!purge"))

	require.Len(t, rec.events, 2)
	user, ok := rec.events[0].Kind.(*MissingUserPermission)
	require.True(t, ok)
	assert.Equal(t, int64(discordgo.PermissionKickMembers), user.Missing)
	assert.IsType(t, &MissingAgentPermission{}, rec.events[1].Kind)
}

func TestDispatchAdministratorBypassesPermissions(t *testing.T) {
	r, rec := newTestRouter(t, fakePerms{"user": discordgo.PermissionAdministrator})
	ran := false
	require.NoError(t, r.Add(&Command{
		Name:            "ban",
		UserPermissions: discordgo.PermissionBanMembers,
		Run:             func(*Context) error { ran = true; return nil },
	}))

	r.Dispatch(context.Background(), nil, message("!ban"))
	assert.True(t, ran)
	assert.Empty(t, rec.events)
}

func TestDispatchCooldown(t *testing.T) {
	r, rec := newTestRouter(t, nil)
	store := NewMemoryCooldowns()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return start }
	r.cfg.Cooldowns = store

	runs := 0
	require.NoError(t, r.Add(&Command{
		Name:     "daily",
		Cooldown: 10 * time.Second,
		Run:      func(*Context) error { runs++; return nil },
	}))

	r.Dispatch(context.Background(), nil, message("!daily"))
	store.now = func() time.Time { return start.Add(2500 * time.Millisecond) }
	r.Dispatch(context.Background(), nil, message("!daily"))

	assert.Equal(t, 1, runs)
	require.Len(t, rec.events, 1)
	cd, ok := rec.events[0].Kind.(*OnCooldown)
	require.True(t, ok)
	assert.Equal(t, 7500*time.Millisecond, cd.RetryAfter)
}

func TestDispatchRecoversPanicsAndWrapsErrors(t *testing.T) {
	r, rec := newTestRouter(t, nil)
	require.NoError(t, r.Add(&Command{Name: "boom", Run: func(*Context) error { panic("kaboom") }}))
	require.NoError(t, r.Add(&Command{Name: "fail", Run: func(*Context) error { return errors.New("db down") }}))
	require.NoError(t, r.Add(&Command{Name: "forbidden", Run: func(*Context) error {
		return fmt.Errorf("send: %w", &discordgo.RESTError{
			Response: &http.Response{StatusCode: http.StatusForbidden},
			Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingPermissions},
		})
	}}))

	r.Dispatch(context.Background(), nil, message("!boom"))
	r.Dispatch(context.Background(), nil, message("!fail"))
	r.Dispatch(context.Background(), nil, message("!forbidden"))

	require.Len(t, rec.events, 3)
	panicked, ok := rec.events[0].Kind.(*Unexpected)
	require.True(t, ok)
	assert.Contains(t, panicked.Error(), "kaboom")
	assert.NotEmpty(t, panicked.Stack)

	failed, ok := rec.events[1].Kind.(*Unexpected)
	require.True(t, ok)
	assert.EqualError(t, failed.Err, "db down")

	assert.IsType(t, &MissingAgentPermission{}, rec.events[2].Kind)
}

func TestAddRejectsDuplicatesAndRemove(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	noop := func(*Context) error { return nil }

	require.NoError(t, r.Add(&Command{Name: "help", Aliases: []string{"h"}, Run: noop}))
	err := r.Add(&Command{Name: "H", Run: noop})
	assert.ErrorIs(t, err, ErrDuplicateCommand)
	assert.Error(t, r.Add(&Command{Name: "x"}))

	r.Remove("h")
	assert.Empty(t, r.Commands())
	require.NoError(t, r.Add(&Command{Name: "h", Run: noop}))
}

func TestKindOf(t *testing.T) {
	assert.Nil(t, KindOf(nil))

	cd := &OnCooldown{RetryAfter: time.Second}
	assert.Same(t, cd, KindOf(fmt.Errorf("wrapped: %w", cd)))

	u, ok := KindOf(errors.New("x")).(*Unexpected)
	require.True(t, ok)
	assert.EqualError(t, u, "x")
}

func TestPermissionNames(t *testing.T) {
	assert.Equal(t, "Kick Members, Ban Members", permissionNames(discordgo.PermissionKickMembers|discordgo.PermissionBanMembers))
	assert.Equal(t, "unknown", permissionNames(0))
}
