package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/chat-agent/src/logging"
)

// Path identifies which command system raised an error.
type Path int

const (
	PathLegacy Path = iota
	PathInteraction
)

func (p Path) String() string {
	switch p {
	case PathLegacy:
		return "legacy"
	case PathInteraction:
		return "interaction"
	}
	return fmt.Sprintf("Path(%d)", int(p))
}

// Kind is the closed set of command failures. Only the types in this file
// implement it; classifiers switch over them and treat anything else as
// Unexpected.
type Kind interface {
	error
	kind()
}

// NotFound is raised when no command matches the invoked name.
type NotFound struct {
	Name string
}

// MissingUserPermission is raised when the invoking user lacks permissions.
type MissingUserPermission struct {
	Missing int64
}

// MissingAgentPermission is raised when the agent itself lacks permissions.
type MissingAgentPermission struct {
	Missing int64
}

// OnCooldown is raised when the invoker must wait before using the command again.
type OnCooldown struct {
	RetryAfter time.Duration
}

// MissingArgument is raised when a required parameter was not supplied.
type MissingArgument struct {
	Param string
}

// BadArgument is raised when a parameter could not be converted.
type BadArgument struct {
	Param string
	Err   error
}

// Unexpected wraps every failure that is not part of the vocabulary above.
type Unexpected struct {
	Err   error
	Stack []byte
}

func (*NotFound) kind()               {}
func (*MissingUserPermission) kind()  {}
func (*MissingAgentPermission) kind() {}
func (*OnCooldown) kind()             {}
func (*MissingArgument) kind()        {}
func (*BadArgument) kind()            {}
func (*Unexpected) kind()             {}

func (e *NotFound) Error() string {
	return fmt.Sprintf("command %q is not found", e.Name)
}

func (e *MissingUserPermission) Error() string {
	return "you are missing " + permissionNames(e.Missing) + " permission(s) to run this command"
}

func (e *MissingAgentPermission) Error() string {
	return "agent requires " + permissionNames(e.Missing) + " permission(s) to run this command"
}

func (e *OnCooldown) Error() string {
	return fmt.Sprintf("you are on cooldown. Try again in %.2fs", e.RetryAfter.Seconds())
}

func (e *MissingArgument) Error() string {
	return fmt.Sprintf("%s is a required argument that is missing", e.Param)
}

func (e *BadArgument) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("converting %q failed", e.Param)
	}
	return fmt.Sprintf("converting %q failed: %v", e.Param, e.Err)
}

func (e *BadArgument) Unwrap() error { return e.Err }

func (e *Unexpected) Error() string {
	if e.Err == nil {
		return "unexpected error"
	}
	return e.Err.Error()
}

func (e *Unexpected) Unwrap() error { return e.Err }

// KindOf maps err onto the failure vocabulary. Discord rejecting a call for
// missing permissions counts as MissingAgentPermission; anything unknown is
// wrapped in Unexpected.
func KindOf(err error) Kind {
	if err == nil {
		return nil
	}

	var (
		notFound   *NotFound
		userPerm   *MissingUserPermission
		agentPerm  *MissingAgentPermission
		cooldown   *OnCooldown
		missingArg *MissingArgument
		badArg     *BadArgument
		unexpected *Unexpected
	)
	switch {
	case errors.As(err, &notFound):
		return notFound
	case errors.As(err, &userPerm):
		return userPerm
	case errors.As(err, &agentPerm):
		return agentPerm
	case errors.As(err, &cooldown):
		return cooldown
	case errors.As(err, &missingArg):
		return missingArg
	case errors.As(err, &badArg):
		return badArg
	case errors.As(err, &unexpected):
		return unexpected
	case logging.IsMissingPermissions(err):
		return &MissingAgentPermission{}
	}
	return &Unexpected{Err: err}
}

// ErrorEvent carries one failed invocation to the classifier of its path.
type ErrorEvent struct {
	Path    Path
	Kind    Kind
	Command string

	GuildID   string
	ChannelID string
	UserID    string

	// Responder is set for interaction invocations only.
	Responder Responder
}

// ErrorHandler receives every failed invocation.
type ErrorHandler func(ctx context.Context, ev ErrorEvent)

var permissionLabels = []struct {
	bit  int64
	name string
}{
	{discordgo.PermissionAdministrator, "Administrator"},
	{discordgo.PermissionManageGuild, "Manage Server"},
	{discordgo.PermissionManageRoles, "Manage Roles"},
	{discordgo.PermissionManageChannels, "Manage Channels"},
	{discordgo.PermissionKickMembers, "Kick Members"},
	{discordgo.PermissionBanMembers, "Ban Members"},
	{discordgo.PermissionManageMessages, "Manage Messages"},
	{discordgo.PermissionModerateMembers, "Moderate Members"},
	{discordgo.PermissionViewChannel, "View Channel"},
	{discordgo.PermissionSendMessages, "Send Messages"},
	{discordgo.PermissionEmbedLinks, "Embed Links"},
	{discordgo.PermissionAttachFiles, "Attach Files"},
	{discordgo.PermissionAddReactions, "Add Reactions"},
	{discordgo.PermissionVoiceConnect, "Connect"},
	{discordgo.PermissionVoiceSpeak, "Speak"},
}

func permissionNames(perms int64) string {
	var names []string
	for _, label := range permissionLabels {
		if perms&label.bit != 0 {
			names = append(names, label.name)
			perms &^= label.bit
		}
	}
	if perms != 0 {
		names = append(names, fmt.Sprintf("0x%x", perms))
	}
	if len(names) == 0 {
		return "unknown"
	}
	return strings.Join(names, ", ")
}

// missingPermissions returns the bits of required that have lacks.
// Administrator implies every permission.
func missingPermissions(required, have int64) int64 {
	if have&discordgo.PermissionAdministrator != 0 {
		return 0
	}
	return required &^ have
}
