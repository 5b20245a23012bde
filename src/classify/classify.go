// Package classify turns failed command invocations into user-facing
// notifications and delivers them on the path the command came from.
package classify

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/stake-plus/chat-agent/src/commands"
	"github.com/stake-plus/chat-agent/src/embeds"
	"go.uber.org/zap"
)

const errorTitle = "Command Error"

const (
	msgMissingUserPermission  = "You don't have permission to use this command."
	msgMissingAgentPermission = "I don't have the required permissions to execute this command."
	msgCooldown               = "Command is on cooldown. Try again in %.2f seconds."
	msgMissingArgument        = "Missing required argument: `%s`."
	msgBadArgument            = "Invalid argument provided."
	msgUnexpected             = "An unexpected error occurred."
)

// Outcome is the classification of one failure.
type Outcome struct {
	// Ignore means nothing is sent and nothing is logged.
	Ignore bool
	// Unexpected means the failure must be logged with full detail.
	Unexpected  bool
	Description string
}

// Legacy classifies a failure of a prefix command.
func Legacy(kind commands.Kind) Outcome {
	switch k := kind.(type) {
	case *commands.NotFound:
		return Outcome{Ignore: true}
	case *commands.MissingUserPermission:
		return Outcome{Description: msgMissingUserPermission}
	case *commands.MissingAgentPermission:
		return Outcome{Description: msgMissingAgentPermission}
	case *commands.OnCooldown:
		return Outcome{Description: fmt.Sprintf(msgCooldown, k.RetryAfter.Seconds())}
	case *commands.MissingArgument:
		return Outcome{Description: fmt.Sprintf(msgMissingArgument, k.Param)}
	case *commands.BadArgument:
		return Outcome{Description: msgBadArgument}
	}
	return Outcome{Unexpected: true, Description: msgUnexpected}
}

// Interaction classifies a failure of a slash command. Interaction arguments
// are validated by Discord, so only permission and cooldown failures have
// their own message.
func Interaction(kind commands.Kind) Outcome {
	switch k := kind.(type) {
	case *commands.MissingUserPermission:
		return Outcome{Description: msgMissingUserPermission}
	case *commands.MissingAgentPermission:
		return Outcome{Description: msgMissingAgentPermission}
	case *commands.OnCooldown:
		return Outcome{Description: fmt.Sprintf(msgCooldown, k.RetryAfter.Seconds())}
	}
	return Outcome{Unexpected: true, Description: msgUnexpected}
}

// notification renders an outcome. Unexpected failures get an incident
// reference in the footer that matches the error log line.
func notification(out Outcome, incident string) embeds.Notification {
	n := embeds.Error(errorTitle, out.Description)
	if incident != "" {
		n = n.WithFooter("Reference: "+incident, "")
	}
	return n
}

func logUnexpected(log *zap.Logger, msg string, ev commands.ErrorEvent) string {
	incident := uuid.NewString()

	fields := []zap.Field{
		zap.String("command", ev.Command),
		zap.String("path", ev.Path.String()),
		zap.String("incident", incident),
		zap.String("guild", ev.GuildID),
		zap.String("channel", ev.ChannelID),
		zap.String("user", ev.UserID),
	}
	var detail error = ev.Kind
	if u, ok := ev.Kind.(*commands.Unexpected); ok {
		if u.Err != nil {
			detail = u.Err
		}
		// only recovered panics carry the stack of the failure site
		if len(u.Stack) > 0 {
			fields = append(fields, zap.ByteString("stacktrace", u.Stack))
		}
	}
	fields = append(fields, zap.NamedError("detail", detail))

	log.Error(fmt.Sprintf("%s %s: %v", msg, ev.Command, detail), fields...)
	return incident
}
