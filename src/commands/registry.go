package commands

import (
	"errors"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// ErrDuplicateCommand is returned when a name or alias is already registered.
var ErrDuplicateCommand = errors.New("commands: duplicate command")

func normalizeKey(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

// Discord rejects a clashing command name as an invalid form body. The
// field errors name the clash.
const (
	codeInvalidFormBody = 50035
	duplicateNameCode   = "APPLICATION_COMMANDS_DUPLICATE_NAME"
)

// IsDuplicateCommandError reports whether Discord rejected a command
// registration because a command with that name already exists.
func IsDuplicateCommandError(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return false
	}
	if restErr.Message.Code != codeInvalidFormBody {
		return false
	}
	body := string(restErr.ResponseBody)
	return strings.Contains(body, duplicateNameCode) ||
		strings.Contains(strings.ToLower(restErr.Message.Message), "already exists")
}
