package logging

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// IsRateLimit reports whether err came from a 429 response or a rate limit rejection.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode == http.StatusTooManyRequests
	}
	msg := err.Error()
	return strings.Contains(msg, "rate_limit") || strings.Contains(msg, "429")
}

// IsForbidden reports whether err is a Discord permission failure (HTTP 403,
// missing access or missing permissions).
func IsForbidden(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			return true
		}
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden
}

// IsMissingPermissions reports whether Discord rejected a call because the
// agent lacks a permission in the target channel or guild.
func IsMissingPermissions(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return false
	}
	return restErr.Message.Code == discordgo.ErrCodeMissingPermissions
}

// FailureReason names the class of a Discord delivery failure for log fields.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case IsRateLimit(err):
		return "rate_limited"
	case IsForbidden(err):
		return "forbidden"
	default:
		return "error"
	}
}
