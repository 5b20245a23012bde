package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/stake-plus/chat-agent/src/data"
)

// ErrMissingToken is returned when no bot token is configured. It is the only
// condition that stops the agent from starting.
var ErrMissingToken = errors.New("DISCORD_TOKEN environment variable not set")

// Base contains the agent configuration.
type Base struct {
	Token      string
	Prefix     string
	GuildID    string
	LogFile    string
	LogLevel   string
	RedisURL   string
	StatusAddr string
	MySQLDSN   string
	// SyncCommands publishes the slash command registry during startup.
	SyncCommands bool
}

// LoadBase resolves every setting from the settings cache, the environment and
// finally the default. Call data.LoadSettings first when a settings table is in use.
func LoadBase() Base {
	return Base{
		Token:      GetSetting("discord_token", "DISCORD_TOKEN", ""),
		Prefix:     GetSetting("command_prefix", "COMMAND_PREFIX", "!"),
		GuildID:    GetSetting("guild_id", "GUILD_ID", ""),
		LogFile:    GetSetting("log_file", "LOG_FILE", "bot.log"),
		LogLevel:   GetSetting("log_level", "LOG_LEVEL", "info"),
		RedisURL:   GetSetting("redis_url", "REDIS_URL", ""),
		StatusAddr: GetSetting("status_addr", "STATUS_ADDR", ""),
		MySQLDSN:   data.GetMySQLDSN(),

		SyncCommands: getBoolSetting("sync_commands", "SYNC_COMMANDS", true),
	}
}

// Validate checks the startup preconditions.
func (b Base) Validate() error {
	if strings.TrimSpace(b.Token) == "" {
		return ErrMissingToken
	}
	return nil
}

// GetSetting resolves name from the settings table, then envKey, then
// defaultValue. Empty values fall through.
func GetSetting(name, envKey, defaultValue string) string {
	for _, v := range [...]string{data.GetSetting(name), os.Getenv(envKey)} {
		if v != "" {
			return v
		}
	}
	return defaultValue
}

func getBoolSetting(name, envKey string, defaultValue bool) bool {
	raw := GetSetting(name, envKey, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return v
}
