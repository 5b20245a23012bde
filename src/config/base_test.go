package config

import (
	"testing"

	"github.com/stake-plus/chat-agent/src/data"
	"github.com/stretchr/testify/assert"
)

func TestLoadBaseDefaults(t *testing.T) {
	data.StoreSettings(nil)
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("COMMAND_PREFIX", "")
	t.Setenv("LOG_FILE", "")
	t.Setenv("SYNC_COMMANDS", "")

	cfg := LoadBase()
	assert.Equal(t, "!", cfg.Prefix)
	assert.Equal(t, "bot.log", cfg.LogFile)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.SyncCommands)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingToken)
}

func TestLoadBaseSettingsWinOverEnv(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "env-token")
	t.Setenv("COMMAND_PREFIX", "?")
	data.StoreSettings(map[string]string{"discord_token": "db-token"})
	t.Cleanup(func() { data.StoreSettings(nil) })

	cfg := LoadBase()
	assert.Equal(t, "db-token", cfg.Token)
	assert.Equal(t, "?", cfg.Prefix)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBlankToken(t *testing.T) {
	assert.ErrorIs(t, Base{Token: "   "}.Validate(), ErrMissingToken)
}

func TestGetBoolSetting(t *testing.T) {
	data.StoreSettings(nil)
	t.Setenv("SYNC_COMMANDS", "false")
	assert.False(t, getBoolSetting("sync_commands", "SYNC_COMMANDS", true))

	t.Setenv("SYNC_COMMANDS", "maybe")
	assert.True(t, getBoolSetting("sync_commands", "SYNC_COMMANDS", true))
}
