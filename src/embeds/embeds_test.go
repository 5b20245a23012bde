package embeds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	prev := now
	now = func() time.Time { return ts }
	t.Cleanup(func() { now = prev })
	return ts
}

func TestTemplates(t *testing.T) {
	ts := fixedNow(t)

	cases := []struct {
		build func(string, string) Notification
		title string
		color Color
	}{
		{Success, "✅ Done", ColorSuccess},
		{Error, "❌ Done", ColorError},
		{Warning, "⚠️ Done", ColorWarning},
		{Info, "ℹ️ Done", ColorInfo},
	}
	for _, tc := range cases {
		n := tc.build("Done", "body")
		assert.Equal(t, tc.title, n.Title)
		assert.Equal(t, "body", n.Description)
		assert.Equal(t, tc.color, n.Color)
		assert.Equal(t, ts, n.Timestamp)
	}
}

func TestNewDefaults(t *testing.T) {
	ts := fixedNow(t)

	n := New(Notification{Title: "plain"})
	assert.Equal(t, ColorNeutral, n.Color)
	assert.Equal(t, ts, n.Timestamp)

	explicit := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	n = New(Notification{Title: "plain", Color: ColorInfo, Timestamp: explicit})
	assert.Equal(t, ColorInfo, n.Color)
	assert.Equal(t, explicit, n.Timestamp)
}

func TestUnknownTemplateIsNeutral(t *testing.T) {
	fixedNow(t)
	n := FromTemplate(Template("shout"), "Hi", "")
	assert.Equal(t, "Hi", n.Title)
	assert.Equal(t, ColorNeutral, n.Color)
}

func TestWithFieldDoesNotAlias(t *testing.T) {
	base := Info("Status", "").WithField("a", "1", true)
	left := base.WithField("b", "2", false)
	right := base.WithField("c", "3", false)

	require.Len(t, left.Fields, 2)
	require.Len(t, right.Fields, 2)
	assert.Equal(t, "b", left.Fields[1].Name)
	assert.Equal(t, "c", right.Fields[1].Name)
}

func TestEmbed(t *testing.T) {
	ts := fixedNow(t)

	embed := New(Notification{
		Title:       "t",
		Description: "d",
		Image:       "https://img",
		Author:      &Author{Name: "me", IconURL: "https://icon", URL: "https://me"},
	}).WithField("Servers", "3", true).WithThumbnail("https://thumb").WithFooter("foot", "").Embed()

	assert.Equal(t, "t", embed.Title)
	assert.Equal(t, int(ColorNeutral), embed.Color)
	assert.Equal(t, ts.Format(time.RFC3339), embed.Timestamp)
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "Servers", embed.Fields[0].Name)
	assert.True(t, embed.Fields[0].Inline)
	assert.Equal(t, "https://thumb", embed.Thumbnail.URL)
	assert.Equal(t, "https://img", embed.Image.URL)
	assert.Equal(t, "me", embed.Author.Name)
	assert.Equal(t, "foot", embed.Footer.Text)
}

func TestEmbedAlwaysHasColorAndTimestamp(t *testing.T) {
	embed := Notification{}.Embed()
	assert.NotZero(t, embed.Color)
	assert.NotEmpty(t, embed.Timestamp)
}
