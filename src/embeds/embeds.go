// Package embeds builds the notification payloads the agent sends to Discord.
package embeds

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// Color is an embed accent color.
type Color int

const (
	ColorSuccess Color = 0x00ff00
	ColorError   Color = 0xff0000
	ColorWarning Color = 0xffaa00
	ColorInfo    Color = 0x0099ff
	ColorNeutral Color = 0x2f3136
)

// Template names a fixed title glyph and color pair.
type Template string

const (
	TemplateSuccess Template = "success"
	TemplateError   Template = "error"
	TemplateWarning Template = "warning"
	TemplateInfo    Template = "info"
)

var templates = map[Template]struct {
	glyph string
	color Color
}{
	TemplateSuccess: {"✅", ColorSuccess},
	TemplateError:   {"❌", ColorError},
	TemplateWarning: {"⚠️", ColorWarning},
	TemplateInfo:    {"ℹ️", ColorInfo},
}

// Field is one name/value row of a notification.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Author is shown above the title.
type Author struct {
	Name    string
	IconURL string
	URL     string
}

// Footer is shown below the fields.
type Footer struct {
	Text    string
	IconURL string
}

// Notification is an immutable description of one embed.
type Notification struct {
	Title       string
	Description string
	Color       Color
	Fields      []Field
	Thumbnail   string
	Image       string
	Author      *Author
	Footer      *Footer
	Timestamp   time.Time
}

var now = func() time.Time { return time.Now().UTC() }

// New fills the defaults of n: neutral color and the current time.
func New(n Notification) Notification {
	if n.Color == 0 {
		n.Color = ColorNeutral
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = now()
	}
	if len(n.Fields) > 0 {
		n.Fields = append([]Field(nil), n.Fields...)
	}
	return n
}

// FromTemplate prefixes title with the template glyph and applies its color.
// Unknown templates fall back to the neutral color without a glyph.
func FromTemplate(t Template, title, description string) Notification {
	tpl, ok := templates[t]
	if !ok {
		return New(Notification{Title: title, Description: description})
	}
	return New(Notification{
		Title:       tpl.glyph + " " + title,
		Description: description,
		Color:       tpl.color,
	})
}

func Success(title, description string) Notification {
	return FromTemplate(TemplateSuccess, title, description)
}

func Error(title, description string) Notification {
	return FromTemplate(TemplateError, title, description)
}

func Warning(title, description string) Notification {
	return FromTemplate(TemplateWarning, title, description)
}

func Info(title, description string) Notification {
	return FromTemplate(TemplateInfo, title, description)
}

// WithField returns a copy of n with one more field appended.
func (n Notification) WithField(name, value string, inline bool) Notification {
	fields := make([]Field, len(n.Fields), len(n.Fields)+1)
	copy(fields, n.Fields)
	n.Fields = append(fields, Field{Name: name, Value: value, Inline: inline})
	return n
}

// WithThumbnail returns a copy of n with the thumbnail set.
func (n Notification) WithThumbnail(url string) Notification {
	n.Thumbnail = url
	return n
}

// WithFooter returns a copy of n with the footer set.
func (n Notification) WithFooter(text, iconURL string) Notification {
	n.Footer = &Footer{Text: text, IconURL: iconURL}
	return n
}

// Embed converts n into the discordgo wire type.
func (n Notification) Embed() *discordgo.MessageEmbed {
	n = New(n)
	embed := &discordgo.MessageEmbed{
		Title:       n.Title,
		Description: n.Description,
		Color:       int(n.Color),
		Timestamp:   n.Timestamp.Format(time.RFC3339),
	}
	for _, f := range n.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	if n.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: n.Thumbnail}
	}
	if n.Image != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: n.Image}
	}
	if n.Author != nil {
		embed.Author = &discordgo.MessageEmbedAuthor{
			Name:    n.Author.Name,
			IconURL: n.Author.IconURL,
			URL:     n.Author.URL,
		}
	}
	if n.Footer != nil {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text:    n.Footer.Text,
			IconURL: n.Footer.IconURL,
		}
	}
	return embed
}
