package message

import (
	"strconv"
	"strings"
)

// EditorFields is the flat form the message editor submits.
type EditorFields struct {
	MessageContent string `json:"messageContent"`
	EmbedTitle     string `json:"embedTitle"`
	EmbedDesc      string `json:"embedDesc"`
	EmbedImage     string `json:"embedImage"`
	EmbedColor     string `json:"embedColor"`
	ButtonTitle    string `json:"buttonTitle"`
	ButtonLink     string `json:"buttonLink"`
}

// FromEditor builds a template from editor fields. An embed is added when
// any embed field is set and a link button when both its title and link are
// set. An unparsable color is treated as no color.
func FromEditor(f EditorFields) Message {
	var msg Message

	if strings.TrimSpace(f.MessageContent) != "" {
		msg.Content = f.MessageContent
	}

	color, _ := strconv.Atoi(strings.TrimSpace(f.EmbedColor))

	if f.EmbedTitle != "" || f.EmbedDesc != "" || f.EmbedImage != "" || color != 0 {
		embed := Embed{Color: color}
		if strings.TrimSpace(f.EmbedTitle) != "" {
			embed.Title = f.EmbedTitle
		}
		if strings.TrimSpace(f.EmbedDesc) != "" {
			embed.Description = f.EmbedDesc
		}
		if strings.TrimSpace(f.EmbedImage) != "" {
			embed.Image = &Image{URL: f.EmbedImage}
		}
		msg.Embeds = []Embed{embed}
	}

	if f.ButtonTitle != "" && f.ButtonLink != "" {
		msg.Components = []ActionRow{{
			Type: ComponentTypeActionRow,
			Components: []Button{{
				Type:  ComponentTypeButton,
				Label: f.ButtonTitle,
				Style: ButtonStyleLink,
				URL:   f.ButtonLink,
			}},
		}}
	}

	return msg
}
