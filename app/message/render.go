package message

import (
	"log/slog"
	"slices"
	"strings"
)

// Render substitutes every %name% token in the template's text fields with
// values[name]. Unknown tokens are left untouched and fields that are empty
// in the template stay empty. Substitution is a single pass, so a value that
// itself contains a token is not expanded again.
func Render(tmpl Message, values map[string]string) Message {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, Token(k), values[k])
	}
	r := strings.NewReplacer(pairs...)

	slog.Debug("Rendering message template", "placeholders", keys)

	var out Message

	if tmpl.Content != "" {
		out.Content = r.Replace(tmpl.Content)
	}

	if tmpl.Embeds != nil {
		out.Embeds = make([]Embed, 0, len(tmpl.Embeds))
		for _, embed := range tmpl.Embeds {
			rendered := Embed{Color: embed.Color}
			if embed.Title != "" {
				rendered.Title = r.Replace(embed.Title)
			}
			if embed.Description != "" {
				rendered.Description = r.Replace(embed.Description)
			}
			if embed.Image != nil {
				rendered.Image = &Image{URL: r.Replace(embed.Image.URL)}
			}
			out.Embeds = append(out.Embeds, rendered)
		}
	}

	if tmpl.Components != nil {
		out.Components = make([]ActionRow, 0, len(tmpl.Components))
		for _, row := range tmpl.Components {
			rendered := ActionRow{Type: row.Type, Components: []Button{}}
			for _, button := range row.Components {
				rendered.Components = append(rendered.Components, Button{
					Type:  button.Type,
					Label: r.Replace(button.Label),
					Style: button.Style,
					URL:   r.Replace(button.URL),
				})
			}
			out.Components = append(out.Components, rendered)
		}
	}

	return out
}
