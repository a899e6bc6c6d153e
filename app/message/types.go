package message

// Message is a Discord message payload. The same shape is used for stored
// templates and for rendered messages.
type Message struct {
	Content    string      `json:"content,omitempty" yaml:"content,omitempty" validate:"max=2000"`
	Embeds     []Embed     `json:"embeds,omitempty" yaml:"embeds,omitempty" validate:"max=1,dive"`
	Components []ActionRow `json:"components,omitempty" yaml:"components,omitempty" validate:"max=1,dive"`
}

type Embed struct {
	Title       string `json:"title,omitempty" yaml:"title,omitempty" validate:"max=256"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" validate:"max=4096"`
	Color       int    `json:"color,omitempty" yaml:"color,omitempty" validate:"min=0,max=16777215"`
	Image       *Image `json:"image,omitempty" yaml:"image,omitempty" validate:"omitempty"`
}

type Image struct {
	URL string `json:"url" yaml:"url" validate:"required,secureurl=thumbnail"`
}

type ActionRow struct {
	Type       int      `json:"type" yaml:"type" validate:"eq=1"`
	Components []Button `json:"components" yaml:"components" validate:"len=1,dive"`
}

type Button struct {
	Type  int    `json:"type" yaml:"type" validate:"eq=2"`
	Label string `json:"label" yaml:"label" validate:"required,max=80"`
	Style int    `json:"style" yaml:"style" validate:"eq=5"`
	URL   string `json:"url" yaml:"url" validate:"required,secureurl=link"`
}

const (
	ComponentTypeActionRow = 1
	ComponentTypeButton    = 2
	ButtonStyleLink        = 5
)

// Placeholder tokens recognized inside template strings.
const (
	PlaceholderUsername  = "username"
	PlaceholderTitle     = "title"
	PlaceholderLink      = "link"
	PlaceholderThumbnail = "thumbnail"
	PlaceholderGame      = "game"
)

// Token returns the template form of a placeholder name, e.g. "%title%".
func Token(name string) string {
	return "%" + name + "%"
}
