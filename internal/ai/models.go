package ai

import "errors"

// ErrEmptyCompletion is returned when the backend answers without any text.
var ErrEmptyCompletion = errors.New("empty completion")

// Prompt is one completion request.
type Prompt struct {
	System string
	User   string

	// Model overrides the provider default when non-empty.
	Model       string
	Temperature float32
	MaxTokens   int
	// Seed pins sampling for reproducibility on backends that support it.
	Seed int
}

// Preference is the routing preference extracted from the user's query.
type Preference int

const (
	// PreferenceCheap asks the router for the lowest fare.
	PreferenceCheap Preference = iota
	// PreferenceFastOrNone covers "fastest" and "no preference"; the router
	// has no separate mode for the latter.
	PreferenceFastOrNone
)

// CheapestToken is the literal preference text for "save money".
const CheapestToken = "省錢"

// ParsePreference maps preference text onto the two routing preferences.
func ParsePreference(text string) Preference {
	if text == CheapestToken {
		return PreferenceCheap
	}
	return PreferenceFastOrNone
}

// Code returns the routing backend's gc parameter for p.
func (p Preference) Code() int {
	return int(p)
}

// Intent captures the structured output of the extraction stage.
type Intent struct {
	// Origin is the starting place name, in Chinese.
	Origin string `json:"origin"`

	// Destination is the target place name, in Chinese.
	Destination string `json:"destination"`

	// PreferenceText is the raw preference: "省錢", "省時間" or "無".
	PreferenceText string `json:"preference"`

	// Raw is the backend text the intent was parsed from. The narration
	// prompt embeds it next to the itinerary.
	Raw string `json:"-"`
}

// Preference maps the extracted preference text.
func (i Intent) Preference() Preference {
	return ParsePreference(i.PreferenceText)
}
