package core

// CategoryInfo pairs a category value with its display label and emoji.
type CategoryInfo struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Emoji string `json:"emoji"`
}

// Categories is the fixed set of memory categories, in display order.
var Categories = []CategoryInfo{
	{Value: "love", Label: "❤️ Love", Emoji: "❤️"},
	{Value: "travel", Label: "✈️ Travel", Emoji: "✈️"},
	{Value: "food", Label: "🍕 Food", Emoji: "🍕"},
	{Value: "friendship", Label: "👫 Friendship", Emoji: "👫"},
	{Value: "family", Label: "👨👩👧 Family", Emoji: "👨👩👧"},
	{Value: "adventure", Label: "🏔️ Adventure", Emoji: "🏔️"},
	{Value: "memory", Label: "💭 Memory", Emoji: "💭"},
	{Value: "other", Label: "✨ Other", Emoji: "✨"},
}

// CategoryLabel returns the display label for a category value.
// Unknown values fall back to the generic memory label.
func CategoryLabel(value string) string {
	for _, c := range Categories {
		if c.Value == value {
			return c.Label
		}
	}
	return "💭 Memory"
}

// ValidCategory reports whether value is one of the fixed categories.
// The empty string is allowed (category is optional).
func ValidCategory(value string) bool {
	if value == "" {
		return true
	}
	for _, c := range Categories {
		if c.Value == value {
			return true
		}
	}
	return false
}
