// Package topic derives short display labels from free-text memory
// descriptions via an ordered keyword table.
package topic

import "strings"

// Fallback is returned when neither the description nor the title yields a topic.
const Fallback = "Memory"

// shortTitleMax is the length at or below which an explicit title wins outright.
const shortTitleMax = 20

// pattern maps a keyword set to a canonical topic label.
type pattern struct {
	keywords []string
	topic    string
}

// patterns is ordered configuration data: the first matching entry wins, so
// overlapping keyword sets resolve by table position.
var patterns = []pattern{
	{[]string{"birthday", "party", "celebrate"}, "Birthday Celebration"},
	{[]string{"wedding", "marriage", "bride", "groom"}, "Wedding Day"},
	{[]string{"vacation", "trip", "travel", "holiday"}, "Travel Adventure"},
	{[]string{"restaurant", "food", "dinner", "lunch", "eat"}, "Dining Experience"},
	{[]string{"beach", "ocean", "sea", "sand"}, "Beach Visit"},
	{[]string{"mountain", "hiking", "climb", "peak"}, "Mountain Adventure"},
	{[]string{"concert", "music", "band", "show"}, "Music Event"},
	{[]string{"graduation", "degree", "university", "college"}, "Graduation Day"},
	{[]string{"baby", "born", "birth", "newborn"}, "New Baby"},
	{[]string{"work", "job", "office", "meeting"}, "Work Event"},
	{[]string{"friend", "friends", "hangout", "meet"}, "Friend Meetup"},
	{[]string{"family", "reunion", "relatives"}, "Family Time"},
	{[]string{"park", "nature", "walk", "outdoor"}, "Nature Walk"},
	{[]string{"movie", "cinema", "film", "theater"}, "Movie Night"},
	{[]string{"shopping", "mall", "store", "buy"}, "Shopping Trip"},
	{[]string{"hospital", "doctor", "medical"}, "Medical Visit"},
	{[]string{"school", "class", "study", "learn"}, "School Memory"},
	{[]string{"home", "house", "move", "new"}, "Home Memory"},
	{[]string{"love", "romantic", "date", "kiss"}, "Romantic Moment"},
	{[]string{"sad", "cry", "difficult", "hard"}, "Difficult Time"},
	{[]string{"happy", "joy", "amazing", "wonderful"}, "Happy Moment"},
	{[]string{"surprise", "unexpected", "shock"}, "Surprise Event"},
	{[]string{"achievement", "success", "win", "award"}, "Achievement"},
	{[]string{"sport", "game", "play", "match"}, "Sports Event"},
	{[]string{"art", "museum", "gallery", "paint"}, "Art Experience"},
}

// Generate maps a free-text description to a short display label.
//
// An empty description yields the title (or Fallback). A title of 20
// characters or fewer wins unchanged. Otherwise the lowercased description
// is tested against the keyword table in order; with no match, the first
// three words longer than two characters are capitalized and joined.
func Generate(description, title string) string {
	if strings.TrimSpace(description) == "" {
		if title != "" {
			return title
		}
		return Fallback
	}

	if title != "" && len(title) <= shortTitleMax {
		return title
	}

	text := strings.ToLower(strings.TrimSpace(description))
	for _, p := range patterns {
		for _, kw := range p.keywords {
			if strings.Contains(text, kw) {
				return p.topic
			}
		}
	}

	var words []string
	for _, w := range strings.Split(description, " ") {
		if len(w) > 2 {
			words = append(words, capitalize(w))
			if len(words) == 3 {
				break
			}
		}
	}
	if len(words) == 0 {
		return Fallback
	}
	return strings.Join(words, " ")
}

// capitalize uppercases the first byte and lowercases the rest, matching the
// display style used for extracted words.
func capitalize(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
}
