package message

import "unicode/utf8"

// Ellipsis is appended to text cut down to a platform limit.
const Ellipsis = "..."

// limits are measured in runes.
var limits = map[Platform]int{
	Telegram:  4096,
	Farcaster: 320,
	Twitter:   280,
}

// Limit returns the maximum reply length for p and whether p declares one.
func Limit(p Platform) (int, bool) {
	n, ok := limits[p]
	return n, ok
}

// Truncate cuts text to the limit of p. Text over the limit keeps its first
// limit-3 runes followed by Ellipsis, so the result is exactly limit runes
// long. The second return value is false when p has no declared limit, in
// which case text is returned unchanged.
func Truncate(p Platform, text string) (string, bool) {
	limit, ok := limits[p]
	if !ok {
		return text, false
	}
	if utf8.RuneCountInString(text) <= limit {
		return text, true
	}
	keep := limit - utf8.RuneCountInString(Ellipsis)
	n := 0
	for i := range text {
		if n == keep {
			return text[:i] + Ellipsis, true
		}
		n++
	}
	return text, true
}
