package generation

import (
	"fmt"
	"sort"
	"strings"
)

// Grounding is the context the fallback composes from: the same
// material the primary prompt is built on.
type Grounding struct {
	// CharacterNames are the known character names.
	CharacterNames []string

	// PlaceNames are the known place names.
	PlaceNames []string

	// RecentExcerpts are short excerpts of recent episodes, newest
	// first.
	RecentExcerpts []string
}

// maxFallbackNames caps how many names the fallback weaves in.
const maxFallbackNames = 3

// Fallback synthesizes a minimally coherent chapter locally when the
// primary model call fails. Output is deterministic for a given
// grounding: same names and excerpts always yield the same text.
type Fallback struct{}

// Compose builds chapter text from the grounding. The result is never
// empty.
func (Fallback) Compose(g Grounding) string {
	characters := sampleNames(g.CharacterNames)
	places := sampleNames(g.PlaceNames)

	var b strings.Builder

	switch {
	case len(characters) > 0 && len(places) > 0:
		fmt.Fprintf(&b, "%s stood at the edge of %s, turning the night's events over once more.",
			characters[0], places[0])
	case len(characters) > 0:
		fmt.Fprintf(&b, "%s walked on alone, turning the night's events over once more.", characters[0])
	case len(places) > 0:
		fmt.Fprintf(&b, "The streets of %s lay quiet, holding their breath for what came next.", places[0])
	default:
		b.WriteString("The story pressed on, quieter than before but unwilling to stop.")
	}

	if excerpt := firstNonEmpty(g.RecentExcerpts); excerpt != "" {
		fmt.Fprintf(&b, "\n\nWhat had come before still lingered: %s", clip(excerpt, 160))
	}

	if len(characters) > 1 {
		fmt.Fprintf(&b, "\n\n%s arrived without a word. ", characters[1])
		if len(characters) > 2 {
			fmt.Fprintf(&b, "%s followed close behind. ", characters[2])
		}
		b.WriteString("None of them needed to explain why they had come back.")
	}

	if len(places) > 1 {
		fmt.Fprintf(&b, "\n\nBy morning they would have to choose: stay, or make for %s before the roads closed.",
			places[1])
	}

	return b.String()
}

// sampleNames returns up to maxFallbackNames names in sorted order, so
// composition is stable regardless of input order.
func sampleNames(names []string) []string {
	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	sort.Strings(cleaned)
	if len(cleaned) > maxFallbackNames {
		cleaned = cleaned[:maxFallbackNames]
	}
	return cleaned
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// clip truncates s to at most n runes.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
