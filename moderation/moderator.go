// Package moderation censors configured words in outgoing text messages.
package moderation

import (
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Moderator struct {
	machine     *goahocorasick.Machine
	replacement rune
}

// NewModerator builds an Aho-Corasick automaton over the lowercased word
// list. An empty list yields a pass-through moderator.
func NewModerator(words []string, replacement rune) (Moderator, error) {
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		patterns = append(patterns, []rune(word))
	}
	if len(patterns) == 0 {
		return Moderator{replacement: replacement}, nil
	}
	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return Moderator{}, err
	}
	return Moderator{machine: machine, replacement: replacement}, nil
}

// Censor replaces every occurrence of a censored word with the replacement
// character. Matching is case-insensitive and the message length is
// preserved.
func (m Moderator) Censor(text string) string {
	if m.machine == nil {
		return text
	}
	runes := []rune(text)
	lowered := make([]rune, len(runes))
	for i, r := range runes {
		lowered[i] = unicode.ToLower(r)
	}
	terms := m.machine.MultiPatternSearch(lowered, false)
	if len(terms) == 0 {
		return text
	}
	for _, term := range terms {
		end := term.Pos + len(term.Word)
		if end > len(runes) {
			continue
		}
		for i := term.Pos; i < end; i++ {
			runes[i] = m.replacement
		}
	}
	return string(runes)
}
