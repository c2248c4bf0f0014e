package corpus

import (
	"math/rand/v2"
	"strings"

	"github.com/easeaico/persona-engine/internal/types"
	"github.com/easeaico/persona-engine/internal/utils"
)

var moodFillers = map[string][]string{
	"curious": {"*leans in*", "*eyes widen*"},
	"warm":    {"*smiles softly*", "*nods warmly*"},
	"playful": {"*chuckles*", "*grins*"},
	"neutral": {""},
}

var personaFillers = map[string][]string{
	"elio":    {"*eyes light up*", "*bounces*"},
	"glordon": {"*tilts head*", "*laughs in a rumbling way*"},
	"olga":    {"*steady gaze*", "*crosses arms*"},
}

// MoodFiller picks an emote for mood, mixing in persona-specific ones.
func MoodFiller(r *rand.Rand, persona, mood string) string {
	if mood == "" {
		mood = "neutral"
	}
	options, ok := moodFillers[mood]
	if !ok {
		options = []string{""}
	}
	if extra, ok := personaFillers[strings.ToLower(persona)]; ok {
		options = append(append([]string(nil), options...), extra...)
	}
	return strings.TrimSpace(utils.Choice(r, options))
}

// StyleWrap decorates text with an opener (40%), a speaking-style hint (25%)
// and a mood emote.
func StyleWrap(r *rand.Rand, profile types.PersonaProfile, persona, text, mood string) string {
	filler := MoodFiller(r, persona, mood)

	prefix := ""
	if len(profile.Openers) > 0 && r.Float64() < 0.4 {
		prefix = strings.TrimSpace(utils.Choice(r, profile.Openers)) + " "
	}
	hint := ""
	if profile.SpeakingStyle != "" && r.Float64() < 0.25 {
		first, _, _ := strings.Cut(profile.SpeakingStyle, ".")
		hint = " (" + strings.TrimSpace(first) + ") "
	}

	parts := prefix + filler + hint + text
	return strings.Join(strings.Fields(parts), " ")
}
