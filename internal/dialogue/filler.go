package dialogue

import "math/rand/v2"

var moodFillers = map[string][]string{
	"neutral":   {"", "*nods*", "*thinks*"},
	"curious":   {"*leans in*", "*eyes widen*", "*tilts head*"},
	"warm":      {"*smiles softly*", "*nods warmly*", "*gentle expression*"},
	"playful":   {"*chuckles*", "*grins*", "*winks*"},
	"concerned": {"*furrows brow*", "*looks worried*", "*pauses*"},
	"excited":   {"*eyes light up*", "*bounces*", "*beams*"},
}

// MoodFiller returns an emote for mood. It may be empty.
func MoodFiller(r *rand.Rand, mood string) string {
	options := moodFillers[mood]
	if len(options) == 0 {
		return ""
	}
	return options[r.IntN(len(options))]
}

// MoodFiller returns an emote for the tracker's current mood.
func (t *Tracker) MoodFiller(r *rand.Rand) string {
	return MoodFiller(r, t.mood)
}
