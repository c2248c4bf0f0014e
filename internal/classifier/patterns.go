package classifier

import (
	"strings"

	"github.com/easeaico/persona-engine/internal/types"
)

type pattern struct {
	label    string
	keywords []string
}

// IntentGeneral is the label when no intent pattern matches.
const IntentGeneral = "general"

var intentPatterns = []pattern{
	{"greeting", []string{
		"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
		"howdy", "greetings", "yo", "sup", "what's up", "how are you",
	}},
	{"question", []string{
		"what", "how", "why", "when", "where", "who", "which", "can you",
		"could you", "would you", "do you", "are you", "is it", "?",
	}},
	{"advice", []string{
		"help me", "i need", "suggest", "recommend", "advice", "should i",
		"what should", "how do i", "can you help", "tips", "guide",
	}},
	{"feelings", []string{
		"i feel", "i'm sad", "i'm happy", "feeling", "emotion", "upset",
		"excited", "worried", "anxious", "scared", "love", "hate", "miss",
	}},
	{"lore", []string{
		"elio", "glordon", "olga", "communiverse", "ambassador", "alien",
		"space", "pixar", "movie", "film", "story", "character",
	}},
	{"personal", []string{
		"you", "your", "yourself", "tell me about you", "what do you",
		"do you like", "favorite", "think", "believe", "opinion",
	}},
	{"action", []string{
		"play", "start", "stop", "begin", "let's", "show", "give",
		"tell", "make", "create", "do",
	}},
}

var moodPatterns = []pattern{
	{types.MoodCurious, []string{
		"what", "how", "why", "when", "where", "who", "which",
		"wonder", "curious", "interesting", "tell me", "explain",
		"?", "know", "learn", "understand", "discover",
	}},
	{types.MoodWarm, []string{
		"thank", "thanks", "appreciate", "grateful", "love",
		"care", "kind", "sweet", "nice", "wonderful", "amazing",
		"beautiful", "lovely", "friend", "happy", "joy",
	}},
	{types.MoodPlayful, []string{
		"haha", "lol", "funny", "joke", "play", "game", "fun",
		"silly", "laugh", "hehe", "teasing", "kidding", "just kidding",
	}},
	{types.MoodConcerned, []string{
		"worried", "concern", "afraid", "scared", "anxious",
		"nervous", "careful", "warning", "danger", "problem",
		"issue", "trouble", "wrong", "bad", "sad", "upset",
	}},
	{types.MoodExcited, []string{
		"wow", "amazing", "awesome", "incredible", "fantastic",
		"excited", "can't wait", "love it", "so cool", "best",
		"!", "yes", "great", "yay", "omg", "whoa",
	}},
	{types.MoodNeutral, []string{
		"okay", "ok", "sure", "alright", "fine", "i see",
		"understood", "got it", "makes sense",
	}},
}

// IsIntent reports whether label is a known intent other than general.
func IsIntent(label string) bool {
	for _, p := range intentPatterns {
		if p.label == label {
			return true
		}
	}
	return false
}

// Intents lists the intent labels including general.
func Intents() []string {
	out := make([]string, 0, len(intentPatterns)+1)
	for _, p := range intentPatterns {
		out = append(out, p.label)
	}
	return append(out, IntentGeneral)
}

// LabelIntent scores substring hits per intent; patterns longer than five
// characters count three times. No hit is general.
func LabelIntent(text string) string {
	lower := strings.ToLower(text)
	best, bestScore := IntentGeneral, 0
	for _, p := range intentPatterns {
		score := 0
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				score++
				if len(kw) > 5 {
					score += 2
				}
			}
		}
		if score > bestScore {
			best, bestScore = p.label, score
		}
	}
	return best
}

// LabelMood scores substring hits per mood with a bonus for '?' (curious)
// and '!' (excited). No hit is neutral.
func LabelMood(text string) string {
	lower := strings.ToLower(text)
	best, bestScore := types.MoodNeutral, 0
	for _, p := range moodPatterns {
		score := 0
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if p.label == types.MoodCurious && strings.Contains(lower, "?") {
			score += 2
		}
		if p.label == types.MoodExcited && strings.Contains(lower, "!") {
			score++
		}
		if score > bestScore {
			best, bestScore = p.label, score
		}
	}
	return best
}

// Sentiment maps a mood to positive, negative, question or neutral.
func Sentiment(mood string) string {
	switch mood {
	case types.MoodWarm, types.MoodExcited, types.MoodPlayful:
		return "positive"
	case types.MoodConcerned:
		return "negative"
	case types.MoodCurious:
		return "question"
	default:
		return "neutral"
	}
}
