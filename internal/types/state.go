package types

// Moods in the order the dialogue tracker indexes them.
const (
	MoodNeutral   = "neutral"
	MoodCurious   = "curious"
	MoodWarm      = "warm"
	MoodPlayful   = "playful"
	MoodConcerned = "concerned"
	MoodExcited   = "excited"
)

// Topics in the order the dialogue tracker indexes them.
const (
	TopicGreeting = "greeting"
	TopicPersonal = "personal"
	TopicAdvice   = "advice"
	TopicLore     = "lore"
	TopicFeelings = "feelings"
	TopicGeneral  = "general"
)

// Moods lists every mood state.
var Moods = []string{MoodNeutral, MoodCurious, MoodWarm, MoodPlayful, MoodConcerned, MoodExcited}

// Topics lists every topic state.
var Topics = []string{TopicGreeting, TopicPersonal, TopicAdvice, TopicLore, TopicFeelings, TopicGeneral}

// IsMood reports whether s is a known mood.
func IsMood(s string) bool {
	return indexOf(Moods, s) >= 0
}

// IsTopic reports whether s is a known topic.
func IsTopic(s string) bool {
	return indexOf(Topics, s) >= 0
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
