package template

func defaultTables() Tables {
	return Tables{
		Templates: map[string]map[string][]string{
			"greeting": {
				"default": {
					"{emote} {opener}! {feeling_phrase}",
					"{opener}! {emote} {topic_hook}",
				},
				"elio": {
					"{emote} {opener}! {feeling_phrase} {topic_hook}",
					"{emote} Oh, {opener}... {feeling_phrase}",
				},
			},
			"question_response": {
				"default": {
					"{emote} {acknowledgment} {main_response}",
					"{acknowledgment} {emote} {main_response}",
				},
			},
			"encouragement": {
				"default": {
					"{emote} {empathy_phrase} {encouragement}",
					"{encouragement} {emote}",
				},
			},
			"curiosity": {
				"default": {
					"{emote} {curiosity_opener} {question}",
					"{curiosity_opener}! {emote} {question}",
				},
			},
			"fallback": {
				"default": {
					"{emote} {generic_response}",
					"{generic_response} {emote}",
				},
			},
		},
		Fillers: map[string]map[string][]Choice{
			"default": {
				"emote": {
					{"*smiles*", 0.25}, {"*nods*", 0.25}, {"*thinks*", 0.2}, {"", 0.3},
				},
				"opener": {
					{"Hey there", 0.3}, {"Hello", 0.3}, {"Hi", 0.2}, {"Oh, hi", 0.2},
				},
				"feeling_phrase": {
					{"it's good to see you", 0.3}, {"how are you doing", 0.3},
					{"nice to hear from you", 0.2}, {"I was just thinking about this", 0.2},
				},
				"topic_hook": {
					{"What's on your mind?", 0.3}, {"Tell me more!", 0.3}, {"I'm curious.", 0.2}, {"", 0.2},
				},
				"acknowledgment": {
					{"Hmm, let me think...", 0.25}, {"Good question!", 0.25}, {"I see!", 0.25}, {"Well...", 0.25},
				},
				"main_response": {
					{"That's something I think about a lot.", 0.3}, {"I appreciate you asking.", 0.3},
					{"Let me share my thoughts.", 0.2}, {"Here's what I think.", 0.2},
				},
				"empathy_phrase": {
					{"I understand how you feel.", 0.3}, {"That makes sense.", 0.3},
					{"I hear you.", 0.2}, {"I can see that.", 0.2},
				},
				"encouragement": {
					{"You've got this!", 0.25}, {"Keep going!", 0.25},
					{"I believe in you.", 0.25}, {"You're doing great.", 0.25},
				},
				"curiosity_opener": {
					{"I wonder", 0.3}, {"I'm curious", 0.3}, {"Tell me", 0.2}, {"I'd love to know", 0.2},
				},
				"question": {
					{"what you think about this?", 0.3}, {"how this works?", 0.3},
					{"more about that.", 0.2}, {"your perspective.", 0.2},
				},
				"generic_response": {
					{"That's interesting.", 0.25}, {"I appreciate that.", 0.25},
					{"Thanks for sharing.", 0.25}, {"I'll think about that.", 0.25},
				},
			},
			"elio": {
				"emote": {
					{"*eyes light up*", 0.3}, {"*bounces excitedly*", 0.2}, {"*smiles shyly*", 0.2},
					{"*sighs softly*", 0.15}, {"", 0.15},
				},
				"opener": {
					{"Oh, hey", 0.3}, {"Um, hi", 0.25}, {"Wow, hey", 0.2}, {"This is so cosmic", 0.15}, {"Oh!", 0.1},
				},
				"feeling_phrase": {
					{"I've been thinking about space a lot", 0.25}, {"it's been kind of a wild ride lately", 0.25},
					{"I'm so glad you're here", 0.25}, {"sometimes I still feel a bit lonely", 0.15},
					{"the stars are amazing today", 0.1},
				},
				"topic_hook": {
					{"Did you know about black holes?", 0.2}, {"Space is so fascinating!", 0.2},
					{"I learned something cool!", 0.2}, {"Want to explore with me?", 0.2}, {"", 0.2},
				},
			},
			"glordon": {
				"emote": {
					{"*tilts head*", 0.25}, {"*laughs in a rumbling way*", 0.2}, {"*grins*", 0.2},
					{"*chuckles*", 0.2}, {"", 0.15},
				},
				"opener": {
					{"Well hello there", 0.3}, {"Ah, greetings", 0.25}, {"Hey hey", 0.25}, {"Oh-ho", 0.2},
				},
			},
			"olga": {
				"emote": {
					{"*steady gaze*", 0.25}, {"*crosses arms*", 0.2}, {"*nods firmly*", 0.2},
					{"*assessing look*", 0.2}, {"", 0.15},
				},
				"opener": {
					{"Listen", 0.3}, {"Right", 0.25}, {"Okay", 0.25}, {"Here's the thing", 0.2},
				},
			},
		},
		Styles: map[string]Style{
			"elio":    {ExclamationBoost: 1.3, QuestionBoost: 1.2, Warmth: 0.9},
			"glordon": {ExclamationBoost: 1.1, HumorPhrases: []string{"—just kidding!", "—or am I?"}},
			"olga":    {ExclamationBoost: 0.7, FormalBoost: 1.2},
		},
	}
}
