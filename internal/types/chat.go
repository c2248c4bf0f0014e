package types

const (
	// RoleUser marks a turn written by the human.
	RoleUser = "user"
	// RoleAssistant marks a turn written by the bot.
	RoleAssistant = "assistant"
)

// Message is one role/content turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TrainingSample is one persona-tagged exchange from the corpus.
type TrainingSample struct {
	Persona  string `json:"persona"`
	User     string `json:"user"`
	Reply    string `json:"reply"`
	Scenario string `json:"scenario"`
}

// Request is an inbound chat turn.
type Request struct {
	Persona       string    `json:"persona"`
	Message       string    `json:"message"`
	History       []Message `json:"history,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	ChannelID     string    `json:"channel_id,omitempty"`
	NumCandidates int       `json:"num_candidates,omitempty"`
	MaxLength     int       `json:"max_length,omitempty"`
}

// MLAnalysis reports the classifier and keyword view of the message.
type MLAnalysis struct {
	Intent           string   `json:"intent"`
	IntentConfidence float64  `json:"intent_confidence"`
	Mood             string   `json:"mood"`
	MoodConfidence   float64  `json:"mood_confidence"`
	Keywords         []string `json:"keywords"`
	DetectedPersona  string   `json:"detected_persona"`
}

// Response is the engine reply.
type Response struct {
	Text       string         `json:"text"`
	Persona    string         `json:"persona"`
	Strategy   string         `json:"strategy"`
	Mood       string         `json:"mood"`
	Topic      string         `json:"topic"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	MLAnalysis MLAnalysis     `json:"ml_analysis"`
}
