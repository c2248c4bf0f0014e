package types

// GenerationContext is the per-request view handed to strategies, the cascade
// and the selector. It is built once per request and never mutated afterwards.
type GenerationContext struct {
	Persona          string
	Profile          PersonaProfile
	Message          string
	History          []Message
	UserID           string
	ChannelID        string
	Mood             string
	Topic            string
	Intent           string
	IntentConfidence float64
	MoodConfidence   float64
	Keywords         []string
	MaxLength        int
}

// RecentHistory returns at most n trailing turns.
func (c *GenerationContext) RecentHistory(n int) []Message {
	if n <= 0 || len(c.History) == 0 {
		return nil
	}
	if len(c.History) <= n {
		return c.History
	}
	return c.History[len(c.History)-n:]
}

// Candidate is one generated reply competing for selection.
type Candidate struct {
	Text         string
	Source       string
	Confidence   float64
	Weight       float64
	CFScore      float64
	ContextScore float64
	Metadata     map[string]any
}

// NewCandidate returns a candidate with neutral multipliers.
func NewCandidate(text, source string, confidence float64) Candidate {
	return Candidate{
		Text:         text,
		Source:       source,
		Confidence:   confidence,
		Weight:       1,
		CFScore:      1,
		ContextScore: 1,
		Metadata:     map[string]any{},
	}
}

// FinalScore is confidence × weight × cf × context. Boost multipliers can push it above 1.
func (c Candidate) FinalScore() float64 {
	return c.Confidence * c.Weight * c.CFScore * c.ContextScore
}
