package classifier

import (
	"fmt"
	"strings"

	"github.com/easeaico/persona-engine/internal/types"
)

var personaMoodPriors = map[string]map[string]float64{
	"elio": {
		types.MoodCurious: 0.25, types.MoodExcited: 0.2, types.MoodWarm: 0.15,
		types.MoodPlayful: 0.15, types.MoodNeutral: 0.15, types.MoodConcerned: 0.1,
	},
	"glordon": {
		types.MoodPlayful: 0.25, types.MoodWarm: 0.25, types.MoodCurious: 0.15,
		types.MoodNeutral: 0.15, types.MoodExcited: 0.1, types.MoodConcerned: 0.1,
	},
	"olga": {
		types.MoodNeutral: 0.25, types.MoodConcerned: 0.2, types.MoodWarm: 0.2,
		types.MoodCurious: 0.15, types.MoodPlayful: 0.1, types.MoodExcited: 0.1,
	},
}

// Mood classifies the mood of a message.
type Mood struct {
	model Model
}

// NewMood wraps model; nil uses naive Bayes.
func NewMood(model Model) *Mood {
	if model == nil {
		model = NewNaiveBayes(0.1)
	}
	return &Mood{model: model}
}

// TrainSamples fits on user and assistant turns, labelled by pattern.
func (c *Mood) TrainSamples(samples map[string][]types.TrainingSample) error {
	var texts, labels []string
	for _, list := range samples {
		for _, s := range list {
			for _, text := range []string{s.User, s.Reply} {
				if text == "" {
					continue
				}
				texts = append(texts, text)
				labels = append(labels, LabelMood(text))
			}
		}
	}
	if len(texts) == 0 {
		return nil
	}
	if err := c.model.Train(texts, labels); err != nil {
		return fmt.Errorf("failed to train mood classifier: %w", err)
	}
	return nil
}

// Predict labels text. A trained model's posterior is multiplied by the
// persona's mood prior (0.1 for moods the prior omits) and renormalized.
// Sentiment follows the unadjusted label.
func (c *Mood) Predict(text, persona string) Prediction {
	if !c.model.Trained() {
		label := LabelMood(text)
		return Prediction{
			Label:         label,
			Confidence:    0.5,
			Probabilities: map[string]float64{label: 0.5},
			Sentiment:     Sentiment(label),
		}
	}

	probs := c.model.Predict(text)
	raw, _ := argmax(probs)
	if priors, ok := personaMoodPriors[strings.ToLower(persona)]; ok {
		probs = reweight(probs, priors, 0.1)
	}
	label, conf := argmax(probs)
	return Prediction{Label: label, Confidence: conf, Probabilities: probs, Sentiment: Sentiment(raw)}
}

// Trained reports whether the underlying model is fitted.
func (c *Mood) Trained() bool {
	return c.model.Trained()
}
