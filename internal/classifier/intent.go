package classifier

import (
	"fmt"
	"strings"

	"github.com/easeaico/persona-engine/internal/types"
)

// Prediction is a classifier verdict.
type Prediction struct {
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	Sentiment     string             `json:"sentiment,omitempty"`
}

var personaIntentWeights = map[string]map[string]float64{
	"elio":    {"lore": 1.5, "question": 1.2, "feelings": 1.1},
	"glordon": {"feelings": 1.3, "greeting": 1.2, "personal": 1.2},
	"olga":    {"advice": 1.3, "action": 1.2, "question": 1.1},
}

// Intent classifies user messages. Until trained it labels by keyword
// patterns at confidence 0.5.
type Intent struct {
	model Model
}

// NewIntent wraps model; nil uses naive Bayes.
func NewIntent(model Model) *Intent {
	if model == nil {
		model = NewNaiveBayes(0.1)
	}
	return &Intent{model: model}
}

// TrainSamples fits on user utterances. A scenario that names an intent is
// used as the label; otherwise the pattern label is.
func (c *Intent) TrainSamples(samples map[string][]types.TrainingSample) error {
	var texts, labels []string
	for _, list := range samples {
		for _, s := range list {
			if s.User == "" {
				continue
			}
			texts = append(texts, s.User)
			if IsIntent(s.Scenario) {
				labels = append(labels, s.Scenario)
			} else {
				labels = append(labels, LabelIntent(s.User))
			}
		}
	}
	if len(texts) == 0 {
		return nil
	}
	if err := c.model.Train(texts, labels); err != nil {
		return fmt.Errorf("failed to train intent classifier: %w", err)
	}
	return nil
}

// Predict labels text, reweighting by the persona's intent preferences.
func (c *Intent) Predict(text, persona string) Prediction {
	if !c.model.Trained() {
		label := LabelIntent(text)
		probs := map[string]float64{label: 0.5}
		if label != IntentGeneral {
			probs[IntentGeneral] = 0.5
		}
		return Prediction{Label: label, Confidence: 0.5, Probabilities: probs}
	}

	probs := c.model.Predict(text)
	if weights, ok := personaIntentWeights[strings.ToLower(persona)]; ok {
		probs = reweight(probs, weights, 1)
	}
	label, conf := argmax(probs)
	return Prediction{Label: label, Confidence: conf, Probabilities: probs}
}

// Trained reports whether the underlying model is fitted.
func (c *Intent) Trained() bool {
	return c.model.Trained()
}
