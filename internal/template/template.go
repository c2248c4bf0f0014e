// Package template fills persona reply templates from weighted slot tables.
package template

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/easeaico/persona-engine/internal/utils"
)

// Source tags candidates produced by the filler.
const Source = "template_fill"

const (
	defaultKey = "default"
	// FallbackScenario is used when a scenario has no templates.
	FallbackScenario = "fallback"
)

var (
	slotPattern      = regexp.MustCompile(`\{(\w+)\}`)
	spaceRun         = regexp.MustCompile(`\s+`)
	spaceBeforePunct = regexp.MustCompile(`\s+([.,!?])`)
)

// Choice is a weighted slot value.
type Choice struct {
	Text   string  `yaml:"text" json:"text"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// Style tweaks a persona's punctuation and humor.
type Style struct {
	ExclamationBoost float64  `yaml:"exclamation_boost,omitempty" json:"exclamation_boost,omitempty"`
	QuestionBoost    float64  `yaml:"question_boost,omitempty" json:"question_boost,omitempty"`
	FormalBoost      float64  `yaml:"formal_boost,omitempty" json:"formal_boost,omitempty"`
	Warmth           float64  `yaml:"warmth,omitempty" json:"warmth,omitempty"`
	HumorPhrases     []string `yaml:"humor_phrases,omitempty" json:"humor_phrases,omitempty"`
}

// Tables is the on-disk layout: templates[scenario][persona],
// slot_fillers[persona][slot] and persona_styles[persona]. Persona keys are
// lower case; "default" applies to everyone.
type Tables struct {
	Templates map[string]map[string][]string `yaml:"templates" json:"templates"`
	Fillers   map[string]map[string][]Choice `yaml:"slot_fillers" json:"slot_fillers"`
	Styles    map[string]Style               `yaml:"persona_styles" json:"persona_styles"`
}

// Result is a filled template.
type Result struct {
	Text       string
	Confidence float64
	Source     string
	Metadata   map[string]any
}

// Filler fills templates. It is safe for concurrent use.
type Filler struct {
	mu     sync.RWMutex
	tables Tables
}

// New returns a filler with the built-in tables.
func New() *Filler {
	return &Filler{tables: defaultTables()}
}

// Load reads tables from a YAML or JSON file. A missing path or file gives
// the built-in tables; a file that does not decode is an error.
func Load(path string) (*Filler, error) {
	if path == "" {
		return New(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read templates file: %w", err)
	}
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode templates file: %w", err)
	}
	if len(t.Templates) == 0 {
		return nil, fmt.Errorf("templates file %s has no templates", path)
	}
	if t.Fillers == nil {
		t.Fillers = make(map[string]map[string][]Choice)
	}
	if t.Styles == nil {
		t.Styles = make(map[string]Style)
	}
	return &Filler{tables: t}, nil
}

// Save writes the tables as YAML.
func (f *Filler) Save(path string) error {
	f.mu.RLock()
	data, err := yaml.Marshal(f.tables)
	f.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode templates: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write templates file: %w", err)
	}
	return nil
}

// Fill renders a template for persona and scenario. Slots present in
// context win over the filler tables. Unknown scenarios use the fallback
// templates.
func (f *Filler) Fill(r *rand.Rand, persona, scenario, mood string, context map[string]string) Result {
	key := strings.ToLower(persona)

	f.mu.RLock()
	defer f.mu.RUnlock()

	byPersona, ok := f.tables.Templates[scenario]
	if !ok {
		byPersona = f.tables.Templates[FallbackScenario]
	}
	templates, ok := byPersona[key]
	if !ok {
		templates = byPersona[defaultKey]
	}
	if len(templates) == 0 {
		return Result{Source: Source}
	}

	tmpl := utils.Choice(r, templates)
	slots := slotPattern.FindAllStringSubmatch(tmpl, -1)
	filled, text := 0, tmpl
	for _, m := range slots {
		slot := m[1]
		value, inContext := context[slot]
		if !inContext {
			value = weightedChoice(r, f.choices(key, slot), mood)
		}
		if value != "" {
			filled++
		}
		text = strings.Replace(text, m[0], value, 1)
	}

	text = strings.TrimSpace(spaceRun.ReplaceAllString(text, " "))
	text = spaceBeforePunct.ReplaceAllString(text, "$1")
	text = applyStyle(r, f.tables.Styles[key], text, mood)

	return Result{
		Text:       text,
		Confidence: 0.5 + 0.3*float64(filled)/float64(max(1, len(slots))),
		Source:     Source,
		Metadata: map[string]any{
			"template": tmpl,
			"scenario": scenario,
			"persona":  persona,
			"mood":     mood,
		},
	}
}

func (f *Filler) choices(persona, slot string) []Choice {
	if c, ok := f.tables.Fillers[persona][slot]; ok {
		return c
	}
	return f.tables.Fillers[defaultKey][slot]
}

// weightedChoice boosts options that suit the mood before drawing.
func weightedChoice(r *rand.Rand, options []Choice, mood string) string {
	if len(options) == 0 {
		return ""
	}
	weights := make([]float64, len(options))
	for i, o := range options {
		w := o.Weight
		lower := strings.ToLower(o.Text)
		switch mood {
		case "excited":
			if strings.Contains(o.Text, "!") || strings.Contains(lower, "wow") {
				w *= 1.3
			}
		case "curious":
			if strings.Contains(o.Text, "?") || strings.Contains(lower, "wonder") {
				w *= 1.3
			}
		case "warm":
			if strings.Contains(lower, "smile") || strings.Contains(lower, "glad") {
				w *= 1.2
			}
		case "playful":
			if strings.Contains(lower, "grin") || strings.Contains(lower, "chuckle") {
				w *= 1.2
			}
		}
		weights[i] = w
	}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return options[0].Text
	}
	return options[utils.WeightedIndex(r, weights, 0)].Text
}

func applyStyle(r *rand.Rand, style Style, text, mood string) string {
	if mood == "playful" && len(style.HumorPhrases) > 0 && r.Float64() < 0.2 {
		text += " " + utils.Choice(r, style.HumorPhrases)
	}
	boost := style.ExclamationBoost
	if boost == 0 {
		boost = 1
	}
	switch {
	case boost > 1 && strings.Contains(text, ".") && r.Float64() < boost-1:
		text = strings.Replace(text, ".", "!", 1)
	case boost < 1 && strings.Contains(text, "!") && r.Float64() < 1-boost:
		text = strings.Replace(text, "!", ".", 1)
	}
	return text
}

// AddTemplate registers a template for scenario and persona ("default" for
// everyone).
func (f *Filler) AddTemplate(scenario, tmpl, persona string) {
	if persona == "" {
		persona = defaultKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tables.Templates[scenario] == nil {
		f.tables.Templates[scenario] = make(map[string][]string)
	}
	key := strings.ToLower(persona)
	f.tables.Templates[scenario][key] = append(f.tables.Templates[scenario][key], tmpl)
}

// AddFiller replaces the options for a slot.
func (f *Filler) AddFiller(slot string, options []Choice, persona string) {
	if persona == "" {
		persona = defaultKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(persona)
	if f.tables.Fillers[key] == nil {
		f.tables.Fillers[key] = make(map[string][]Choice)
	}
	f.tables.Fillers[key][slot] = append([]Choice(nil), options...)
}

// Scenarios lists scenarios in name order.
func (f *Filler) Scenarios() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.tables.Templates))
	for s := range f.tables.Templates {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// HasScenario reports whether scenario has its own templates.
func (f *Filler) HasScenario(scenario string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.tables.Templates[scenario]
	return ok
}

// Personas lists personas with their own templates or fillers.
func (f *Filler) Personas() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	set := make(map[string]struct{})
	for _, byPersona := range f.tables.Templates {
		for p := range byPersona {
			set[p] = struct{}{}
		}
	}
	for p := range f.tables.Fillers {
		set[p] = struct{}{}
	}
	delete(set, defaultKey)
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
