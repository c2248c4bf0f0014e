package types

// PersonaProfile is a persona as declared in the persona metadata file.
type PersonaProfile struct {
	Name          string             `json:"name" yaml:"name"`
	Openers       []string           `json:"openers" yaml:"openers"`
	SpeakingStyle string             `json:"speaking_style" yaml:"speaking_style"`
	Traits        map[string]float64 `json:"traits,omitempty" yaml:"traits,omitempty"`
}

// PersonaFile is the decoded persona metadata file. Both JSON and YAML use the
// same layout: a top-level "personas" list.
type PersonaFile struct {
	Personas []PersonaProfile `json:"personas" yaml:"personas"`
}

// DefaultPersona is the pooled bucket used when a persona has no data of its own.
const DefaultPersona = "default"

// PersonaSet maps persona names to profiles.
type PersonaSet map[string]PersonaProfile

// Names returns persona names in unspecified order.
func (s PersonaSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	return names
}
