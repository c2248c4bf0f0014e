package corpus

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/easeaico/persona-engine/internal/types"
	"github.com/easeaico/persona-engine/internal/utils"
)

// LoadPersonas reads the persona metadata file. The file may be JSON or
// YAML. A missing file yields an empty set.
func LoadPersonas(path string) (types.PersonaSet, error) {
	set := make(types.PersonaSet)
	if path == "" {
		return set, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return set, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read personas file: %w", err)
	}

	var file types.PersonaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode personas file: %w", err)
	}
	for _, p := range file.Personas {
		if p.Name == "" {
			continue
		}
		set[p.Name] = p
	}
	return set, nil
}

// ResolvePersona maps a requested name onto a configured persona: exact or
// substring match ignoring case, else the title-cased first token. Empty
// input resolves to the default bucket.
func ResolvePersona(personas types.PersonaSet, name string) string {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return types.DefaultPersona
	}
	lower := strings.ToLower(clean)

	names := personas.Names()
	sort.Strings(names)
	for _, n := range names {
		if strings.ToLower(n) == lower {
			return n
		}
	}
	for _, n := range names {
		ln := strings.ToLower(n)
		if strings.Contains(ln, lower) || strings.Contains(lower, ln) {
			return n
		}
	}
	if lower == types.DefaultPersona {
		return types.DefaultPersona
	}
	if first := utils.TitleFirstToken(clean); first != "" {
		return first
	}
	return types.DefaultPersona
}
