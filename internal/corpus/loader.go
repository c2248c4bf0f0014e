// Package corpus loads persona-tagged chat samples and serves the TF-IDF and
// Markov baseline built from them.
package corpus

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/easeaico/persona-engine/internal/types"
)

const (
	defaultScenario = "generic"
	maxLineBytes    = 4 << 20
)

// Samples groups training samples by persona. The pooled default bucket is
// added by Build, not by the loader.
type Samples map[string][]types.TrainingSample

// Count is the number of samples outside the default bucket.
func (s Samples) Count() int {
	n := 0
	for persona, list := range s {
		if persona != types.DefaultPersona {
			n += len(list)
		}
	}
	return n
}

// record is one line of a training file.
type record struct {
	Messages []types.Message `json:"messages"`
	Metadata struct {
		Character string `json:"character"`
		Persona   string `json:"persona"`
		Scenario  string `json:"scenario"`
	} `json:"metadata"`
}

// LoadReport describes what a load read and skipped.
type LoadReport struct {
	Files       []string
	Missing     []string
	SkippedRows int
}

// LoadSamples reads every path. A directory contributes its *.jsonl files in
// name order. Missing files are reported, not fatal.
func LoadSamples(paths []string, personas types.PersonaSet) (Samples, LoadReport, error) {
	samples := make(Samples)
	var report LoadReport

	files, missing, err := expand(paths)
	if err != nil {
		return nil, report, err
	}
	report.Missing = missing
	for _, p := range missing {
		slog.Warn("corpus file not found, skipping", "path", p)
	}

	for _, path := range files {
		skipped, err := loadFile(path, personas, samples)
		if err != nil {
			slog.Warn("failed to read corpus file, skipping", "path", path, "error", err.Error())
			report.Missing = append(report.Missing, path)
			continue
		}
		report.Files = append(report.Files, path)
		report.SkippedRows += skipped
	}
	return samples, report, nil
}

func expand(paths []string) (files, missing []string, err error) {
	for _, p := range paths {
		info, statErr := os.Stat(p)
		if errors.Is(statErr, fs.ErrNotExist) {
			missing = append(missing, p)
			continue
		}
		if statErr != nil {
			return nil, nil, fmt.Errorf("failed to stat corpus path %s: %w", p, statErr)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		matches, globErr := filepath.Glob(filepath.Join(p, "*.jsonl"))
		if globErr != nil {
			return nil, nil, fmt.Errorf("failed to list corpus dir %s: %w", p, globErr)
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return files, missing, nil
}

func loadFile(path string, personas types.PersonaSet, into Samples) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open corpus file: %w", err)
	}
	defer f.Close()
	return decode(f, path, personas, into)
}

func decode(r io.Reader, name string, personas types.PersonaSet, into Samples) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	skipped, lineNo := 0, 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			slog.Warn("failed to parse corpus line", "file", name, "line", lineNo, "error", err.Error())
			skipped++
			continue
		}
		sample, persona := rec.sample()
		persona = ResolvePersona(personas, persona)
		sample.Persona = persona
		into[persona] = append(into[persona], sample)
	}
	if err := scanner.Err(); err != nil {
		return skipped, fmt.Errorf("failed to scan corpus file: %w", err)
	}
	return skipped, nil
}

// sample takes the first user and first assistant turn.
func (r record) sample() (types.TrainingSample, string) {
	var s types.TrainingSample
	for _, m := range r.Messages {
		switch m.Role {
		case types.RoleUser:
			if s.User == "" {
				s.User = m.Content
			}
		case types.RoleAssistant:
			if s.Reply == "" {
				s.Reply = m.Content
			}
		}
	}
	s.Scenario = r.Metadata.Scenario
	if s.Scenario == "" {
		s.Scenario = defaultScenario
	}
	persona := r.Metadata.Character
	if persona == "" {
		persona = r.Metadata.Persona
	}
	if persona == "" {
		persona = types.DefaultPersona
	}
	return s, persona
}
