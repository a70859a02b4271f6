package vision

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
)

// Settings holds the user-tunable vision options. Unknown keys in the
// persisted file are ignored; missing keys fall back to defaults; nested
// objects are merged key-by-key, not replaced wholesale.
type Settings struct {
	ShowBoxes      bool              `json:"show_boxes"`
	ShowLabels     bool              `json:"show_labels"`
	ShowSummary    bool              `json:"show_summary"`
	MinArea        float32           `json:"min_area"`
	Faces          FaceSettings      `json:"faces"`
	EnabledClasses map[string]bool   `json:"enabled_classes"`
	Colors         map[string]string `json:"colors"`
}

// FaceSettings controls face recognition behavior.
type FaceSettings struct {
	Enabled           bool    `json:"enabled"`
	Overlay           bool    `json:"overlay"`
	Tolerance         float64 `json:"tolerance"`
	SampleEvery       int     `json:"sample_every"`
	HidePersonIfNamed bool    `json:"hide_person_if_named"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		ShowBoxes:   true,
		ShowLabels:  true,
		ShowSummary: true,
		MinArea:     5000,
		Faces: FaceSettings{
			Enabled:           true,
			Overlay:           true,
			Tolerance:         0.6,
			SampleEvery:       10,
			HidePersonIfNamed: true,
		},
		EnabledClasses: map[string]bool{
			"person":     true,
			"car":        true,
			"truck":      true,
			"bicycle":    true,
			"motorcycle": true,
			"dog":        true,
			"cat":        true,
		},
		Colors: map[string]string{
			"person":     "#00E676",
			"car":        "#FFC107",
			"truck":      "#FF9800",
			"bicycle":    "#03A9F4",
			"motorcycle": "#00BCD4",
			"dog":        "#9C27B0",
			"cat":        "#E91E63",
		},
	}
}

// merge applies override on top of base key-by-key. Nested objects merge
// per key; scalars replace. Unknown keys are dropped by the struct decode.
func merge(base Settings, override map[string]json.RawMessage) Settings {
	out := base

	for key, raw := range override {
		switch key {
		case "show_boxes":
			json.Unmarshal(raw, &out.ShowBoxes)
		case "show_labels":
			json.Unmarshal(raw, &out.ShowLabels)
		case "show_summary":
			json.Unmarshal(raw, &out.ShowSummary)
		case "min_area":
			json.Unmarshal(raw, &out.MinArea)
		case "faces":
			var nested map[string]json.RawMessage
			if json.Unmarshal(raw, &nested) == nil {
				for fk, fv := range nested {
					switch fk {
					case "enabled":
						json.Unmarshal(fv, &out.Faces.Enabled)
					case "overlay":
						json.Unmarshal(fv, &out.Faces.Overlay)
					case "tolerance":
						json.Unmarshal(fv, &out.Faces.Tolerance)
					case "sample_every":
						json.Unmarshal(fv, &out.Faces.SampleEvery)
					case "hide_person_if_named":
						json.Unmarshal(fv, &out.Faces.HidePersonIfNamed)
					}
				}
			}
		case "enabled_classes":
			var nested map[string]bool
			if json.Unmarshal(raw, &nested) == nil {
				classes := make(map[string]bool, len(base.EnabledClasses))
				for k, v := range base.EnabledClasses {
					classes[k] = v
				}
				for k, v := range nested {
					classes[k] = v
				}
				out.EnabledClasses = classes
			}
		case "colors":
			var nested map[string]string
			if json.Unmarshal(raw, &nested) == nil {
				colors := make(map[string]string, len(base.Colors))
				for k, v := range base.Colors {
					colors[k] = v
				}
				for k, v := range nested {
					colors[k] = v
				}
				out.Colors = colors
			}
		}
	}
	return out
}

// Store owns the current settings and their persistence. Detection loops
// take an immutable snapshot once per cycle; writers replace the whole
// value under the lock.
type Store struct {
	path    string
	mu      sync.RWMutex
	current Settings
}

// NewStore loads settings from path, merging the file over defaults.
// A missing or unreadable file yields the defaults.
func NewStore(path string) *Store {
	s := &Store{path: path, current: DefaultSettings()}
	if err := s.load(); err != nil {
		log.Printf("[Vision] Failed to load settings: %v", err)
	}
	return s
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var override map[string]json.RawMessage
	if err := json.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("invalid settings file: %w", err)
	}
	s.mu.Lock()
	s.current = merge(DefaultSettings(), override)
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current settings. Maps in the copy are
// cloned so a cycle never observes a torn update.
func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.current
	out.EnabledClasses = make(map[string]bool, len(s.current.EnabledClasses))
	for k, v := range s.current.EnabledClasses {
		out.EnabledClasses[k] = v
	}
	out.Colors = make(map[string]string, len(s.current.Colors))
	for k, v := range s.current.Colors {
		out.Colors[k] = v
	}
	return out
}

// Update merges a partial JSON document into the current settings and
// persists the result.
func (s *Store) Update(partial []byte) (Settings, error) {
	var override map[string]json.RawMessage
	if err := json.Unmarshal(partial, &override); err != nil {
		return Settings{}, fmt.Errorf("invalid settings update: %w", err)
	}

	s.mu.Lock()
	s.current = merge(s.current, override)
	updated := s.current
	s.mu.Unlock()

	if err := s.save(updated); err != nil {
		log.Printf("[Vision] Failed to save settings: %v", err)
	}
	return updated, nil
}

// SetFacesEnabled flips the faces.enabled flag and persists.
func (s *Store) SetFacesEnabled(enabled bool) {
	s.mu.Lock()
	s.current.Faces.Enabled = enabled
	updated := s.current
	s.mu.Unlock()

	if err := s.save(updated); err != nil {
		log.Printf("[Vision] Failed to save settings: %v", err)
	}
}

func (s *Store) save(settings Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
