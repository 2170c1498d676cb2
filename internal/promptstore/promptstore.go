// Package promptstore implements the Prompt Store: a set of named markdown
// sections, loaded once at startup and injected into Planner prompts by
// name. Prompts are operator-editable deployment assets, not compiled into
// the binary via go:embed, so sections are read from a directory at
// construction time instead.
package promptstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store holds every named section read from a directory, keyed by filename
// without its .md extension.
type Store struct {
	sections map[string]string
}

// Load reads every *.md file directly under dir into a Store. A missing
// directory yields an empty Store rather than an error, since the Planner
// degrades gracefully to its built-in prompt scaffolding when no operator
// overrides are configured (internal/planner.systemPrompt).
func Load(dir string) (*Store, error) {
	sections := make(map[string]string)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &Store{sections: sections}, nil
		}
		return nil, fmt.Errorf("promptstore: read dir %q: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".md")
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("promptstore: read %q: %w", entry.Name(), err)
		}
		sections[name] = string(data)
	}

	return &Store{sections: sections}, nil
}

// Section returns the named section's contents, if present. Satisfies
// internal/planner.PromptBuilder.
func (s *Store) Section(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	section, ok := s.sections[name]
	return section, ok
}
