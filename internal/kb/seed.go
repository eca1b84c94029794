package kb

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

// SeedEntry is one question/answer pair in a seed file.
type SeedEntry struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

// DefaultSeed is loaded into an empty knowledge base when no seed file is configured.
var DefaultSeed = []SeedEntry{
	{Question: "Opening hours", Answer: "9am-7pm Tue-Sat"},
	{Question: "Walk-ins?", Answer: "Yes, but appointments preferred"},
}

// Seeder is the slice of the store needed to seed the knowledge base.
type Seeder interface {
	CountEntries(ctx context.Context) (int, error)
	AddEntry(ctx context.Context, question, answer string, at time.Time) (*protocol.KBEntry, error)
}

// LoadSeedFile reads a YAML list of {question, answer} pairs.
func LoadSeedFile(path string) ([]SeedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kb: read seed %s: %w", path, err)
	}
	var entries []SeedEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("kb: parse seed %s: %w", path, err)
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Question) == "" || strings.TrimSpace(e.Answer) == "" {
			return nil, fmt.Errorf("kb: seed %s: entry %d needs both question and answer", path, i)
		}
	}
	return entries, nil
}

// Seed inserts entries only if the knowledge base is empty. It returns the
// number of entries added.
func Seed(ctx context.Context, s Seeder, entries []SeedEntry, now time.Time) (int, error) {
	n, err := s.CountEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("kb: seed: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	for _, e := range entries {
		if _, err := s.AddEntry(ctx, e.Question, e.Answer, now); err != nil {
			return 0, fmt.Errorf("kb: seed %q: %w", e.Question, err)
		}
	}
	return len(entries), nil
}
