package kb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

type memSeeder struct {
	entries []*protocol.KBEntry
}

func (m *memSeeder) CountEntries(context.Context) (int, error) { return len(m.entries), nil }

func (m *memSeeder) AddEntry(_ context.Context, q, a string, at time.Time) (*protocol.KBEntry, error) {
	e := &protocol.KBEntry{ID: int64(len(m.entries) + 1), Question: q, Answer: a, CreatedAt: at}
	m.entries = append(m.entries, e)
	return e, nil
}

func TestSeed_EmptyKB(t *testing.T) {
	s := &memSeeder{}
	n, err := Seed(context.Background(), s, DefaultSeed, time.Now())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 2 || len(s.entries) != 2 {
		t.Errorf("seeded %d entries", n)
	}
	if s.entries[0].Question != "Opening hours" {
		t.Errorf("first entry = %q", s.entries[0].Question)
	}
}

func TestSeed_NonEmptyKBUntouched(t *testing.T) {
	s := &memSeeder{entries: []*protocol.KBEntry{{ID: 1, Question: "x", Answer: "y"}}}
	n, err := Seed(context.Background(), s, DefaultSeed, time.Now())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 0 || len(s.entries) != 1 {
		t.Errorf("seed should be skipped, added %d", n)
	}
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.yaml")
	os.WriteFile(path, []byte(`
- question: Parking
  answer: Free parking behind the salon
- question: Gift cards?
  answer: Yes, any amount
`), 0o644)

	entries, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 || entries[1].Answer != "Yes, any amount" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestLoadSeedFile_MissingAnswer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.yaml")
	os.WriteFile(path, []byte("- question: Parking\n"), 0o644)
	if _, err := LoadSeedFile(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadSeedFile_NotFound(t *testing.T) {
	if _, err := LoadSeedFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error")
	}
}
