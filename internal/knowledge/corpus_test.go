package knowledge

import (
	"os"
	"path/filepath"
	"testing"
)

const topicYAML = `category: meditation
last_updated: "2020-01-15"
entries:
  - id: med-box
    title: Box Breathing
    content: A four-count breathing pattern.
    keywords: [breathing, box]
    synonyms: [square breathing]
`

func TestLoadCorpus(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "meditation.yaml"), []byte(topicYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	// The last_updated date above is years past the staleness threshold;
	// loading must still succeed.
	c, err := LoadCorpus(dir, discardLogger())
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
	if c.Topic("Meditation") == nil {
		t.Error("topic lookup should be case-insensitive")
	}
}

func TestLoadCorpus_EmptyDir(t *testing.T) {
	if _, err := LoadCorpus(t.TempDir(), discardLogger()); err == nil {
		t.Fatal("expected error for empty corpus dir")
	}
}

func TestContentText_Deterministic(t *testing.T) {
	a := testCorpus().ContentText()
	b := testCorpus().ContentText()
	if a != b {
		t.Error("ContentText must be deterministic for hashing")
	}
	if a == "" {
		t.Error("ContentText must not be empty")
	}
}
