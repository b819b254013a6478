// Package knowledge implements hybrid keyword + semantic retrieval over the
// static knowledge corpus the assistant answers wellness and product
// questions from. The corpus is small (tens to low hundreds of entries),
// loaded once at startup, and never mutated afterwards.
package knowledge

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StaleAfter is how old a topic file's last_updated date may be before the
// loader logs a staleness warning. Stale content is served anyway.
const StaleAfter = 90 * 24 * time.Hour

// Entry is a single knowledge item.
type Entry struct {
	ID       string   `yaml:"id"`
	Title    string   `yaml:"title"`
	Content  string   `yaml:"content"`
	Keywords []string `yaml:"keywords"`
	Synonyms []string `yaml:"synonyms"`
}

// Topic groups entries under a category name, one YAML file per topic.
type Topic struct {
	Category    string  `yaml:"category"`
	LastUpdated string  `yaml:"last_updated"` // ISO date. Empty = unknown.
	Entries     []Entry `yaml:"entries"`
}

// Corpus is the full loaded knowledge base.
type Corpus struct {
	topics  []Topic
	byName  map[string]*Topic
	entries int
}

// LoadCorpus reads every *.yaml file in dir as one topic. A staleness check
// runs once per file and logs, but never blocks, when content is older than
// StaleAfter or carries no last_updated metadata.
func LoadCorpus(dir string, logger *slog.Logger) (*Corpus, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("listing corpus dir: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no knowledge topic files in %s", dir)
	}
	sort.Strings(paths)

	c := &Corpus{byName: make(map[string]*Topic)}
	now := time.Now()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var topic Topic
		if err := yaml.Unmarshal(data, &topic); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if topic.Category == "" {
			return nil, fmt.Errorf("%s: missing category", path)
		}

		checkStaleness(&topic, path, now, logger)

		c.topics = append(c.topics, topic)
		c.byName[strings.ToLower(topic.Category)] = &c.topics[len(c.topics)-1]
		c.entries += len(topic.Entries)
	}

	logger.Info("knowledge corpus loaded",
		slog.Int("topics", len(c.topics)),
		slog.Int("entries", c.entries),
	)
	return c, nil
}

func checkStaleness(topic *Topic, path string, now time.Time, logger *slog.Logger) {
	if topic.LastUpdated == "" {
		logger.Warn("knowledge topic has no last_updated metadata",
			slog.String("category", topic.Category),
			slog.String("file", path),
		)
		return
	}
	updated, err := time.Parse("2006-01-02", topic.LastUpdated)
	if err != nil {
		logger.Warn("knowledge topic has unparseable last_updated",
			slog.String("category", topic.Category),
			slog.String("value", topic.LastUpdated),
		)
		return
	}
	if now.Sub(updated) > StaleAfter {
		logger.Warn("knowledge topic content is stale",
			slog.String("category", topic.Category),
			slog.String("last_updated", topic.LastUpdated),
		)
	}
}

// Topics returns the category names in load order.
func (c *Corpus) Topics() []string {
	names := make([]string, len(c.topics))
	for i, t := range c.topics {
		names[i] = t.Category
	}
	return names
}

// Topic returns the topic by category name (case-insensitive), or nil.
func (c *Corpus) Topic(name string) *Topic {
	return c.byName[strings.ToLower(name)]
}

// Len returns the total entry count.
func (c *Corpus) Len() int { return c.entries }

// ForEach visits every entry along with its category name.
func (c *Corpus) ForEach(fn func(category string, e *Entry)) {
	for i := range c.topics {
		for j := range c.topics[i].Entries {
			fn(c.topics[i].Category, &c.topics[i].Entries[j])
		}
	}
}

// ContentText returns the concatenation of every entry's id, title, and
// content in deterministic order. The embedding index hashes this to detect
// corpus changes; any edit anywhere invalidates the whole cache.
func (c *Corpus) ContentText() string {
	var sb strings.Builder
	c.ForEach(func(_ string, e *Entry) {
		sb.WriteString(e.ID)
		sb.WriteString("\n")
		sb.WriteString(e.Title)
		sb.WriteString("\n")
		sb.WriteString(e.Content)
		sb.WriteString("\n")
	})
	return sb.String()
}

// NewCorpus builds a corpus directly from topics. Used by tests and by
// callers that embed their corpus in code rather than files.
func NewCorpus(topics []Topic) *Corpus {
	c := &Corpus{byName: make(map[string]*Topic)}
	c.topics = append(c.topics, topics...)
	for i := range c.topics {
		c.byName[strings.ToLower(c.topics[i].Category)] = &c.topics[i]
		c.entries += len(c.topics[i].Entries)
	}
	return c
}
