// Package catalog defines the read-only music catalog contract the proposal
// tools resolve against. The real catalog lives in the platform's storage
// layer; this core only consumes the interface. The in-memory implementation
// backs tests and single-process deployments.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Track is a single playable item.
type Track struct {
	ID       string `yaml:"id" json:"id"`
	Title    string `yaml:"title" json:"title"`
	Artist   string `yaml:"artist" json:"artist"`
	Duration int    `yaml:"duration_s" json:"duration_s"`
}

// Collection is an ordered set of tracks (album, mood playlist, etc.).
type Collection struct {
	ID       string   `yaml:"id" json:"id"`
	Title    string   `yaml:"title" json:"title"`
	TrackIDs []string `yaml:"track_ids" json:"track_ids"`
}

// Catalog is the read-only lookup surface proposal resolution needs.
type Catalog interface {
	// TrackByID returns the track, or nil when unknown.
	TrackByID(id string) *Track
	// TracksByTitle returns all tracks whose title matches query,
	// exact (case-insensitive) matches first, then substring matches.
	TracksByTitle(query string) []Track
	// CollectionByTitle returns the first collection whose title contains
	// query (case-insensitive), or nil.
	CollectionByTitle(query string) *Collection
	// Collections returns all collections.
	Collections() []Collection
}

// Memory is an in-memory Catalog.
type Memory struct {
	tracks      []Track
	collections []Collection
	byID        map[string]*Track
}

// seedFile is the YAML shape for LoadMemory.
type seedFile struct {
	Tracks      []Track      `yaml:"tracks"`
	Collections []Collection `yaml:"collections"`
}

// NewMemory builds an in-memory catalog from the given content.
func NewMemory(tracks []Track, collections []Collection) *Memory {
	m := &Memory{
		tracks:      tracks,
		collections: collections,
		byID:        make(map[string]*Track, len(tracks)),
	}
	for i := range m.tracks {
		m.byID[m.tracks[i].ID] = &m.tracks[i]
	}
	return m
}

// LoadMemory reads a catalog seed from a YAML file.
func LoadMemory(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog seed: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing catalog seed: %w", err)
	}
	return NewMemory(seed.Tracks, seed.Collections), nil
}

func (m *Memory) TrackByID(id string) *Track {
	return m.byID[id]
}

func (m *Memory) TracksByTitle(query string) []Track {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	var exact, partial []Track
	for _, t := range m.tracks {
		title := strings.ToLower(t.Title)
		switch {
		case title == query:
			exact = append(exact, t)
		case strings.Contains(title, query):
			partial = append(partial, t)
		}
	}
	return append(exact, partial...)
}

func (m *Memory) CollectionByTitle(query string) *Collection {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	for i := range m.collections {
		if strings.Contains(strings.ToLower(m.collections[i].Title), query) {
			return &m.collections[i]
		}
	}
	return nil
}

func (m *Memory) Collections() []Collection {
	return m.collections
}
