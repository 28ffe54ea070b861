package vocab

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// MinEntries is the smallest catalog a match can be generated from:
// one correct answer plus three distinct distractors.
const MinEntries = 4

// ErrInsufficientVocabulary is returned when a catalog cannot supply
// enough distinct entries for question generation.
var ErrInsufficientVocabulary = errors.New("vocabulary catalog needs at least 4 distinct entries")

// Item is a single vocabulary entry supplied by the surrounding system.
// Items are immutable once loaded.
type Item struct {
	Word    string `json:"word"`
	Pinyin  string `json:"pinyin"`
	Meaning string `json:"meaning"`
}

// Catalog is a read-only list of vocabulary items.
type Catalog struct {
	items []Item
}

// NewCatalog validates and wraps a list of items. Entries with duplicate
// words are collapsed; blank words are rejected.
func NewCatalog(items []Item) (*Catalog, error) {
	seen := make(map[string]struct{}, len(items))
	distinct := make([]Item, 0, len(items))
	for _, it := range items {
		word := strings.TrimSpace(it.Word)
		if word == "" {
			return nil, fmt.Errorf("vocabulary item with empty word")
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		it.Word = word
		distinct = append(distinct, it)
	}
	return &Catalog{items: distinct}, nil
}

// LoadFile reads a JSON catalog file (array of items).
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewCatalog(items)
}

// Len reports the number of distinct entries.
func (c *Catalog) Len() int { return len(c.items) }

// Items returns a copy of the catalog entries.
func (c *Catalog) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// CheckGenerable returns ErrInsufficientVocabulary when the catalog is too
// small to draw a correct answer and three distinct distractors.
func (c *Catalog) CheckGenerable() error {
	if c.Len() < MinEntries {
		return ErrInsufficientVocabulary
	}
	return nil
}
