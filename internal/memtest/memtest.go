// Package memtest provides an in-memory memory.Store that records writes,
// for tests across the memory packages.
package memtest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/becomeliminal/cogbase/memory"
)

// Upsert is one recorded write.
type Upsert struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Store keeps documents in insertion order and scores a query by the
// fraction of query words missing from the document.
type Store struct {
	StoreName string
	Upserts   []Upsert

	// FailAt makes the n-th Upsert call (1-based) fail once. Zero disables.
	FailAt int

	calls int
	docs  []memory.Document
}

var _ memory.Store = (*Store)(nil)

// New creates an empty store called name.
func New(name string) *Store {
	return &Store{StoreName: name}
}

// Opener returns an opener that creates a fresh Store per name and records
// it in opened.
func Opener(opened map[string]*Store) memory.Opener {
	return func(name string) (memory.Store, error) {
		if s, ok := opened[name]; ok {
			return s, nil
		}
		s := New(name)
		opened[name] = s
		return s, nil
	}
}

func (s *Store) Name() string { return s.StoreName }

func (s *Store) Count() int { return len(s.docs) }

func (s *Store) Upsert(ctx context.Context, text string, metadata map[string]any, id string) (string, error) {
	s.calls++
	if s.FailAt > 0 && s.calls == s.FailAt {
		return "", fmt.Errorf("%w: injected failure", memory.ErrStoreUnavailable)
	}
	if strings.TrimSpace(text) == "" {
		return "", memory.ErrEmptyContent
	}
	if id == "" {
		id = uuid.New().String()
	}
	s.Upserts = append(s.Upserts, Upsert{ID: id, Text: text, Metadata: metadata})

	doc := memory.Document{ID: id, Content: text, Metadata: metadata}
	for i := range s.docs {
		if s.docs[i].ID == id {
			s.docs[i] = doc
			return id, nil
		}
	}
	s.docs = append(s.docs, doc)
	return id, nil
}

func (s *Store) Query(ctx context.Context, text string, k int, where map[string]string) ([]memory.Result, error) {
	words := strings.Fields(strings.ToLower(text))
	var results []memory.Result
	for _, d := range s.docs {
		if !matches(d.Metadata, where) {
			continue
		}
		body := strings.ToLower(d.Content)
		missing := 0
		for _, w := range words {
			if !strings.Contains(body, w) {
				missing++
			}
		}
		score := 1.0
		if len(words) > 0 {
			score = float64(missing) / float64(len(words))
		}
		results = append(results, memory.Result{Document: d, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score < results[j].Score })
	if k < 0 {
		k = 0
	}
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func matches(meta map[string]any, where map[string]string) bool {
	for k, v := range where {
		if fmt.Sprint(meta[k]) != v {
			return false
		}
	}
	return true
}
