package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"github.com/sirupsen/logrus"

	"github.com/becomeliminal/cogbase/memory"
)

// jsonKeysField lists the metadata keys whose values were JSON-encoded on
// write, so they decode back to their original types on read.
const jsonKeysField = "_json_keys"

// Store wraps one chromem-go collection as a memory.Store.
// chromem-go is a pure Go, embedded vector database; a persistent DB writes
// every document to disk before AddDocument returns.
type Store struct {
	name   string
	col    *chromem.Collection
	logger logrus.FieldLogger
}

var _ memory.Store = (*Store)(nil)

// Open opens (or creates) the persistent store called name under
// dir/<name>/vectordb, in the collection <name>_vectordb.
func Open(dir, name string, embedder memory.Embedder, logger logrus.FieldLogger) (*Store, error) {
	path := filepath.Join(dir, name, "vectordb")
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", memory.ErrStoreUnavailable, path, err)
	}
	return newStore(db, name, embedder, logger)
}

// NewInMemory creates a non-persistent store, for tests and throwaway runs.
func NewInMemory(name string, embedder memory.Embedder, logger logrus.FieldLogger) (*Store, error) {
	return newStore(chromem.NewDB(), name, embedder, logger)
}

// Opener returns a memory.Opener that opens persistent stores under dir.
func Opener(dir string, embedder memory.Embedder, logger logrus.FieldLogger) memory.Opener {
	return func(name string) (memory.Store, error) {
		return Open(dir, name, embedder, logger)
	}
}

func newStore(db *chromem.DB, name string, embedder memory.Embedder, logger logrus.FieldLogger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: store %s has no embedder", memory.ErrConfiguration, name)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
	col, err := db.GetOrCreateCollection(name+"_vectordb", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("%w: create collection %s: %v", memory.ErrStoreUnavailable, name, err)
	}
	return &Store{
		name:   name,
		col:    col,
		logger: logger.WithFields(logrus.Fields{"component": "chromem", "store": name}),
	}, nil
}

// Name returns the logical store name.
func (s *Store) Name() string {
	return s.name
}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	return s.col.Count()
}

// Upsert embeds and stores text. An empty id gets a fresh uuid; an existing
// id is overwritten.
func (s *Store) Upsert(ctx context.Context, text string, metadata map[string]any, id string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", memory.ErrEmptyContent
	}
	if id == "" {
		id = uuid.New().String()
	}

	meta, err := encodeMetadata(metadata)
	if err != nil {
		return "", err
	}

	err = s.col.AddDocument(ctx, chromem.Document{
		ID:       id,
		Content:  text,
		Metadata: meta,
	})
	if err != nil {
		return "", fmt.Errorf("add document: %w", err)
	}

	s.logger.WithField("id", id).Debugf("stored document (%d chars)", len(text))
	return id, nil
}

// Query returns the nearest documents to text, ascending by cosine distance.
// k is clamped to the collection size; an empty collection or a blank query
// yields no results.
func (s *Store) Query(ctx context.Context, text string, k int, where map[string]string) ([]memory.Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if count := s.col.Count(); k > count {
		k = count
	}
	if k <= 0 {
		return nil, nil
	}

	s.logger.Debugf("retrieving %d entries", k)
	raw, err := s.col.Query(ctx, text, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	results := make([]memory.Result, 0, len(raw))
	for _, r := range raw {
		meta, err := decodeMetadata(r.Metadata)
		if err != nil {
			s.logger.WithField("id", r.ID).Warnf("skipping result: %v", err)
			continue
		}
		results = append(results, memory.Result{
			Document: memory.Document{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: meta,
			},
			Score: 1 - float64(r.Similarity),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score < results[j].Score
	})
	return results, nil
}

// encodeMetadata flattens metadata to chromem's string map.
// Strings are stored as-is; other values are JSON-encoded and listed under
// jsonKeysField.
func encodeMetadata(metadata map[string]any) (map[string]string, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(metadata)+1)
	var jsonKeys []string
	for k, v := range metadata {
		if k == jsonKeysField {
			return nil, fmt.Errorf("%w: metadata key %q is reserved", memory.ErrValidation, k)
		}
		if str, ok := v.(string); ok {
			out[k] = str
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata %q: %v", memory.ErrValidation, k, err)
		}
		out[k] = string(data)
		jsonKeys = append(jsonKeys, k)
	}
	if len(jsonKeys) > 0 {
		sort.Strings(jsonKeys)
		out[jsonKeysField] = strings.Join(jsonKeys, ",")
	}
	return out, nil
}

// decodeMetadata reverses encodeMetadata.
func decodeMetadata(meta map[string]string) (map[string]any, error) {
	if len(meta) == 0 {
		return map[string]any{}, nil
	}
	encoded := make(map[string]bool)
	if keys := meta[jsonKeysField]; keys != "" {
		for _, k := range strings.Split(keys, ",") {
			encoded[k] = true
		}
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if k == jsonKeysField {
			continue
		}
		if !encoded[k] {
			out[k] = v
			continue
		}
		var val any
		if err := json.Unmarshal([]byte(v), &val); err != nil {
			return nil, fmt.Errorf("decode metadata %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}
