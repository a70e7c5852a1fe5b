package memory

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Transform renders a retrieved document into display text.
type Transform func(doc Document) string

// Identity renders a document as its content.
func Identity(doc Document) string {
	return doc.Content
}

// Retriever is the retrieval action bound to one store.
type Retriever struct {
	store Store
	topK  int
}

// Retrieve queries the bound store. k <= 0 uses the registry's top-k.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, where map[string]string) ([]Result, error) {
	if k <= 0 {
		k = r.topK
	}
	return r.store.Query(ctx, query, k, where)
}

// Updater is the update (learning) action bound to one store.
type Updater struct {
	store Store
}

// Update writes text to the bound store.
func (u *Updater) Update(ctx context.Context, text string, metadata map[string]any, id string) (string, error) {
	return u.store.Upsert(ctx, text, metadata, id)
}

// Registry owns named stores and the retrieval and update actions bound to them.
type Registry struct {
	opener     Opener
	topK       int
	logger     logrus.FieldLogger
	names      []string
	stores     map[string]Store
	retrievers map[string]*Retriever
	updaters   map[string]*Updater
}

// NewRegistry creates an empty registry.
// opener may be nil when every store is added with Add.
func NewRegistry(opener Opener, topK int, logger logrus.FieldLogger) *Registry {
	if topK <= 0 {
		topK = DefaultConfig.TopK
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		opener:     opener,
		topK:       topK,
		logger:     logger.WithField("component", "memory"),
		stores:     make(map[string]Store),
		retrievers: make(map[string]*Retriever),
		updaters:   make(map[string]*Updater),
	}
}

// RegisterStore opens the store called name through the registry's opener
// and registers it. Registering a known name returns the existing store.
func (r *Registry) RegisterStore(name string) (Store, error) {
	if s, ok := r.stores[name]; ok {
		return s, nil
	}
	if r.opener == nil {
		return nil, fmt.Errorf("%w: no opener for store %q", ErrConfiguration, name)
	}
	s, err := r.opener(name)
	if err != nil {
		return nil, err
	}
	r.Add(name, s)
	return s, nil
}

// Add registers an already opened store under name, replacing any previous one.
func (r *Registry) Add(name string, s Store) {
	if _, ok := r.stores[name]; !ok {
		r.names = append(r.names, name)
	}
	r.stores[name] = s
	r.retrievers[name] = &Retriever{store: s, topK: r.topK}
	r.updaters[name] = &Updater{store: s}
	r.logger.WithField("store", name).Infof("store %s doc count: %d", name, s.Count())
}

// Store returns the store registered under name.
func (r *Registry) Store(name string) (Store, error) {
	s, ok := r.stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, name)
	}
	return s, nil
}

// Retriever returns the retrieval action for name.
func (r *Registry) Retriever(name string) (*Retriever, error) {
	ret, ok := r.retrievers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, name)
	}
	return ret, nil
}

// Updater returns the update action for name.
func (r *Registry) Updater(name string) (*Updater, error) {
	u, ok := r.updaters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, name)
	}
	return u, nil
}

// Names returns registered store names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Counts returns the document count of every registered store.
func (r *Registry) Counts() map[string]int {
	counts := make(map[string]int, len(r.stores))
	for name, s := range r.stores {
		counts[name] = s.Count()
	}
	return counts
}

// Formatted is one retrieved result rendered for prompt injection.
// Score is meaningful only when Scored is set.
type Formatted struct {
	Text   string
	Score  float64
	Scored bool
}

// RetrieveOptions tunes RetrieveAndFormat.
type RetrieveOptions struct {
	K          int
	WithScores bool
	Where      map[string]string
	Transform  Transform
}

// RetrieveOption configures RetrieveOptions.
type RetrieveOption func(*RetrieveOptions)

// WithK overrides the number of results requested.
func WithK(k int) RetrieveOption {
	return func(o *RetrieveOptions) { o.K = k }
}

// WithScores keeps the distance attached to each formatted result.
func WithScores() RetrieveOption {
	return func(o *RetrieveOptions) { o.WithScores = true }
}

// WithWhere restricts results to documents whose metadata matches where.
func WithWhere(where map[string]string) RetrieveOption {
	return func(o *RetrieveOptions) { o.Where = where }
}

// WithTransform sets the per-result display transform.
func WithTransform(fn Transform) RetrieveOption {
	return func(o *RetrieveOptions) { o.Transform = fn }
}

// RetrieveAndFormat queries storeName, renders each result with the
// transform and wraps it in a tag envelope. Result order is the store's
// ascending-distance order.
func (r *Registry) RetrieveAndFormat(ctx context.Context, query, storeName, tag string, opts ...RetrieveOption) ([]Formatted, error) {
	o := RetrieveOptions{Transform: Identity}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Transform == nil {
		o.Transform = Identity
	}

	ret, err := r.Retriever(storeName)
	if err != nil {
		return nil, err
	}
	results, err := ret.Retrieve(ctx, query, o.K, o.Where)
	if err != nil {
		return nil, fmt.Errorf("retrieve from %s: %w", storeName, err)
	}

	out := make([]Formatted, 0, len(results))
	for _, res := range results {
		f := Formatted{Text: TagIndent(tag, o.Transform(res.Document))}
		if o.WithScores {
			f.Score = res.Score
			f.Scored = true
		}
		out = append(out, f)
	}
	return out, nil
}

// Texts drops scores from formatted results.
func Texts(fs []Formatted) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Text
	}
	return out
}
