// Package episodic buffers the transitions of the current episode and
// flushes them to a vector store when the episode ends, so an episode's own
// steps are never retrieved while it is still running.
//
// The buffer and its counters are checkpointed to
// <ckpt_dir>/episodic/episode_state.json after every mutation, so a crashed
// run resumes with the same pending transitions.
package episodic

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/becomeliminal/cogbase/core"
	"github.com/becomeliminal/cogbase/memory"
)

const (
	// StoreName is the default store and checkpoint subdirectory.
	StoreName = "episodic"

	// Tag wraps retrieved transitions.
	Tag = "Past Memory"

	stateFile = "episode_state.json"
)

// Entry is one buffered transition awaiting flush. ID is assigned when the
// entry is buffered and reused as the store id, so a retried flush
// overwrites instead of duplicating.
type Entry struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// State is the persisted episode state.
type State struct {
	EpisodeID    int     `json:"episode_id"`
	TransitionID int     `json:"transition_id"`
	Buffer       []Entry `json:"buffer"`
}

// Option configures a Memory.
type Option func(*Memory)

// WithFormatter overrides DefaultFormatter.
func WithFormatter(f Formatter) Option {
	return func(m *Memory) {
		if f != nil {
			m.format = f
		}
	}
}

// Memory is the episodic buffer.
type Memory struct {
	*memory.Base

	state     State
	statePath string
	format    Formatter
	logger    logrus.FieldLogger
}

// New creates the episodic memory. With config.Resume set, the persisted
// state is loaded; a missing state file starts a fresh episode.
func New(opener memory.Opener, config *memory.Config, opts ...Option) (*Memory, error) {
	base, err := memory.NewBase(opener, StoreName, config)
	if err != nil {
		return nil, err
	}
	cfg := base.Config()

	m := &Memory{
		Base:      base,
		state:     State{Buffer: []Entry{}},
		statePath: filepath.Join(cfg.CkptDir, StoreName, stateFile),
		format:    DefaultFormatter,
		logger:    base.Logger().WithField("component", "episodic"),
	}
	for _, opt := range opts {
		opt(m)
	}

	if cfg.Resume {
		if err := m.load(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Memory) load() error {
	var st State
	found, err := memory.LoadJSON(m.statePath, &st)
	if err != nil {
		return fmt.Errorf("load episode state: %w", err)
	}
	if !found {
		m.logger.Info("no episode state found, starting fresh")
		return nil
	}
	if st.Buffer == nil {
		st.Buffer = []Entry{}
	}
	m.state = st
	m.logger.WithFields(logrus.Fields{
		"episode_id": st.EpisodeID,
		"pending":    len(st.Buffer),
	}).Info("loaded episode state")
	return nil
}

func (m *Memory) save() error {
	if err := memory.SaveJSON(m.statePath, m.state); err != nil {
		return fmt.Errorf("save episode state: %w", err)
	}
	return nil
}

// State returns a copy of the current episode state.
func (m *Memory) State() State {
	st := m.state
	st.Buffer = make([]Entry, len(m.state.Buffer))
	copy(st.Buffer, m.state.Buffer)
	return st
}

// EpisodeID returns the id of the running episode.
func (m *Memory) EpisodeID() int { return m.state.EpisodeID }

// TransitionID returns the id of the last buffered transition.
func (m *Memory) TransitionID() int { return m.state.TransitionID }

// Pending returns the number of buffered transitions.
func (m *Memory) Pending() int { return len(m.state.Buffer) }

// AddTransition buffers one transition of the running episode and persists
// the state. Transition ids may not decrease within an episode.
func (m *Memory) AddTransition(ctx context.Context, t core.Transition) error {
	if !m.Enabled() {
		return nil
	}
	if t.TransitionID < m.state.TransitionID {
		return fmt.Errorf("%w: transition id %d after %d", memory.ErrValidation, t.TransitionID, m.state.TransitionID)
	}

	meta, err := t.Metadata()
	if err != nil {
		return err
	}
	// Stored as a JSON number so the buffer is identical after a reload.
	meta["episode_id"] = float64(m.state.EpisodeID)

	m.state.TransitionID = t.TransitionID
	m.state.Buffer = append(m.state.Buffer, Entry{
		ID:       uuid.New().String(),
		Text:     m.format(t),
		Metadata: meta,
	})
	return m.save()
}

// FinishEpisode writes every buffered transition to the store in order, then
// clears the buffer, resets the transition id and starts the next episode.
//
// If a write fails, the entries already written are dropped from the
// buffer, the rest stay buffered with the counters untouched, and the error
// is returned; calling FinishEpisode again retries the remainder.
func (m *Memory) FinishEpisode(ctx context.Context) error {
	written := 0
	for len(m.state.Buffer) > 0 {
		e := m.state.Buffer[0]
		if _, err := m.Update(ctx, e.Text, e.Metadata, e.ID); err != nil {
			if saveErr := m.save(); saveErr != nil {
				m.logger.WithError(saveErr).Error("could not persist partial flush")
			}
			return fmt.Errorf("flush episode %d entry %s: %w", m.state.EpisodeID, e.ID, err)
		}
		m.state.Buffer = m.state.Buffer[1:]
		written++
	}

	m.logger.WithFields(logrus.Fields{
		"episode_id": m.state.EpisodeID,
		"written":    written,
	}).Info("finished episode")

	m.state.Buffer = []Entry{}
	m.state.TransitionID = 0
	m.state.EpisodeID++
	return m.save()
}

// RetrieveTransitions returns stored transitions similar to query, wrapped
// in the Past Memory tag.
func (m *Memory) RetrieveTransitions(ctx context.Context, query string, opts ...memory.RetrieveOption) ([]memory.Formatted, error) {
	return m.RetrieveAndFormat(ctx, query, StoreName, Tag, opts...)
}

// RetrieveEpisode is RetrieveTransitions restricted to one past episode.
func (m *Memory) RetrieveEpisode(ctx context.Context, query string, episodeID int, opts ...memory.RetrieveOption) ([]memory.Formatted, error) {
	where := map[string]string{"episode_id": strconv.Itoa(episodeID)}
	return m.RetrieveTransitions(ctx, query, append(opts, memory.WithWhere(where))...)
}
