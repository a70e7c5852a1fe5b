package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/becomeliminal/cogbase/core"
)

const errorLogFile = "errors.log"

// Task is one unit of work handed to a rollout.
type Task struct {
	ID   string         `json:"task_id"`
	Task string         `json:"task"`
	Data map[string]any `json:"data,omitempty"`
}

// StepInput is what a step sees on each attempt.
type StepInput struct {
	Task      Task
	Attempt   int
	Retrieved []string

	// Previous is the last recorded transition of this rollout, nil on the
	// first attempt.
	Previous *core.Transition
}

// StepOutput is the result of one attempt.
type StepOutput struct {
	Transition core.Transition

	// Messages are appended to the rollout's message log.
	Messages []core.Message

	// Data is merged into the per-attempt output file.
	Data map[string]any

	// NextCue replaces the retrieval cue for the following attempt,
	// typically the critique of this one.
	NextCue string

	// Skip moves on to the next attempt without recording anything.
	Skip bool
}

// StepFunc runs one attempt: reason over the retrieved memories, act in the
// environment and report the transition.
type StepFunc func(ctx context.Context, in StepInput) (*StepOutput, error)

// RolloutResult is the outcome of Rollout.
type RolloutResult struct {
	Success     bool
	Transitions []core.Transition
	Messages    []core.Message

	// Last is the output of the last recorded attempt.
	Last *StepOutput

	// Err is the error that ended the rollout early, if any. It has
	// already been written to the error log.
	Err error
}

// Rollout runs up to MaxAttempts steps for task and stops at the first
// rewarded transition. Errors and panics from step never escape: they are
// logged to ResultDir/errors.log and the episode is still finished.
func (e *Engine) Rollout(ctx context.Context, task Task, step StepFunc) *RolloutResult {
	if task.ID == "" {
		task.ID = strconv.Itoa(e.trainIter)
	}
	e.task = task
	logger := e.logger.WithField("task_id", task.ID)
	logger.Infof("attempting task_id %s", task.ID)

	tl, err := NewTaskLogger(e.config.ResultDir, e.train, task.ID)
	if err != nil {
		logger.WithError(err).Warn("task outputs disabled")
	}

	res := &RolloutResult{}
	if err := e.runAttempts(ctx, step, res, tl); err != nil {
		res.Err = err
		e.logRolloutError(task.ID, err)
	}

	if e.episodic != nil {
		if err := e.episodic.FinishEpisode(ctx); err != nil {
			logger.WithError(err).Error("finish episode")
			res.Err = errors.Join(res.Err, err)
		}
	}

	if err := tl.LogRollout(res.Messages); err != nil {
		logger.WithError(err).Warn("write rollout outputs")
	}
	return res
}

// Evaluate runs a rollout without recording transitions.
func (e *Engine) Evaluate(ctx context.Context, task Task, step StepFunc) *RolloutResult {
	train := e.train
	e.train = false
	defer func() { e.train = train }()
	return e.Rollout(ctx, task, step)
}

// PanicError is a panic recovered from a step.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

func (e *Engine) runAttempts(ctx context.Context, step StepFunc, res *RolloutResult, tl *TaskLogger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	cue := e.task.Task
	var prev *core.Transition
	for attempt := 0; attempt < e.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.logger.Infof("rollout attempt %d/%d", attempt+1, e.config.MaxAttempts)

		retrieved, err := e.Retrieve(ctx, cue)
		if err != nil {
			return err
		}

		out, err := step(ctx, StepInput{
			Task:      e.task,
			Attempt:   attempt,
			Retrieved: retrieved,
			Previous:  prev,
		})
		if err != nil {
			return fmt.Errorf("attempt %d: %w", attempt, err)
		}
		if out == nil || out.Skip {
			continue
		}

		res.Messages = append(res.Messages, out.Messages...)
		t := out.Transition
		if err := e.processTransition(ctx, &t, attempt); err != nil {
			return fmt.Errorf("record transition %d: %w", attempt, err)
		}
		res.Transitions = append(res.Transitions, t)
		res.Last = out
		prev = &res.Transitions[len(res.Transitions)-1]

		if err := tl.LogIteration(attempt, t, out.Data); err != nil {
			e.logger.WithError(err).Warn("write iteration output")
		}
		if out.NextCue != "" {
			cue = out.NextCue
		}
		if t.Succeeded() {
			res.Success = true
			break
		}
	}
	return nil
}

// logRolloutError appends one JSON line per failure to the shared error log.
func (e *Engine) logRolloutError(taskID string, err error) {
	entry := e.logger.WithError(err).WithField("task_id", taskID)
	entry.Error("rollout failed")

	path := filepath.Join(e.config.ResultDir, errorLogFile)
	if err := os.MkdirAll(e.config.ResultDir, 0o755); err != nil {
		entry.WithField("path", path).Warnf("cannot write error log: %v", err)
		return
	}
	f, ferr := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if ferr != nil {
		entry.WithField("path", path).Warnf("cannot write error log: %v", ferr)
		return
	}
	defer f.Close()

	fileLog := logrus.New()
	fileLog.SetOutput(f)
	fileLog.SetFormatter(&logrus.JSONFormatter{})

	fields := logrus.Fields{"task_id": taskID}
	var perr *PanicError
	if errors.As(err, &perr) {
		fields["stack"] = string(perr.Stack)
	}
	fileLog.WithFields(fields).WithError(err).Error("rollout error")
}
