package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/becomeliminal/cogbase/memory"
)

const (
	trainInfoFile = "train_ckpt_info.json"
	snapshotDir   = "saved_train_ckpt"
)

// ErrNoMoreTasks is returned by a TaskSource to end training early.
var ErrNoMoreTasks = errors.New("engine: no more tasks")

// TaskSource returns the task for a training iteration.
type TaskSource func(ctx context.Context, iter int) (Task, error)

// Learner consolidates a finished training rollout into long-term memory,
// e.g. by writing summaries and reflections or adding a skill on success.
type Learner func(ctx context.Context, task Task, res *RolloutResult) error

// TrainInfo is the resumable training position.
type TrainInfo struct {
	TrainIter int    `json:"train_iter"`
	Task      string `json:"task"`
	TaskID    string `json:"task_id"`
}

// Train runs rollouts until MaxTrainIter, resuming from
// ResultDir/train_ckpt_info.json when present. After every iteration the
// position is saved; every SaveEvery iterations CkptDir is snapshotted to
// ResultDir/saved_train_ckpt/<iter>.
func (e *Engine) Train(ctx context.Context, next TaskSource, step StepFunc) error {
	if err := e.loadTrainInfo(); err != nil {
		return err
	}
	e.train = true

	for e.trainIter < e.config.MaxTrainIter {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.logger.Infof("[train iter]: %d/%d", e.trainIter, e.config.MaxTrainIter)

		task, err := next(ctx, e.trainIter)
		if errors.Is(err, ErrNoMoreTasks) {
			e.logger.Info("task source exhausted")
			break
		}
		if err != nil {
			return fmt.Errorf("next task: %w", err)
		}
		if task.ID == "" {
			task.ID = strconv.Itoa(e.trainIter)
		}

		res := e.Rollout(ctx, task, step)
		if e.learner != nil {
			if err := e.learner(ctx, task, res); err != nil {
				return fmt.Errorf("learn from task %s: %w", task.ID, err)
			}
		}

		e.trainIter++
		if err := e.checkpoint(); err != nil {
			return err
		}
	}
	if e.trainIter >= e.config.MaxTrainIter {
		e.logger.Info("max train iter reached")
	}
	return nil
}

func (e *Engine) loadTrainInfo() error {
	var info TrainInfo
	found, err := memory.LoadJSON(filepath.Join(e.config.ResultDir, trainInfoFile), &info)
	if err != nil {
		return fmt.Errorf("load train checkpoint: %w", err)
	}
	if !found {
		return nil
	}
	e.trainIter = info.TrainIter
	e.task = Task{ID: info.TaskID, Task: info.Task}
	e.logger.WithField("train_iter", info.TrainIter).Info("resuming training")
	return nil
}

func (e *Engine) checkpoint() error {
	info := TrainInfo{
		TrainIter: e.trainIter,
		Task:      e.task.Task,
		TaskID:    e.task.ID,
	}
	if err := memory.SaveJSON(filepath.Join(e.config.ResultDir, trainInfoFile), info); err != nil {
		return fmt.Errorf("save train checkpoint: %w", err)
	}
	if e.trainIter%e.config.SaveEvery != 0 {
		return nil
	}
	dst := filepath.Join(e.config.ResultDir, snapshotDir, strconv.Itoa(e.trainIter))
	if err := copyDir(e.config.CkptDir, dst); err != nil {
		return fmt.Errorf("snapshot checkpoint: %w", err)
	}
	return nil
}

// copyDir copies the tree at src into dst, overwriting existing files.
// A missing src is not an error.
func copyDir(src, dst string) error {
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
