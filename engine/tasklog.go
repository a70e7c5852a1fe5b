package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/becomeliminal/cogbase/core"
	"github.com/becomeliminal/cogbase/memory"
)

// TaskLogger writes per-task outputs under
// <result_dir>/{train,test}_outputs/<task_id>/. All methods are no-ops on a
// nil receiver.
type TaskLogger struct {
	dir           string
	lastIteration string
}

// NewTaskLogger creates the task folder.
func NewTaskLogger(resultDir string, train bool, taskID string) (*TaskLogger, error) {
	split := "test"
	if train {
		split = "train"
	}
	dir := filepath.Join(resultDir, split+"_outputs", taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create task folder: %w", err)
	}
	return &TaskLogger{dir: dir}, nil
}

// Dir returns the task folder.
func (l *TaskLogger) Dir() string {
	if l == nil {
		return ""
	}
	return l.dir
}

// LogIteration writes output_<attempt>.json: the transition fields with data
// merged on top.
func (l *TaskLogger) LogIteration(attempt int, t core.Transition, data map[string]any) error {
	if l == nil {
		return nil
	}
	out, err := t.Metadata()
	if err != nil {
		return err
	}
	for k, v := range data {
		out[k] = v
	}
	path := filepath.Join(l.dir, fmt.Sprintf("output_%d.json", attempt))
	if err := memory.SaveJSON(path, out); err != nil {
		return err
	}
	l.lastIteration = path
	return nil
}

// LogRollout writes messages.json and copies the last iteration output to
// output.json.
func (l *TaskLogger) LogRollout(messages []core.Message) error {
	if l == nil {
		return nil
	}
	if err := l.writeMessages(messages); err != nil {
		return err
	}
	if l.lastIteration == "" {
		return nil
	}
	return copyFile(l.lastIteration, filepath.Join(l.dir, "output.json"))
}

// LogTrain writes messages.json and training_data.json for a training step.
func (l *TaskLogger) LogTrain(messages []core.Message, data map[string]any) error {
	if l == nil {
		return nil
	}
	if err := l.writeMessages(messages); err != nil {
		return err
	}
	if data == nil {
		data = map[string]any{}
	}
	return memory.SaveJSON(filepath.Join(l.dir, "training_data.json"), data)
}

func (l *TaskLogger) writeMessages(messages []core.Message) error {
	if messages == nil {
		messages = []core.Message{}
	}
	return memory.SaveJSON(filepath.Join(l.dir, "messages.json"), messages)
}
