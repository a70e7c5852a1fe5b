package episodic

import (
	"github.com/becomeliminal/cogbase/core"
	"github.com/becomeliminal/cogbase/memory"
)

// Formatter renders a transition into the text stored for it.
// Bookkeeping fields (TransitionID, TaskID) must not appear in the body.
type Formatter func(t core.Transition) string

// DefaultFormatter renders each part of the transition in its own tag
// envelope, with an explicit None for absent fields:
//
//	[Task] [Previous Critique] [Thought Process and Code]
//	[Environment Feedback] [Result]
func DefaultFormatter(t core.Transition) string {
	result := "Failure"
	if t.Succeeded() {
		result = "Success"
	}
	return memory.TagIndent("Task", orNone(t.Task)) +
		memory.TagIndent("Previous Critique", orNone(t.Critique)) +
		memory.TagIndent("Thought Process and Code", orNone(t.RawMsg)) +
		memory.TagIndent("Environment Feedback", orNone(t.Obs)) +
		memory.TagIndent("Result", result)
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
