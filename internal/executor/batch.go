package executor

import (
	"fmt"

	language "github.com/hanpama/graphserve/internal/language"
	schema "github.com/hanpama/graphserve/internal/schema"
)

// asyncTask is a queued async field and where its value goes.
type asyncTask struct {
	Task      AsyncResolveTask
	Path      Path
	FieldType *schema.TypeRef
	Fields    []*language.Field
}

// asyncPending marks a response slot whose value arrives with a later batch.
type asyncPending struct{}

func (s *executionState) enqueue(t asyncTask) {
	s.queue = append(s.queue, t)
}

// drain resolves queued async fields depth by depth until none are left.
// Completing one depth may queue the next.
func (s *executionState) drain(data map[string]any) {
	for len(s.queue) > 0 {
		tasks, results := s.flush()
		for i, r := range results {
			s.completeAsync(tasks[i], r, data)
		}
	}
}

// flush sends the live tasks of the current depth to the runtime in one
// call. Tasks under a nulled path are dropped first.
func (s *executionState) flush() ([]asyncTask, []AsyncResolveResult) {
	live := make([]asyncTask, 0, len(s.queue))
	for _, t := range s.queue {
		if !s.isNulled(t.Path) {
			live = append(live, t)
		}
	}
	s.queue = nil
	if len(live) == 0 {
		return nil, nil
	}

	tasks := make([]AsyncResolveTask, len(live))
	for i, t := range live {
		tasks[i] = t.Task
	}
	results := s.runtime.BatchResolveAsync(s.context, tasks)
	if len(results) != len(tasks) {
		err := fmt.Errorf("runtime returned %d results for %d tasks", len(results), len(tasks))
		results = make([]AsyncResolveResult, len(tasks))
		for i := range results {
			results[i].Error = err
		}
	}
	return live, results
}

func (s *executionState) completeAsync(t asyncTask, res AsyncResolveResult, data map[string]any) {
	if s.isNulled(t.Path) {
		return
	}

	var v any
	if res.Error != nil {
		s.addError(res.Error.Error(), t.Path, t.Fields)
	} else {
		v = completeValue(s, t.FieldType, t.Fields, res.Value, t.Path)
	}

	if schema.IsNonNull(t.FieldType) && isNullish(v) {
		s.nullify(data, t.Path)
		return
	}
	setValueAtPath(data, t.Path, nullable(v))
}
