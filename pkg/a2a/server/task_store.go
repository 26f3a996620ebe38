// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
)

// Task store sentinel errors. Implementations wrap them with the task id.
var (
	ErrTaskTerminal    = stderrors.New("task is in a terminal state")
	ErrStateRegression = stderrors.New("task state cannot move backwards")
)

// stateRank orders task states. Working and input-required share a rank so
// a task may bounce between them.
func stateRank(state a2a.TaskState) int {
	switch {
	case state.Terminal():
		return 3
	case state == a2a.TaskStateSubmitted:
		return 1
	default:
		return 2
	}
}

// checkTransition refuses saves that would move a task backwards or change
// a terminal task. Re-saving the current state is always allowed.
func checkTransition(taskID a2a.TaskID, from, to a2a.TaskState) error {
	if from == to {
		return nil
	}
	if from.Terminal() {
		return fmt.Errorf("%w: task %q is %s", ErrTaskTerminal, taskID, from)
	}
	if stateRank(to) < stateRank(from) {
		return fmt.Errorf("%w: task %q %s -> %s", ErrStateRegression, taskID, from, to)
	}
	return nil
}

// MemoryTaskStore keeps tasks in memory. It stores encoded copies so callers
// never share a task with the store.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[a2a.TaskID][]byte
	state map[a2a.TaskID]a2a.TaskState
}

// NewMemoryTaskStore creates a new in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks: make(map[a2a.TaskID][]byte),
		state: make(map[a2a.TaskID]a2a.TaskState),
	}
}

// Save stores task, refusing non-monotonic transitions.
func (s *MemoryTaskStore) Save(ctx context.Context, task *a2a.Task) error {
	if task == nil {
		return fmt.Errorf("task is required")
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %q: %w", task.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.state[task.ID]; ok {
		if err := checkTransition(task.ID, current, task.Status.State); err != nil {
			return err
		}
	}
	s.tasks[task.ID] = payload
	s.state[task.ID] = task.Status.State
	return nil
}

// Get returns a copy of the task or a2a.ErrTaskNotFound.
func (s *MemoryTaskStore) Get(ctx context.Context, taskID a2a.TaskID) (*a2a.Task, error) {
	s.mu.RLock()
	payload, ok := s.tasks[taskID]
	s.mu.RUnlock()
	if !ok {
		return nil, a2a.ErrTaskNotFound
	}
	var task a2a.Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("decode task %q: %w", taskID, err)
	}
	return &task, nil
}

var _ a2asrv.TaskStore = (*MemoryTaskStore)(nil)
