package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is a Store kept in process memory.
type Memory struct {
	mu       sync.RWMutex
	tasks    map[string]Task
	messages map[string][]Message
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks:    map[string]Task{},
		messages: map[string][]Message{},
	}
}

func (m *Memory) SaveTask(ctx context.Context, task *Task) error {
	t := *task
	t.CreatedAt = fromMillis(toMillis(t.CreatedAt))
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *Memory) GetTask(ctx context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *Memory) ListTasks(ctx context.Context) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summaries := make([]Summary, 0, len(m.tasks))
	for _, t := range m.tasks {
		summaries = append(summaries, Summary{
			ID:           t.ID,
			Name:         t.Name,
			Status:       t.Status,
			CreatedAt:    t.CreatedAt,
			ExecMillis:   t.ExecMillis,
			MessageCount: len(m.messages[t.ID]),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return summaries, nil
}

func (m *Memory) AddMessage(ctx context.Context, msg Message) error {
	msg.CreatedAt = fromMillis(toMillis(msg.CreatedAt))
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[msg.TaskID]; !ok {
		return ErrNotFound
	}
	msgs := append(m.messages[msg.TaskID], msg)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	m.messages[msg.TaskID] = msgs
	return nil
}

func (m *Memory) Messages(ctx context.Context, taskID string, since time.Time) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.tasks[taskID]; !ok {
		return nil, ErrNotFound
	}
	cutoff := toMillis(since)
	result := []Message{}
	for _, msg := range m.messages[taskID] {
		if since.IsZero() || toMillis(msg.CreatedAt) > cutoff {
			result = append(result, msg)
		}
	}
	return result, nil
}

func (m *Memory) Close() error {
	return nil
}

var _ Store = (*Memory)(nil)
