package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func at(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	sqlite, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "tasks.db"))
	require.Nil(t, err)
	opened, err := Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "opened.db"))
	require.Nil(t, err)
	stores := map[string]Store{
		"memory":     NewMemory(),
		"sqlite":     sqlite,
		"sqlite-url": opened,
	}
	if url := os.Getenv("TASKVM_TEST_POSTGRES_URL"); url != "" {
		pg, err := Open(ctx, url)
		require.Nil(t, err)
		stores["postgres"] = pg
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

// uniqueID keeps ids distinct when a shared postgres database is reused.
func uniqueID(name string) string {
	return fmt.Sprintf("%s-%d", name, time.Now().UnixNano())
}

func TestSaveAndGetTask(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			task := &Task{
				ID:         uniqueID("a"),
				Name:       "sum",
				Source:     "print 1 + 2;",
				Status:     StatusSucceeded,
				Output:     "3",
				CreatedAt:  at(1_700_000_000_123),
				ExecMillis: 4,
			}
			require.Nil(t, s.SaveTask(ctx, task))
			got, err := s.GetTask(ctx, task.ID)
			require.Nil(t, err)
			require.Equal(t, task, got)

			task.Status = StatusFailed
			task.Output = ""
			task.ErrorMessage = "runtime error: boom"
			require.Nil(t, s.SaveTask(ctx, task))
			got, err = s.GetTask(ctx, task.ID)
			require.Nil(t, err)
			require.Equal(t, StatusFailed, got.Status)
			require.Equal(t, "runtime error: boom", got.ErrorMessage)

			_, err = s.GetTask(ctx, "missing")
			require.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestListTasks(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if name == "postgres" {
				t.Skip("history of a shared database is not empty")
			}
			empty, err := s.ListTasks(ctx)
			require.Nil(t, err)
			require.Empty(t, empty)

			require.Nil(t, s.SaveTask(ctx, &Task{ID: "b", Name: "second", Status: StatusSucceeded, CreatedAt: at(2000)}))
			require.Nil(t, s.SaveTask(ctx, &Task{ID: "a", Name: "first", Status: StatusFailed, CreatedAt: at(1000), ExecMillis: 7}))
			require.Nil(t, s.AddMessage(ctx, Message{TaskID: "a", Username: "ann", Text: "why?", CreatedAt: at(3000)}))
			require.Nil(t, s.AddMessage(ctx, Message{TaskID: "a", Username: "bob", Text: "bounds", CreatedAt: at(4000)}))

			summaries, err := s.ListTasks(ctx)
			require.Nil(t, err)
			require.Equal(t, []Summary{
				{ID: "a", Name: "first", Status: StatusFailed, CreatedAt: at(1000), ExecMillis: 7, MessageCount: 2},
				{ID: "b", Name: "second", Status: StatusSucceeded, CreatedAt: at(2000)},
			}, summaries)
		})
	}
}

func TestMessages(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			id := uniqueID("m")
			require.Nil(t, s.SaveTask(ctx, &Task{ID: id, Name: "t", Status: StatusSucceeded, CreatedAt: at(1)}))
			require.Nil(t, s.AddMessage(ctx, Message{TaskID: id, Username: "bob", Text: "second", CreatedAt: at(200)}))
			require.Nil(t, s.AddMessage(ctx, Message{TaskID: id, Username: "ann", Text: "first", CreatedAt: at(100)}))

			all, err := s.Messages(ctx, id, time.Time{})
			require.Nil(t, err)
			require.Equal(t, []Message{
				{TaskID: id, Username: "ann", Text: "first", CreatedAt: at(100)},
				{TaskID: id, Username: "bob", Text: "second", CreatedAt: at(200)},
			}, all)

			newer, err := s.Messages(ctx, id, at(100))
			require.Nil(t, err)
			require.Len(t, newer, 1)
			require.Equal(t, "second", newer[0].Text)

			none, err := s.Messages(ctx, id, at(200))
			require.Nil(t, err)
			require.Empty(t, none)

			err = s.AddMessage(ctx, Message{TaskID: "missing", Username: "x", Text: "y", CreatedAt: at(1)})
			require.True(t, errors.Is(err, ErrNotFound))
			_, err = s.Messages(ctx, "missing", time.Time{})
			require.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			prefix := uniqueID("c")
			var wg sync.WaitGroup
			errs := make([]error, 16)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs[i] = s.SaveTask(ctx, &Task{
						ID:        fmt.Sprintf("%s-%d", prefix, i),
						Name:      "job",
						Status:    StatusSucceeded,
						CreatedAt: at(int64(i)),
					})
				}(i)
			}
			wg.Wait()
			for i, err := range errs {
				require.Nil(t, err)
				_, err = s.GetTask(ctx, fmt.Sprintf("%s-%d", prefix, i))
				require.Nil(t, err)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "memory:")
	require.Nil(t, err)
	require.IsType(t, &Memory{}, s)

	_, err = Open(ctx, "mysql://user@localhost/db")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported database driver")

	_, err = Open(ctx, "not a url")
	require.Error(t, err)
}
