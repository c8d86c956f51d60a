package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/taskvm/taskvm"
	"github.com/taskvm/taskvm/internal/scheduler"
	"github.com/taskvm/taskvm/internal/store"
)

type fixture struct {
	srv   *Server
	http  *httptest.Server
	sched *scheduler.Scheduler
	store *store.Memory
	done  chan string
}

func newFixture(t *testing.T, start bool) *fixture {
	t.Helper()
	st := store.NewMemory()
	sched := scheduler.New(st, scheduler.Config{Workers: 1, QueueSize: 1, StepLimit: 10_000}, zerolog.Nop())
	done := make(chan string, 16)
	sched.Subscribe(func(e scheduler.Event) {
		if e.Type == scheduler.EventHistory {
			done <- e.TaskID
		}
	})
	if start {
		sched.Start()
	}
	srv := New(sched, st, zerolog.Nop(), taskvm.WithStepLimit(10_000))
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
		sched.Stop(context.Background())
	})
	return &fixture{srv: srv, http: ts, sched: sched, store: st, done: done}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	require.Nil(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.Nil(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.Nil(t, err)
	return resp.StatusCode, buf.Bytes()
}

func (f *fixture) wait(t *testing.T) string {
	t.Helper()
	select {
	case id := <-f.done:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for task")
		return ""
	}
}

func TestRun(t *testing.T) {
	f := newFixture(t, false)
	status, body := f.do(t, "POST", "/run", `{"source": "real a = 2; real b = 3; print a + b * 2;"}`)
	require.Equal(t, http.StatusOK, status)
	var result taskvm.Result
	require.Nil(t, json.Unmarshal(body, &result))
	require.True(t, result.Success)
	require.Equal(t, "8", result.Output)

	status, body = f.do(t, "POST", "/run", `{"source": "while (1 == 1) ;"}`)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, json.Unmarshal(body, &result))
	require.False(t, result.Success)
	require.Contains(t, result.ErrorMessage, "step limit")

	status, _ = f.do(t, "POST", "/run", `{"program": "x"}`)
	require.Equal(t, http.StatusBadRequest, status)
	status, _ = f.do(t, "POST", "/run", `not json`)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestSubmitAndFetch(t *testing.T) {
	f := newFixture(t, true)

	status, body := f.do(t, "GET", "/tasks/queue", "")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `[]`, string(body))

	status, body = f.do(t, "POST", "/tasks", `{"name": "loop", "source": "real i = 0; while (i < 3) { print i; i = i + 1; }"}`)
	require.Equal(t, http.StatusAccepted, status)
	var submitted submitResponse
	require.Nil(t, json.Unmarshal(body, &submitted))
	require.Equal(t, submitted.ID, f.wait(t))

	status, body = f.do(t, "GET", "/tasks/"+submitted.ID, "")
	require.Equal(t, http.StatusOK, status)
	var task store.Task
	require.Nil(t, json.Unmarshal(body, &task))
	require.Equal(t, "loop", task.Name)
	require.Equal(t, "012", task.Output)
	require.Equal(t, store.StatusSucceeded, task.Status)

	status, body = f.do(t, "GET", "/tasks", "")
	require.Equal(t, http.StatusOK, status)
	var history []store.Summary
	require.Nil(t, json.Unmarshal(body, &history))
	require.Len(t, history, 1)
	require.Equal(t, submitted.ID, history[0].ID)

	status, body = f.do(t, "GET", "/tasks/nope", "")
	require.Equal(t, http.StatusNotFound, status)
	require.Contains(t, string(body), "task not found")

	status, _ = f.do(t, "POST", "/tasks", `{"source": "print 1;"}`)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestQueueFull(t *testing.T) {
	f := newFixture(t, false)
	status, _ := f.do(t, "POST", "/tasks", `{"name": "a", "source": "print 1;"}`)
	require.Equal(t, http.StatusAccepted, status)

	status, body := f.do(t, "GET", "/tasks/queue", "")
	require.Equal(t, http.StatusOK, status)
	var queue []store.Task
	require.Nil(t, json.Unmarshal(body, &queue))
	require.Len(t, queue, 1)
	require.Equal(t, store.StatusQueued, queue[0].Status)

	status, body = f.do(t, "POST", "/tasks", `{"name": "b", "source": "print 1;"}`)
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Contains(t, string(body), "queue is full")
}

func TestMessages(t *testing.T) {
	f := newFixture(t, false)
	require.Nil(t, f.store.SaveTask(context.Background(), &store.Task{
		ID: "t1", Name: "job", Status: store.StatusSucceeded, CreatedAt: time.UnixMilli(1).UTC(),
	}))

	status, body := f.do(t, "POST", "/tasks/t1/messages", `{"username": "ann", "text": "looks right"}`)
	require.Equal(t, http.StatusCreated, status)
	var posted store.Message
	require.Nil(t, json.Unmarshal(body, &posted))
	require.Equal(t, "ann", posted.Username)

	status, body = f.do(t, "GET", "/tasks/t1/messages", "")
	require.Equal(t, http.StatusOK, status)
	var msgs []store.Message
	require.Nil(t, json.Unmarshal(body, &msgs))
	require.Len(t, msgs, 1)
	require.Equal(t, "looks right", msgs[0].Text)

	since := posted.CreatedAt.UnixMilli()
	status, body = f.do(t, "GET", fmt.Sprintf("/tasks/t1/messages?since=%d", since), "")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `[]`, string(body))

	status, _ = f.do(t, "GET", "/tasks/t1/messages?since=yesterday", "")
	require.Equal(t, http.StatusBadRequest, status)
	status, _ = f.do(t, "POST", "/tasks/t1/messages", `{"username": "ann"}`)
	require.Equal(t, http.StatusBadRequest, status)
	status, _ = f.do(t, "POST", "/tasks/t2/messages", `{"username": "ann", "text": "hi"}`)
	require.Equal(t, http.StatusNotFound, status)
	status, _ = f.do(t, "GET", "/tasks/t2/messages", "")
	require.Equal(t, http.StatusNotFound, status)
}

func TestWebSocketNotifications(t *testing.T) {
	f := newFixture(t, true)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.Nil(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return f.srv.hub.count() == 1 }, 5*time.Second, 10*time.Millisecond)

	status, body := f.do(t, "POST", "/tasks", `{"name": "a", "source": "print 1;"}`)
	require.Equal(t, http.StatusAccepted, status)
	var submitted submitResponse
	require.Nil(t, json.Unmarshal(body, &submitted))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var first scheduler.Event
	require.Nil(t, conn.ReadJSON(&first))
	require.Equal(t, scheduler.EventQueue, first.Type)
	require.Equal(t, submitted.ID, first.TaskID)

	for {
		var e scheduler.Event
		require.Nil(t, conn.ReadJSON(&e))
		if e.Type == scheduler.EventHistory {
			require.Equal(t, submitted.ID, e.TaskID)
			break
		}
	}

	f.srv.Close()
	require.Equal(t, 0, f.srv.hub.count())
}
