package server

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Eppu/micro-poll/broadcast"
	"github.com/Eppu/micro-poll/poll"
)

var testJSON = jsoniter.ConfigCompatibleWithStandardLibrary

type memStore struct {
	mu    sync.Mutex
	polls map[string]*poll.Poll
}

func newMemStore() *memStore {
	return &memStore{polls: map[string]*poll.Poll{}}
}

func clonePoll(p *poll.Poll) *poll.Poll {
	cp := *p
	cp.Options = append([]string(nil), p.Options...)
	cp.Votes = make(map[string]int, len(p.Votes))
	for k, v := range p.Votes {
		cp.Votes[k] = v
	}
	if p.StartTime != nil {
		t := *p.StartTime
		cp.StartTime = &t
	}
	return &cp
}

func (s *memStore) Create(ctx context.Context, p *poll.Poll) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = primitive.NewObjectID()
	s.polls[p.ID.Hex()] = clonePoll(p)
	return p.ID, nil
}

func (s *memStore) Get(ctx context.Context, id string) (*poll.Poll, error) {
	if _, err := poll.ParseID(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[id]
	if !ok {
		return nil, poll.ErrNotFound
	}
	return clonePoll(p), nil
}

func (s *memStore) Save(ctx context.Context, p *poll.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls[p.ID.Hex()] = clonePoll(p)
	return nil
}

func (s *memStore) ListOpen(ctx context.Context) ([]*poll.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []*poll.Poll
	for _, p := range s.polls {
		if !p.IsClosed {
			open = append(open, clonePoll(p))
		}
	}
	return open, nil
}

func (s *memStore) mutate(id string, f func(p *poll.Poll)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s.polls[id])
}

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemCounter() *memCounter {
	return &memCounter{counts: map[string]int64{}}
}

func (m *memCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}

func newTestApp(t *testing.T) (*fiber.App, *memStore) {
	t.Helper()
	store := newMemStore()
	hub := broadcast.NewHub(broadcast.NewLoopback())
	t.Cleanup(hub.Close)
	app := newApp(Options{
		Service:     poll.NewService(store, hub),
		Hub:         hub,
		Limits:      newMemCounter(),
		CreateLimit: 100,
		VoteLimit:   100,
	})
	return app, store
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, testJSON.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)

	data, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(data) > 0 {
		require.NoError(t, testJSON.Unmarshal(data, &out))
	}
	return resp, out
}

func createTestPoll(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, body := doJSON(t, app, "POST", "/api/v1/polls", fiber.Map{
		"question":  "Tea or coffee?",
		"options":   []string{"tea", "coffee"},
		"timeLimit": 5,
	})
	require.Equal(t, 201, resp.StatusCode)
	id, _ := body["id"].(string)
	require.Len(t, id, 24)
	return id
}

func TestCreatePollRoute(t *testing.T) {
	app, _ := newTestApp(t)

	createTestPoll(t, app)

	tests := []struct {
		name string
		body fiber.Map
	}{
		{"missing question", fiber.Map{"options": []string{"a", "b"}, "timeLimit": 5}},
		{"missing options", fiber.Map{"question": "q", "timeLimit": 5}},
		{"missing time limit", fiber.Map{"question": "q", "options": []string{"a", "b"}}},
		{"single option", fiber.Map{"question": "q", "options": []string{"a"}, "timeLimit": 5}},
		{"duplicate options", fiber.Map{"question": "q", "options": []string{"a", "a"}, "timeLimit": 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, app, "POST", "/api/v1/polls", tt.body)
			assert.Equal(t, 400, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestGetPollRoute(t *testing.T) {
	app, _ := newTestApp(t)
	id := createTestPoll(t, app)

	resp, body := doJSON(t, app, "GET", "/api/v1/polls/"+id, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Tea or coffee?", body["question"])
	assert.Equal(t, false, body["isClosed"])

	resp, _ = doJSON(t, app, "GET", "/api/v1/polls/not-a-real-id", nil)
	assert.Equal(t, 400, resp.StatusCode)

	resp, _ = doJSON(t, app, "GET", "/api/v1/polls/ffffffffffffffffffffffff", nil)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestCastVoteRoute(t *testing.T) {
	app, store := newTestApp(t)
	id := createTestPoll(t, app)

	resp, body := doJSON(t, app, "POST", "/api/v1/polls/"+id+"/vote", fiber.Map{"option": "tea"})
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	resp, body = doJSON(t, app, "GET", "/api/v1/polls/"+id, nil)
	require.Equal(t, 200, resp.StatusCode)
	votes := body["votes"].(map[string]interface{})
	assert.EqualValues(t, 1, votes["tea"])
	assert.EqualValues(t, 0, votes["coffee"])
	assert.NotEmpty(t, body["startTime"])

	resp, body = doJSON(t, app, "POST", "/api/v1/polls/"+id+"/vote", fiber.Map{"option": "soda"})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "Invalid option", body["error"])

	resp, body = doJSON(t, app, "POST", "/api/v1/polls/"+id+"/vote", fiber.Map{})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "Missing option", body["error"])

	resp, _ = doJSON(t, app, "POST", "/api/v1/polls/ffffffffffffffffffffffff/vote", fiber.Map{"option": "tea"})
	assert.Equal(t, 404, resp.StatusCode)

	// Push the poll past its deadline; voting now reports closure.
	store.mutate(id, func(p *poll.Poll) {
		past := time.Now().Add(-time.Minute)
		p.StartTime = &past
	})
	resp, body = doJSON(t, app, "POST", "/api/v1/polls/"+id+"/vote", fiber.Map{"option": "tea"})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "Poll is closed", body["error"])

	resp, body = doJSON(t, app, "GET", "/api/v1/polls/"+id, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, true, body["isClosed"])
}

func TestCreateRateLimit(t *testing.T) {
	store := newMemStore()
	hub := broadcast.NewHub(broadcast.NewLoopback())
	t.Cleanup(hub.Close)
	app := newApp(Options{
		Service:     poll.NewService(store, hub),
		Hub:         hub,
		Limits:      newMemCounter(),
		CreateLimit: 2,
		VoteLimit:   2,
	})

	for i := 0; i < 2; i++ {
		resp, _ := doJSON(t, app, "POST", "/api/v1/polls", fiber.Map{
			"question":  "q",
			"options":   []string{"a", "b"},
			"timeLimit": 5,
		})
		require.Equal(t, 201, resp.StatusCode)
	}

	resp, body := doJSON(t, app, "POST", "/api/v1/polls", fiber.Map{
		"question":  "q",
		"options":   []string{"a", "b"},
		"timeLimit": 5,
	})
	assert.Equal(t, 429, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}
