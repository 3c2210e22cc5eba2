package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"groupchat/chat"
	"groupchat/intervention"
	"groupchat/lifecycle"
	"groupchat/model"
	"groupchat/provider/testutil"
	"groupchat/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := storage.NewMemoryStore()
	engine := intervention.NewEngine(intervention.WithRandom(func() float64 { return 0.99 }))
	ctrl := lifecycle.NewController(engine, store, testutil.NewMockGenerator("Hello and welcome!"))
	svc := chat.NewService(store, lifecycle.NewDispatcher(ctrl, lifecycle.WithStagger(0)), chat.WithBcryptCost(bcrypt.MinCost))

	h := NewHandler(svc, engine, store, WithHeartbeat(50*time.Millisecond))
	srv := httptest.NewServer(NewRouter(zerolog.Nop(), h, nil))
	t.Cleanup(srv.Close)
	return srv
}

type caller struct {
	t    *testing.T
	srv  *httptest.Server
	id   string
	name string
}

func (c caller) do(method, path, body string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.srv.URL+path, strings.NewReader(body))
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.id != "" {
		req.Header.Set(headerUserID, c.id)
		req.Header.Set(headerUserName, c.name)
	}
	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthAndRoles(t *testing.T) {
	srv := newTestServer(t)
	anon := caller{t: t, srv: srv}

	resp := anon.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	health := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "ok", health["store"])

	resp = anon.do(http.MethodGet, "/roles", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	roles := decodeBody[struct {
		Roles []model.RoleInfo `json:"roles"`
	}](t, resp)
	assert.Len(t, roles.Roles, 4)

	resp = anon.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConversationFlow(t *testing.T) {
	srv := newTestServer(t)
	alice := caller{t: t, srv: srv, id: "alice", name: "Alice"}
	bob := caller{t: t, srv: srv, id: "bob", name: "Bob"}

	resp := caller{t: t, srv: srv}.do(http.MethodPost, "/conversations", `{}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = alice.do(http.MethodPost, "/conversations", `{"joinKey":"s3cret"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	conv := decodeBody[model.Conversation](t, resp)
	require.NotEmpty(t, conv.ID)
	require.Len(t, conv.AIParticipants, 1)
	assert.Equal(t, model.RoleModerator, conv.AIParticipants[0].Role)

	resp = bob.do(http.MethodGet, "/conversations/"+conv.ID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = bob.do(http.MethodPost, "/conversations/"+conv.ID+"/messages", `{"content":"hi"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = bob.do(http.MethodPost, "/conversations/"+conv.ID+"/join", `{"joinKey":"nope"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = bob.do(http.MethodPost, "/conversations/"+conv.ID+"/join", `{"joinKey":"s3cret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = bob.do(http.MethodPost, "/conversations/"+conv.ID+"/messages", `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = bob.do(http.MethodPost, "/conversations/"+conv.ID+"/messages", `{"content":"hey all"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sent := decodeBody[model.Message](t, resp)
	assert.Equal(t, "hey all", sent.Content)
	assert.Equal(t, "Bob", sent.SenderName)

	// the moderator has never spoken in a short chat, so it greets
	require.Eventually(t, func() bool {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/conversations/"+conv.ID+"/messages", nil)
		req.Header.Set(headerUserID, "alice")
		resp, err := srv.Client().Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var page MessagesResponse
		if json.NewDecoder(resp.Body).Decode(&page) != nil || len(page.Messages) == 0 {
			return false
		}
		last := page.Messages[len(page.Messages)-1]
		return last.Kind == model.KindAI && last.Content == "Hello and welcome!"
	}, 2*time.Second, 10*time.Millisecond)

	resp = bob.do(http.MethodGet, "/conversations/"+conv.ID+"/search?q=hey", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	found := decodeBody[SearchResponse](t, resp)
	require.NotEmpty(t, found.Matches)
	assert.Equal(t, sent.ID, found.Matches[0].Message.ID)

	resp = bob.do(http.MethodGet, "/conversations/"+conv.ID+"/search", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = alice.do(http.MethodGet, "/conversations/"+conv.ID+"/messages?limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeBody[MessagesResponse](t, resp)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "hey all", page.Messages[0].Content)
	for _, m := range page.Messages {
		assert.False(t, m.IsSuppressed)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	alice := caller{t: t, srv: srv, id: "alice", name: "Alice"}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown conversation", http.MethodGet, "/conversations/missing", "", http.StatusNotFound},
		{"join unknown", http.MethodPost, "/conversations/missing/join", `{}`, http.StatusNotFound},
		{"bad json", http.MethodPost, "/conversations", `{"open":`, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/conversations/missing/messages?limit=zero", "", http.StatusBadRequest},
		{"decide without role", http.MethodPost, "/decide", `{"message":"hi"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := alice.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
			body := decodeBody[map[string]string](t, resp)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestDecide(t *testing.T) {
	srv := newTestServer(t)
	alice := caller{t: t, srv: srv, id: "alice", name: "Alice"}

	tests := []struct {
		name    string
		body    string
		respond bool
		reason  model.ReasonCode
	}{
		{
			name:    "alias mention",
			body:    `{"participant":{"role":"planner","customMention":"@pm","sensitivityLevel":"silent"},"message":"@pm can you help"}`,
			respond: true,
			reason:  model.ReasonExplicitMention,
		},
		{
			name:   "silent",
			body:   `{"participant":{"role":"planner","sensitivityLevel":"silent"},"message":"what is the deadline"}`,
			reason: model.ReasonSilentMode,
		},
		{
			name:    "planning keyword",
			body:    `{"participant":{"role":"Planner"},"message":"What is the deadline?"}`,
			respond: true,
			reason:  model.ReasonPlanningTopic,
		},
		{
			name:   "unknown role",
			body:   `{"participant":{"role":"poet"},"message":"roses are red"}`,
			reason: model.ReasonNoTriggerForRole,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := alice.do(http.MethodPost, "/decide", tt.body)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			got := decodeBody[DecideResponse](t, resp)
			assert.Equal(t, tt.respond, got.Decision.ShouldRespond)
			assert.Equal(t, tt.reason, got.Decision.Reason)
		})
	}

	t.Run("conversation history needs membership", func(t *testing.T) {
		resp := alice.do(http.MethodPost, "/conversations", `{}`)
		conv := decodeBody[model.Conversation](t, resp)

		body := `{"participant":{"role":"moderator"},"message":"hi","conversationId":"` + conv.ID + `"}`
		resp = caller{t: t, srv: srv, id: "mallory"}.do(http.MethodPost, "/decide", body)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp = alice.do(http.MethodPost, "/decide", body)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decodeBody[DecideResponse](t, resp)
		assert.Equal(t, model.ReasonGreetingNewChat, got.Decision.Reason)
	})
}

func TestEventStream(t *testing.T) {
	srv := newTestServer(t)
	alice := caller{t: t, srv: srv, id: "alice", name: "Alice"}

	resp := alice.do(http.MethodPost, "/conversations", `{}`)
	conv := decodeBody[model.Conversation](t, resp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/conversations/"+conv.ID+"/events", nil)
	require.NoError(t, err)
	req.Header.Set(headerUserID, "alice")
	stream, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	events := make(chan model.Message, 16)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(stream.Body)
		for sc.Scan() {
			data, ok := strings.CutPrefix(sc.Text(), "data: ")
			if !ok {
				continue
			}
			var m model.Message
			if json.Unmarshal([]byte(data), &m) == nil {
				events <- m
			}
		}
	}()

	nextEvent := func() model.Message {
		t.Helper()
		select {
		case m, ok := <-events:
			require.True(t, ok, "stream ended")
			return m
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
			return model.Message{}
		}
	}

	assert.Equal(t, "Chat created by Alice", nextEvent().Content, "backlog replays first")

	resp = alice.do(http.MethodPost, "/conversations/"+conv.ID+"/messages", `{"content":"morning"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Equal(t, "morning", nextEvent().Content)
	placeholder := nextEvent()
	assert.True(t, placeholder.IsPlaceholder)
	hidden := nextEvent()
	assert.Equal(t, placeholder.ID, hidden.ID)
	assert.True(t, hidden.IsSuppressed)
	reply := nextEvent()
	assert.Equal(t, "Hello and welcome!", reply.Content)
	assert.Equal(t, placeholder.CorrelationID, reply.CorrelationID)

	cancel()
	for range events {
	}
}

func TestEventStreamRequiresMembership(t *testing.T) {
	srv := newTestServer(t)
	resp := caller{t: t, srv: srv, id: "alice", name: "Alice"}.do(http.MethodPost, "/conversations", `{}`)
	conv := decodeBody[model.Conversation](t, resp)

	resp = caller{t: t, srv: srv, id: "bob"}.do(http.MethodGet, "/conversations/"+conv.ID+"/events", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
