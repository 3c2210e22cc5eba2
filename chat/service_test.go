package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"

	"groupchat/intervention"
	"groupchat/lifecycle"
	"groupchat/model"
	"groupchat/provider/testutil"
	"groupchat/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	alice = model.User{ID: "alice", DisplayName: "Alice"}
	bob   = model.User{ID: "bob", DisplayName: "Bob"}
)

func newService(t *testing.T, gen model.Generator) (*Service, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	ctrl := lifecycle.NewController(intervention.NewEngine(intervention.WithRandom(func() float64 { return 0.99 })), store, gen)
	disp := lifecycle.NewDispatcher(ctrl, lifecycle.WithStagger(0))
	return NewService(store, disp, WithBcryptCost(bcrypt.MinCost)), store
}

func TestCreateConversation(t *testing.T) {
	svc, store := newService(t, testutil.NewMockGenerator("hi"))
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, alice, CreateOptions{
		Participants: []model.AIParticipant{
			{Role: "Planner", CustomMention: "@plans", Sensitivity: "BALANCED"},
			{Role: "planner"},
			{Role: model.RoleSummarizer},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "alice", conv.CreatedBy)
	assert.Equal(t, "Alice", conv.CreatorName)
	assert.Equal(t, []string{"alice"}, conv.Members)
	require.Len(t, conv.AIParticipants, 2, "duplicate roles collapse")
	assert.Equal(t, model.RolePlanner, conv.AIParticipants[0].Role)
	assert.Equal(t, "plans", conv.AIParticipants[0].CustomMention)
	assert.Equal(t, model.SensitivityBalanced, conv.AIParticipants[0].Sensitivity)
	assert.Equal(t, model.SensitivityConservative, conv.AIParticipants[1].Sensitivity)

	msgs, err := store.QueryRecent(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.KindSystem, msgs[0].Kind)
	assert.Equal(t, "Chat created by Alice", msgs[0].Content)
}

func TestCreateConversationDefaults(t *testing.T) {
	svc, _ := newService(t, nil)

	conv, err := svc.CreateConversation(context.Background(), alice, CreateOptions{})
	require.NoError(t, err)
	require.Len(t, conv.AIParticipants, 1)
	assert.Equal(t, model.RoleModerator, conv.AIParticipants[0].Role)

	_, err = svc.CreateConversation(context.Background(), model.User{}, CreateOptions{})
	assert.ErrorIs(t, err, ErrInvalidUser)
}

func TestJoin(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()

	locked, err := svc.CreateConversation(ctx, alice, CreateOptions{JoinKey: "s3cret"})
	require.NoError(t, err)
	assert.NotEmpty(t, locked.JoinKeyHash)

	_, err = svc.Join(ctx, locked.ID, bob, "wrong")
	assert.ErrorIs(t, err, ErrJoinDenied)

	conv, err := svc.Join(ctx, locked.ID, bob, "s3cret")
	require.NoError(t, err)
	assert.True(t, conv.HasMember("bob"))

	// re-joining is a no-op and needs no key
	_, err = svc.Join(ctx, locked.ID, bob, "")
	require.NoError(t, err)

	msgs, err := store.QueryRecent(ctx, locked.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Bob joined the chat", msgs[1].Content)

	open, err := svc.CreateConversation(ctx, alice, CreateOptions{Open: true})
	require.NoError(t, err)
	_, err = svc.Join(ctx, open.ID, bob, "")
	assert.NoError(t, err)

	closed, err := svc.CreateConversation(ctx, alice, CreateOptions{})
	require.NoError(t, err)
	_, err = svc.Join(ctx, closed.ID, bob, "")
	assert.ErrorIs(t, err, ErrJoinDenied)

	_, err = svc.Join(ctx, "missing", bob, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSendMessage(t *testing.T) {
	gen := testutil.NewMockGenerator("Noted, I'll draft a timeline.")
	svc, store := newService(t, gen)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, alice, CreateOptions{
		Participants: []model.AIParticipant{{Role: model.RolePlanner}, {Role: model.RoleSummarizer}},
	})
	require.NoError(t, err)

	msg, batch, err := svc.SendMessage(ctx, conv.ID, alice, "  we need a schedule for launch  ")
	require.NoError(t, err)
	assert.Equal(t, "we need a schedule for launch", msg.Content)
	assert.Equal(t, "Alice", msg.SenderName)
	require.NotNil(t, batch)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	outcomes, err := batch.Wait(waitCtx)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, lifecycle.StatusResponded, outcomes[0].Status)
	assert.Equal(t, model.ReasonPlanningTopic, outcomes[0].Decision.Reason)
	assert.Equal(t, lifecycle.StatusSkipped, outcomes[1].Status)

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "alice", reqs[0].RequestedBy)
	assert.Equal(t, "System: Chat created by Alice\nUser (Alice): we need a schedule for launch", reqs[0].History)

	msgs, err := store.QueryRecent(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "Noted, I'll draft a timeline.", msgs[2].Content)
	assert.Equal(t, model.ReasonPlanningTopic, msgs[2].InterventionReason)
}

func TestSendMessageRejects(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, alice, CreateOptions{})
	require.NoError(t, err)

	_, _, err = svc.SendMessage(ctx, conv.ID, alice, "   \n\t")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, _, err = svc.SendMessage(ctx, conv.ID, bob, "let me in")
	assert.ErrorIs(t, err, ErrNotMember)

	_, err = svc.Messages(ctx, conv.ID, bob, 10)
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestHistoryLimit(t *testing.T) {
	gen := testutil.NewMockGenerator("ok")
	store := storage.NewMemoryStore()
	ctrl := lifecycle.NewController(intervention.NewEngine(), store, gen)
	svc := NewService(store, lifecycle.NewDispatcher(ctrl, lifecycle.WithStagger(0)), WithHistoryLimit(2))
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, alice, CreateOptions{Participants: []model.AIParticipant{{Role: model.RolePlanner}}})
	require.NoError(t, err)
	for _, text := range []string{"one", "two", "three"} {
		_, batch, err := svc.SendMessage(ctx, conv.ID, alice, text)
		require.NoError(t, err)
		_, err = batch.Wait(ctx)
		require.NoError(t, err)
	}
	_, batch, err := svc.SendMessage(ctx, conv.ID, alice, "@planner ping")
	require.NoError(t, err)
	_, err = batch.Wait(ctx)
	require.NoError(t, err)

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "User (Alice): three\nUser (Alice): @planner ping", reqs[0].History)
}

func TestConservativeSummarizerReachesThreshold(t *testing.T) {
	gen := testutil.NewMockGenerator("Summary: updates 1 through 11.")
	svc, _ := newService(t, gen)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, alice, CreateOptions{
		Participants: []model.AIParticipant{{Role: model.RoleSummarizer, Sensitivity: model.SensitivityConservative}},
	})
	require.NoError(t, err)

	var responded []int
	for i := 1; i <= 14; i++ {
		_, batch, err := svc.SendMessage(ctx, conv.ID, alice, fmt.Sprintf("update %d", i))
		require.NoError(t, err)
		outcomes, err := batch.Wait(ctx)
		require.NoError(t, err)
		require.Len(t, outcomes, 1)
		if outcomes[0].Status == lifecycle.StatusResponded {
			assert.Equal(t, model.ReasonThresholdReached, outcomes[0].Decision.Reason)
			responded = append(responded, i)
		}
	}

	// the creation notice plus eleven updates makes twelve messages
	assert.Equal(t, []int{11}, responded)

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	lines := strings.Split(reqs[0].History, "\n")
	require.Len(t, lines, 10, "prompt keeps the history limit")
	assert.Equal(t, "User (Alice): update 2", lines[0])
	assert.Equal(t, "User (Alice): update 11", lines[9])
}

func TestSearch(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, alice, CreateOptions{Participants: []model.AIParticipant{{Role: model.RoleSummarizer}}})
	require.NoError(t, err)
	for _, text := range []string{"budget review on monday", "who owns the budget?", "lunch?"} {
		_, batch, err := svc.SendMessage(ctx, conv.ID, alice, text)
		require.NoError(t, err)
		_, err = batch.Wait(ctx)
		require.NoError(t, err)
	}

	hits, err := svc.Search(ctx, conv.ID, alice, "budget", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Contains(t, h.Message.Content, "budget")
	}

	_, err = svc.Search(ctx, conv.ID, bob, "budget", 10)
	assert.ErrorIs(t, err, ErrNotMember)
}
