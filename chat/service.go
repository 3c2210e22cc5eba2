// Package chat is the conversation service: creating and joining
// conversations, posting human messages and fanning each one out to the
// conversation's AI participants.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"groupchat/intervention"
	"groupchat/lifecycle"
	"groupchat/metrics"
	"groupchat/model"
	"groupchat/storage"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrNotMember    = errors.New("not a member of this conversation")
	ErrJoinDenied   = errors.New("join key missing or incorrect")
	ErrInvalidUser  = errors.New("user id is required")
)

// Store is the persistence the service needs.
type Store interface {
	storage.MessageStore
	storage.ConversationStore
}

// Dispatcher is satisfied by *lifecycle.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, in lifecycle.DispatchInput) *lifecycle.Batch
}

// Service owns conversations and membership and dispatches AI runs for
// every human message.
type Service struct {
	store               Store
	dispatcher          Dispatcher
	historyLimit        int
	defaultParticipants []model.AIParticipant
	bcryptCost          int
	sessionBuffer       int
	logger              zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHistoryLimit sets how many recent messages each AI prompt includes.
// Decisions always see at least intervention.DecisionWindow messages.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithDefaultParticipants sets the AI participants used when a conversation
// is created without any.
func WithDefaultParticipants(ps []model.AIParticipant) Option {
	return func(s *Service) { s.defaultParticipants = ps }
}

// WithBcryptCost sets the cost used to hash join keys.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithSessionBuffer sets how many undelivered events a session holds before
// dropping new ones.
func WithSessionBuffer(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sessionBuffer = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a service over store. A nil dispatcher stores human
// messages without starting AI runs.
func NewService(store Store, dispatcher Dispatcher, opts ...Option) *Service {
	s := &Service{
		store:        store,
		dispatcher:   dispatcher,
		historyLimit: 10,
		defaultParticipants: []model.AIParticipant{
			{Role: model.RoleModerator, Sensitivity: model.SensitivityConservative},
		},
		bcryptCost:    bcrypt.DefaultCost,
		sessionBuffer: 64,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOptions configures a new conversation.
type CreateOptions struct {
	Participants []model.AIParticipant
	// JoinKey, when set, lets others join by presenting it.
	JoinKey string
	// Open lets anyone with the conversation id join without a key.
	Open bool
}

func (s *Service) CreateConversation(ctx context.Context, creator model.User, opts CreateOptions) (model.Conversation, error) {
	if creator.ID == "" {
		return model.Conversation{}, ErrInvalidUser
	}

	participants := normalizeParticipants(opts.Participants)
	if len(participants) == 0 {
		participants = normalizeParticipants(s.defaultParticipants)
	}

	conv := model.Conversation{
		CreatedBy:      creator.ID,
		CreatorName:    creator.Name(),
		Members:        []string{creator.ID},
		AIParticipants: participants,
		Open:           opts.Open,
	}
	if opts.JoinKey != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.JoinKey), s.bcryptCost)
		if err != nil {
			return model.Conversation{}, fmt.Errorf("failed to hash join key: %w", err)
		}
		conv.JoinKeyHash = hash
	}

	conv, err := s.store.CreateConversation(ctx, conv)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	metrics.ConversationsCreated.Inc()

	if err := s.systemMessage(ctx, conv.ID, "Chat created by "+creator.Name()); err != nil {
		return model.Conversation{}, err
	}

	s.logger.Info().Str("conversation", conv.ID).Str("creator", creator.ID).
		Int("participants", len(participants)).Msg("conversation created")
	return conv, nil
}

// Conversation returns a conversation's metadata. It does not require
// membership so invitees can see what they are joining.
func (s *Service) Conversation(ctx context.Context, id string) (model.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// Join adds user to the conversation. Members re-joining is a no-op.
func (s *Service) Join(ctx context.Context, id string, user model.User, key string) (model.Conversation, error) {
	if user.ID == "" {
		return model.Conversation{}, ErrInvalidUser
	}

	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return model.Conversation{}, err
	}
	if conv.HasMember(user.ID) {
		return conv, nil
	}

	if !conv.Open {
		if len(conv.JoinKeyHash) == 0 || bcrypt.CompareHashAndPassword(conv.JoinKeyHash, []byte(key)) != nil {
			return model.Conversation{}, ErrJoinDenied
		}
	}

	if err := s.store.AddMember(ctx, id, user.ID); err != nil {
		return model.Conversation{}, fmt.Errorf("failed to add member: %w", err)
	}
	if err := s.systemMessage(ctx, id, user.Name()+" joined the chat"); err != nil {
		return model.Conversation{}, err
	}

	conv.Members = append(conv.Members, user.ID)
	return conv, nil
}

// SendMessage stores a human message and starts the AI participants' runs
// without waiting for them. The returned batch reports their outcomes.
func (s *Service) SendMessage(ctx context.Context, id string, user model.User, content string) (model.Message, *lifecycle.Batch, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Message{}, nil, ErrEmptyMessage
	}

	conv, err := s.member(ctx, id, user)
	if err != nil {
		return model.Message{}, nil, err
	}

	msg, err := s.store.Append(ctx, model.Message{
		ConversationID: id,
		Kind:           model.KindHuman,
		Content:        content,
		Sender:         user.ID,
		SenderName:     user.Name(),
	})
	if err != nil {
		return model.Message{}, nil, fmt.Errorf("failed to store message: %w", err)
	}
	metrics.MessagesPosted.WithLabelValues(string(model.KindHuman)).Inc()

	history, err := s.store.QueryRecent(ctx, id, max(s.historyLimit, intervention.DecisionWindow()))
	if err != nil {
		// the message is stored; AI runs are skipped for this event
		s.logger.Error().Err(err).Str("conversation", id).Msg("failed to snapshot history")
		return msg, nil, nil
	}

	var batch *lifecycle.Batch
	if s.dispatcher != nil && len(conv.AIParticipants) > 0 {
		batch = s.dispatcher.Dispatch(ctx, lifecycle.DispatchInput{
			ConversationID: id,
			Participants:   conv.AIParticipants,
			History:        history,
			PromptLimit:    s.historyLimit,
			RequestedBy:    user.ID,
		})
	}
	return msg, batch, nil
}

// Messages returns up to limit visible messages, oldest first.
func (s *Service) Messages(ctx context.Context, id string, user model.User, limit int) ([]model.Message, error) {
	if _, err := s.member(ctx, id, user); err != nil {
		return nil, err
	}
	return s.store.QueryRecent(ctx, id, limit)
}

// Search ranks a conversation's visible messages against query.
func (s *Service) Search(ctx context.Context, id string, user model.User, query string, limit int) ([]storage.MessageMatch, error) {
	if _, err := s.member(ctx, id, user); err != nil {
		return nil, err
	}
	msgs, err := s.store.QueryRecent(ctx, id, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return storage.SearchMessages(msgs, query, limit), nil
}

func (s *Service) member(ctx context.Context, id string, user model.User) (model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return model.Conversation{}, err
	}
	if user.ID == "" || !conv.HasMember(user.ID) {
		return model.Conversation{}, ErrNotMember
	}
	return conv, nil
}

func (s *Service) systemMessage(ctx context.Context, id, content string) error {
	_, err := s.store.Append(ctx, model.Message{
		ConversationID: id,
		Kind:           model.KindSystem,
		Content:        content,
	})
	if err != nil {
		return fmt.Errorf("failed to store system message: %w", err)
	}
	metrics.MessagesPosted.WithLabelValues(string(model.KindSystem)).Inc()
	return nil
}

// normalizeParticipants normalizes each entry and keeps the first of any
// duplicated role.
func normalizeParticipants(ps []model.AIParticipant) []model.AIParticipant {
	out := make([]model.AIParticipant, 0, len(ps))
	seen := make(map[model.Role]bool, len(ps))
	for _, p := range ps {
		p = p.Normalize()
		if p.Role == "" || seen[p.Role] {
			continue
		}
		seen[p.Role] = true
		out = append(out, p)
	}
	return out
}
