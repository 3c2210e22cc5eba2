package chat

import (
	"context"
	"sync"

	"groupchat/lifecycle"
	"groupchat/model"
)

// Session is one user's live view of a conversation. Events carries every
// message appended or updated after Enter; Close releases the subscription.
type Session struct {
	svc            *Service
	conversationID string
	user           model.User

	events      chan model.Message
	unsubscribe func()
	stopWatch   func() bool

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// Enter opens a session for a member. The session closes itself when ctx
// ends.
func (s *Service) Enter(ctx context.Context, id string, user model.User) (*Session, error) {
	if _, err := s.member(ctx, id, user); err != nil {
		return nil, err
	}

	sess := &Session{
		svc:            s,
		conversationID: id,
		user:           user,
		events:         make(chan model.Message, s.sessionBuffer),
	}

	unsubscribe, err := s.store.Subscribe(context.WithoutCancel(ctx), id, sess.deliver)
	if err != nil {
		return nil, err
	}
	sess.unsubscribe = unsubscribe
	sess.stopWatch = context.AfterFunc(ctx, sess.Close)
	return sess, nil
}

func (s *Session) deliver(m model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- m:
	default:
		s.svc.logger.Warn().Str("conversation", s.conversationID).Str("user", s.user.ID).
			Str("message", m.ID).Msg("session buffer full, dropping event")
	}
}

// Events is closed by Close.
func (s *Session) Events() <-chan model.Message {
	return s.events
}

func (s *Session) ConversationID() string { return s.conversationID }

// Recent returns up to limit visible messages, oldest first.
func (s *Session) Recent(ctx context.Context, limit int) ([]model.Message, error) {
	return s.svc.Messages(ctx, s.conversationID, s.user, limit)
}

// Send posts a message as the session's user.
func (s *Session) Send(ctx context.Context, content string) (model.Message, *lifecycle.Batch, error) {
	return s.svc.SendMessage(ctx, s.conversationID, s.user, content)
}

// Close unsubscribes and closes Events. It is safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		if s.stopWatch != nil {
			s.stopWatch()
		}
		s.unsubscribe()

		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	})
}
