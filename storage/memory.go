package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"groupchat/model"
)

// MemoryStore keeps all state in process.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]model.Conversation
	messages      map[string][]model.Message
	index         map[string]map[string]int
	lastTS        map[string]time.Time
	jobs          map[string]model.GenerationJob
	// jobOrder holds unfinished job ids in enqueue order.
	jobOrder []string

	broker *broker
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]model.Conversation),
		messages:      make(map[string][]model.Message),
		index:         make(map[string]map[string]int),
		lastTS:        make(map[string]time.Time),
		jobs:          make(map[string]model.GenerationJob),
		broker:        newBroker(),
		now:           time.Now,
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

func (s *MemoryStore) Append(_ context.Context, msg model.Message) (model.Message, error) {
	if msg.ConversationID == "" {
		return model.Message{}, fmt.Errorf("append: conversation id is required")
	}

	s.mu.Lock()
	msg = prepareMessage(msg, msg.ConversationID)
	msg.Timestamp = nextTimestamp(s.now(), s.lastTS[msg.ConversationID])
	s.lastTS[msg.ConversationID] = msg.Timestamp

	if s.index[msg.ConversationID] == nil {
		s.index[msg.ConversationID] = make(map[string]int)
	}
	s.index[msg.ConversationID][msg.ID] = len(s.messages[msg.ConversationID])
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	s.mu.Unlock()

	s.broker.publish(msg)
	return msg, nil
}

func (s *MemoryStore) Update(_ context.Context, conversationID, messageID string, patch model.MessagePatch) (model.Message, error) {
	s.mu.Lock()
	i, ok := s.index[conversationID][messageID]
	if !ok {
		s.mu.Unlock()
		return model.Message{}, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	updated := patch.Apply(s.messages[conversationID][i])
	s.messages[conversationID][i] = updated
	s.mu.Unlock()

	s.broker.publish(updated)
	return updated, nil
}

func (s *MemoryStore) Get(_ context.Context, conversationID, messageID string) (model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[conversationID][messageID]
	if !ok {
		return model.Message{}, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return s.messages[conversationID][i], nil
}

func (s *MemoryStore) QueryRecent(_ context.Context, conversationID string, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[conversationID]
	out := make([]model.Message, 0, min(len(all), max(limit, 0)))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if all[i].IsVisible() {
			out = append(out, all[i])
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, conversationID string, onChange func(model.Message)) (func(), error) {
	return s.broker.subscribe(ctx, conversationID, onChange), nil
}

func (s *MemoryStore) CreateConversation(_ context.Context, c model.Conversation) (model.Conversation, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	if c.CreatedBy != "" && !c.HasMember(c.CreatedBy) {
		c.Members = append([]string{c.CreatedBy}, c.Members...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[c.ID]; exists {
		return model.Conversation{}, fmt.Errorf("conversation %s already exists", c.ID)
	}
	s.conversations[c.ID] = cloneConversation(c)
	return c, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return cloneConversation(c), nil
}

func (s *MemoryStore) AddMember(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if !c.HasMember(userID) {
		c.Members = append(slices.Clone(c.Members), userID)
		s.conversations[id] = c
	}
	return nil
}

func (s *MemoryStore) GetParticipants(ctx context.Context, id string) ([]model.AIParticipant, error) {
	c, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.AIParticipants, nil
}

func (s *MemoryStore) EnqueueJob(_ context.Context, job model.GenerationJob) (model.GenerationJob, error) {
	job = prepareJob(job, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; !exists {
		s.jobOrder = append(s.jobOrder, job.ID)
	}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (model.GenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return model.GenerationJob{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return job, nil
}

func (s *MemoryStore) ClaimJob(_ context.Context, id string) (model.GenerationJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return model.GenerationJob{}, false, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if job.Status != model.JobPending {
		return job, false, nil
	}
	job.Status = model.JobProcessing
	s.jobs[id] = job
	return job, true, nil
}

func (s *MemoryStore) CompleteJob(_ context.Context, job model.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.jobs[job.ID]
	if !ok {
		return fmt.Errorf("job %s: %w", job.ID, ErrNotFound)
	}
	existing.Status = job.Status
	existing.Response = job.Response
	existing.ErrorCode = job.ErrorCode
	existing.Error = job.Error
	existing.ProcessedAt = s.now().UTC()
	s.jobs[job.ID] = existing
	if existing.Finished() {
		// finished jobs stay readable by id but leave the pending scan
		if i := slices.Index(s.jobOrder, job.ID); i >= 0 {
			s.jobOrder = slices.Delete(s.jobOrder, i, i+1)
		}
	}
	return nil
}

func (s *MemoryStore) PendingJobs(_ context.Context, limit int) ([]model.GenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.GenerationJob
	for _, id := range s.jobOrder {
		if limit > 0 && len(out) == limit {
			break
		}
		if job := s.jobs[id]; job.Status == model.JobPending {
			out = append(out, job)
		}
	}
	return out, nil
}

func cloneConversation(c model.Conversation) model.Conversation {
	c.Members = slices.Clone(c.Members)
	c.AIParticipants = slices.Clone(c.AIParticipants)
	c.JoinKeyHash = slices.Clone(c.JoinKeyHash)
	return c
}
