// Package storage persists conversations, messages and queued generation
// requests.
//
// Three drivers implement Store:
//   - MemoryStore keeps everything in process (tests, single-node demos)
//   - SQLiteStore writes to a local database file via modernc.org/sqlite
//   - RedisStore keeps state in Redis and fans change events out over
//     pub/sub so several server processes can share conversations
//
// Messages are append-only. The only mutation is a MessagePatch, which flips
// placeholder flags or rewrites content; nothing is ever deleted.
package storage

import (
	"context"
	"errors"
	"time"

	"groupchat/model"
)

var ErrNotFound = errors.New("not found")

// MessageStore holds conversation messages.
type MessageStore interface {
	// Append stores msg, assigning its ID and a server timestamp that is
	// strictly increasing within the conversation.
	Append(ctx context.Context, msg model.Message) (model.Message, error)

	// Update applies patch to an existing message and returns the result.
	Update(ctx context.Context, conversationID, messageID string, patch model.MessagePatch) (model.Message, error)

	// Get returns a single message, suppressed or not.
	Get(ctx context.Context, conversationID, messageID string) (model.Message, error)

	// QueryRecent returns up to limit non-suppressed messages, oldest first.
	// A limit of zero or less returns every visible message.
	QueryRecent(ctx context.Context, conversationID string, limit int) ([]model.Message, error)

	// Subscribe calls onChange for every message appended to or updated in
	// the conversation until the returned function is called or ctx ends.
	Subscribe(ctx context.Context, conversationID string, onChange func(model.Message)) (func(), error)
}

// ConversationStore holds conversation metadata and membership.
type ConversationStore interface {
	CreateConversation(ctx context.Context, c model.Conversation) (model.Conversation, error)
	GetConversation(ctx context.Context, id string) (model.Conversation, error)
	// AddMember is a no-op when userID already belongs to the conversation.
	AddMember(ctx context.Context, id, userID string) error
	GetParticipants(ctx context.Context, id string) ([]model.AIParticipant, error)
}

// RequestQueue holds generation requests for out-of-band workers.
type RequestQueue interface {
	EnqueueJob(ctx context.Context, job model.GenerationJob) (model.GenerationJob, error)
	GetJob(ctx context.Context, id string) (model.GenerationJob, error)
	// ClaimJob moves a pending job to processing. It returns false when
	// another worker got there first.
	ClaimJob(ctx context.Context, id string) (model.GenerationJob, bool, error)
	// CompleteJob records the job's final status, response and error.
	CompleteJob(ctx context.Context, job model.GenerationJob) error
	// PendingJobs lists up to limit pending jobs, oldest first.
	PendingJobs(ctx context.Context, limit int) ([]model.GenerationJob, error)
}

// Store is everything the service persists.
type Store interface {
	MessageStore
	ConversationStore
	RequestQueue
	Ping(ctx context.Context) error
	Close() error
}

// nextTimestamp returns now, nudged forward so it sorts after last.
func nextTimestamp(now, last time.Time) time.Time {
	now = now.UTC()
	if !now.After(last) {
		return last.Add(time.Microsecond)
	}
	return now
}

func prepareMessage(msg model.Message, conversationID string) model.Message {
	msg.ConversationID = conversationID
	if msg.ID == "" {
		msg.ID = newID()
	}
	return msg
}

func prepareJob(job model.GenerationJob, now time.Time) model.GenerationJob {
	if job.ID == "" {
		job.ID = newID()
	}
	if job.Status == "" {
		job.Status = model.JobPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now.UTC()
	}
	return job
}
