package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"groupchat/model"
)

// RedisStore keeps conversations, messages and jobs in Redis. Change events
// go out over pub/sub, so subscribers in other processes see them too.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore connects using a redis:// URL.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStoreFromClient(client), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Client exposes the connection so the rate limiter can share it.
func (s *RedisStore) Client() *redis.Client { return s.client }

func (s *RedisStore) Close() error                   { return s.client.Close() }
func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func conversationKey(id string) string        { return fmt.Sprintf("groupchat:conversation:%s", id) }
func membersKey(id string) string             { return fmt.Sprintf("groupchat:conversation:%s:members", id) }
func messagesKey(conversationID string) string { return fmt.Sprintf("groupchat:messages:%s", conversationID) }
func messageOrderKey(conversationID string) string {
	return fmt.Sprintf("groupchat:messages:%s:order", conversationID)
}
func messageClockKey(conversationID string) string {
	return fmt.Sprintf("groupchat:messages:%s:clock", conversationID)
}
func eventsChannel(conversationID string) string { return fmt.Sprintf("groupchat:events:%s", conversationID) }
func jobKey(id string) string                     { return fmt.Sprintf("groupchat:job:%s", id) }

const pendingJobsKey = "groupchat:jobs:pending"

// clockScript hands out a (sequence, microsecond timestamp) pair that is
// strictly increasing per conversation across every writer.
var clockScript = redis.NewScript(`
local last = tonumber(redis.call('HGET', KEYS[1], 'ts') or '0')
local ts = tonumber(ARGV[1])
if ts <= last then ts = last + 1 end
local seq = redis.call('HINCRBY', KEYS[1], 'seq', 1)
redis.call('HSET', KEYS[1], 'ts', ts)
return {seq, ts}
`)

func (s *RedisStore) Append(ctx context.Context, msg model.Message) (model.Message, error) {
	defer observe("redis", "append", time.Now())
	if msg.ConversationID == "" {
		return model.Message{}, fmt.Errorf("append: conversation id is required")
	}
	msg = prepareMessage(msg, msg.ConversationID)

	res, err := clockScript.Run(ctx, s.client, []string{messageClockKey(msg.ConversationID)}, s.now().UnixMicro()).Int64Slice()
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to allocate message clock: %w", err)
	}
	seq, ts := res[0], res[1]
	msg.Timestamp = time.UnixMicro(ts).UTC()

	data, err := json.Marshal(msg)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to encode message: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, messagesKey(msg.ConversationID), msg.ID, data)
	pipe.ZAdd(ctx, messageOrderKey(msg.ConversationID), redis.Z{Score: float64(seq), Member: msg.ID})
	pipe.Publish(ctx, eventsChannel(msg.ConversationID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return model.Message{}, fmt.Errorf("failed to store message: %w", err)
	}
	return msg, nil
}

func (s *RedisStore) Update(ctx context.Context, conversationID, messageID string, patch model.MessagePatch) (model.Message, error) {
	defer observe("redis", "update", time.Now())

	current, err := s.Get(ctx, conversationID, messageID)
	if err != nil {
		return model.Message{}, err
	}
	updated := patch.Apply(current)

	data, err := json.Marshal(updated)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to encode message: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, messagesKey(conversationID), messageID, data)
	pipe.Publish(ctx, eventsChannel(conversationID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return model.Message{}, fmt.Errorf("failed to update message: %w", err)
	}
	return updated, nil
}

func (s *RedisStore) Get(ctx context.Context, conversationID, messageID string) (model.Message, error) {
	data, err := s.client.HGet(ctx, messagesKey(conversationID), messageID).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Message{}, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to load message: %w", err)
	}
	var m model.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return model.Message{}, fmt.Errorf("failed to decode message: %w", err)
	}
	return m, nil
}

func (s *RedisStore) QueryRecent(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	defer observe("redis", "query_recent", time.Now())

	page := int64(50)
	if limit > 0 {
		page = int64(limit) * 2
	}

	var out []model.Message
	for start := int64(0); ; start += page {
		ids, err := s.client.ZRevRange(ctx, messageOrderKey(conversationID), start, start+page-1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read message order: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		values, err := s.client.HMGet(ctx, messagesKey(conversationID), ids...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read messages: %w", err)
		}
		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var m model.Message
			if err := json.Unmarshal([]byte(raw), &m); err != nil {
				continue
			}
			if m.IsVisible() {
				out = append(out, m)
			}
			if limit > 0 && len(out) == limit {
				break
			}
		}
		if (limit > 0 && len(out) == limit) || int64(len(ids)) < page {
			break
		}
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *RedisStore) Subscribe(ctx context.Context, conversationID string, onChange func(model.Message)) (func(), error) {
	pubsub := s.client.Subscribe(ctx, eventsChannel(conversationID))
	// Receive blocks until the subscription is confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for raw := range pubsub.Channel() {
			var m model.Message
			if err := json.Unmarshal([]byte(raw.Payload), &m); err != nil {
				continue
			}
			onChange(m)
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			pubsub.Close()
			<-done
		})
	}
	stop := context.AfterFunc(ctx, unsubscribe)
	return func() {
		stop()
		unsubscribe()
	}, nil
}

// conversationRecord carries the join key hash, which the public JSON form
// omits.
type conversationRecord struct {
	model.Conversation
	JoinKeyHash []byte `json:"joinKeyHash,omitempty"`
}

func (s *RedisStore) CreateConversation(ctx context.Context, c model.Conversation) (model.Conversation, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	if c.CreatedBy != "" && !c.HasMember(c.CreatedBy) {
		c.Members = append([]string{c.CreatedBy}, c.Members...)
	}

	rec := conversationRecord{Conversation: c, JoinKeyHash: c.JoinKeyHash}
	rec.Members = nil
	data, err := json.Marshal(rec)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to encode conversation: %w", err)
	}

	created, err := s.client.SetNX(ctx, conversationKey(c.ID), data, 0).Result()
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to store conversation: %w", err)
	}
	if !created {
		return model.Conversation{}, fmt.Errorf("conversation %s already exists", c.ID)
	}

	if len(c.Members) > 0 {
		members := make([]redis.Z, 0, len(c.Members))
		for i, m := range c.Members {
			members = append(members, redis.Z{Score: float64(c.CreatedAt.UnixMicro() + int64(i)), Member: m})
		}
		if err := s.client.ZAdd(ctx, membersKey(c.ID), members...).Err(); err != nil {
			return model.Conversation{}, fmt.Errorf("failed to store members: %w", err)
		}
	}
	return c, nil
}

func (s *RedisStore) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	data, err := s.client.Get(ctx, conversationKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to load conversation: %w", err)
	}

	var rec conversationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.Conversation{}, fmt.Errorf("failed to decode conversation: %w", err)
	}
	c := rec.Conversation
	c.JoinKeyHash = rec.JoinKeyHash

	members, err := s.client.ZRange(ctx, membersKey(id), 0, -1).Result()
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to load members: %w", err)
	}
	c.Members = members
	return c, nil
}

func (s *RedisStore) AddMember(ctx context.Context, id, userID string) error {
	exists, err := s.client.Exists(ctx, conversationKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to check conversation: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	err = s.client.ZAddNX(ctx, membersKey(id), redis.Z{Score: float64(s.now().UnixMicro()), Member: userID}).Err()
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

func (s *RedisStore) GetParticipants(ctx context.Context, id string) ([]model.AIParticipant, error) {
	c, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.AIParticipants, nil
}

func (s *RedisStore) EnqueueJob(ctx context.Context, job model.GenerationJob) (model.GenerationJob, error) {
	job = prepareJob(job, s.now())
	data, err := json.Marshal(job)
	if err != nil {
		return model.GenerationJob{}, fmt.Errorf("failed to encode job: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.ZAdd(ctx, pendingJobsKey, redis.Z{Score: float64(job.CreatedAt.UnixMicro()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return model.GenerationJob{}, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job, nil
}

func (s *RedisStore) GetJob(ctx context.Context, id string) (model.GenerationJob, error) {
	data, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.GenerationJob{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.GenerationJob{}, fmt.Errorf("failed to load job: %w", err)
	}
	var job model.GenerationJob
	if err := json.Unmarshal(data, &job); err != nil {
		return model.GenerationJob{}, fmt.Errorf("failed to decode job: %w", err)
	}
	return job, nil
}

func (s *RedisStore) putJob(ctx context.Context, job model.GenerationJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	return s.client.Set(ctx, jobKey(job.ID), data, 0).Err()
}

func (s *RedisStore) ClaimJob(ctx context.Context, id string) (model.GenerationJob, bool, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return model.GenerationJob{}, false, err
	}

	// ZREM is atomic: exactly one worker removes the id.
	removed, err := s.client.ZRem(ctx, pendingJobsKey, id).Result()
	if err != nil {
		return model.GenerationJob{}, false, fmt.Errorf("failed to claim job: %w", err)
	}
	if removed == 0 {
		return job, false, nil
	}

	job.Status = model.JobProcessing
	if err := s.putJob(ctx, job); err != nil {
		return model.GenerationJob{}, false, fmt.Errorf("failed to mark job processing: %w", err)
	}
	return job, true, nil
}

func (s *RedisStore) CompleteJob(ctx context.Context, job model.GenerationJob) error {
	existing, err := s.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	existing.Status = job.Status
	existing.Response = job.Response
	existing.ErrorCode = job.ErrorCode
	existing.Error = job.Error
	existing.ProcessedAt = s.now().UTC()

	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, pendingJobsKey, job.ID)
	data, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

func (s *RedisStore) PendingJobs(ctx context.Context, limit int) ([]model.GenerationJob, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRange(ctx, pendingJobsKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}

	out := make([]model.GenerationJob, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}
