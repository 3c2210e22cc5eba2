package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"groupchat/metrics"
	"groupchat/model"
)

// SQLiteStore persists to a local database file. Change notifications only
// reach subscribers in the same process.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex // serializes appends so timestamps stay ordered
	broker *broker
	now    func() time.Time
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db, broker: newBroker(), now: time.Now}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	PRAGMA journal_mode = WAL;
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		created_by TEXT NOT NULL,
		creator_name TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		open INTEGER NOT NULL DEFAULT 0,
		join_key_hash BLOB,
		ai_participants TEXT NOT NULL DEFAULT '[]'
	);
	CREATE TABLE IF NOT EXISTS conversation_members (
		conversation_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		joined_at INTEGER NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	);
	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		sender TEXT NOT NULL DEFAULT '',
		sender_name TEXT NOT NULL DEFAULT '',
		is_typing INTEGER NOT NULL DEFAULT 0,
		is_hidden INTEGER NOT NULL DEFAULT 0,
		typing_id TEXT NOT NULL DEFAULT '',
		intervention_reason TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);
	CREATE TABLE IF NOT EXISTS generation_jobs (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		prompt TEXT NOT NULL,
		requested_by TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		response TEXT NOT NULL DEFAULT '',
		error_code TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		processed_at INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON generation_jobs(status, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLiteStore) Close() error                   { return s.db.Close() }

func observe(driver, op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(driver, op).Observe(time.Since(start).Seconds())
}

const messageColumns = `id, conversation_id, type, content, timestamp, sender, sender_name, is_typing, is_hidden, typing_id, intervention_reason`

func scanMessage(row interface{ Scan(...any) error }) (model.Message, error) {
	var (
		m      model.Message
		kind   string
		ts     int64
		reason string
	)
	err := row.Scan(&m.ID, &m.ConversationID, &kind, &m.Content, &ts, &m.Sender, &m.SenderName,
		&m.IsPlaceholder, &m.IsSuppressed, &m.CorrelationID, &reason)
	if err != nil {
		return model.Message{}, err
	}
	m.Kind = model.Kind(kind)
	m.Timestamp = time.Unix(0, ts).UTC()
	m.InterventionReason = model.ReasonCode(reason)
	return m, nil
}

func (s *SQLiteStore) Append(ctx context.Context, msg model.Message) (model.Message, error) {
	defer observe("sqlite", "append", time.Now())
	if msg.ConversationID == "" {
		return model.Message{}, fmt.Errorf("append: conversation id is required")
	}

	s.mu.Lock()
	var last int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(timestamp), 0) FROM messages WHERE conversation_id = ?`, msg.ConversationID).Scan(&last)
	if err != nil {
		s.mu.Unlock()
		return model.Message{}, fmt.Errorf("failed to read last timestamp: %w", err)
	}

	msg = prepareMessage(msg, msg.ConversationID)
	lastTS := time.Time{}
	if last > 0 {
		lastTS = time.Unix(0, last).UTC()
	}
	msg.Timestamp = nextTimestamp(s.now(), lastTS)

	_, err = s.db.ExecContext(ctx, `INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Kind), msg.Content, msg.Timestamp.UnixNano(), msg.Sender, msg.SenderName,
		msg.IsPlaceholder, msg.IsSuppressed, msg.CorrelationID, string(msg.InterventionReason))
	s.mu.Unlock()
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}

	s.broker.publish(msg)
	return msg, nil
}

func (s *SQLiteStore) Update(ctx context.Context, conversationID, messageID string, patch model.MessagePatch) (model.Message, error) {
	defer observe("sqlite", "update", time.Now())

	current, err := s.Get(ctx, conversationID, messageID)
	if err != nil {
		return model.Message{}, err
	}
	updated := patch.Apply(current)

	_, err = s.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, is_typing = ?, is_hidden = ? WHERE conversation_id = ? AND id = ?`,
		updated.Content, updated.IsPlaceholder, updated.IsSuppressed, conversationID, messageID)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to update message: %w", err)
	}

	s.broker.publish(updated)
	return updated, nil
}

func (s *SQLiteStore) Get(ctx context.Context, conversationID, messageID string) (model.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND id = ?`, conversationID, messageID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to load message: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) QueryRecent(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	defer observe("sqlite", "query_recent", time.Now())
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_id = ? AND is_hidden = 0
		 ORDER BY seq DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func (s *SQLiteStore) Subscribe(ctx context.Context, conversationID string, onChange func(model.Message)) (func(), error) {
	return s.broker.subscribe(ctx, conversationID, onChange), nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, c model.Conversation) (model.Conversation, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	if c.CreatedBy != "" && !c.HasMember(c.CreatedBy) {
		c.Members = append([]string{c.CreatedBy}, c.Members...)
	}

	participants, err := json.Marshal(c.AIParticipants)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to encode participants: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, created_by, creator_name, created_at, open, join_key_hash, ai_participants)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CreatedBy, c.CreatorName, c.CreatedAt.UnixNano(), c.Open, c.JoinKeyHash, string(participants))
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to insert conversation: %w", err)
	}
	for _, member := range c.Members {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO conversation_members (conversation_id, user_id, joined_at) VALUES (?, ?, ?)`,
			c.ID, member, c.CreatedAt.UnixNano()); err != nil {
			return model.Conversation{}, fmt.Errorf("failed to insert member: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Conversation{}, fmt.Errorf("failed to commit conversation: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	var (
		c            model.Conversation
		createdAt    int64
		participants string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_by, creator_name, created_at, open, join_key_hash, ai_participants
		 FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.CreatedBy, &c.CreatorName, &createdAt, &c.Open, &c.JoinKeyHash, &participants)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to load conversation: %w", err)
	}
	c.CreatedAt = time.Unix(0, createdAt).UTC()
	if err := json.Unmarshal([]byte(participants), &c.AIParticipants); err != nil {
		return model.Conversation{}, fmt.Errorf("failed to decode participants: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM conversation_members WHERE conversation_id = ? ORDER BY joined_at, user_id`, id)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to load members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return model.Conversation{}, err
		}
		c.Members = append(c.Members, member)
	}
	return c, rows.Err()
}

func (s *SQLiteStore) AddMember(ctx context.Context, id, userID string) error {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check conversation: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversation_members (conversation_id, user_id, joined_at) VALUES (?, ?, ?)`,
		id, userID, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetParticipants(ctx context.Context, id string) ([]model.AIParticipant, error) {
	c, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.AIParticipants, nil
}

const jobColumns = `id, conversation_id, role, prompt, requested_by, status, response, error_code, error, created_at, processed_at`

func scanJob(row interface{ Scan(...any) error }) (model.GenerationJob, error) {
	var (
		j                      model.GenerationJob
		role, status           string
		createdAt, processedAt int64
	)
	err := row.Scan(&j.ID, &j.ConversationID, &role, &j.Prompt, &j.RequestedBy, &status,
		&j.Response, &j.ErrorCode, &j.Error, &createdAt, &processedAt)
	if err != nil {
		return model.GenerationJob{}, err
	}
	j.Role = model.Role(role)
	j.Status = model.JobStatus(status)
	j.CreatedAt = time.Unix(0, createdAt).UTC()
	if processedAt > 0 {
		j.ProcessedAt = time.Unix(0, processedAt).UTC()
	}
	return j, nil
}

func (s *SQLiteStore) EnqueueJob(ctx context.Context, job model.GenerationJob) (model.GenerationJob, error) {
	job = prepareJob(job, s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generation_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		job.ID, job.ConversationID, string(job.Role), job.Prompt, job.RequestedBy, string(job.Status),
		job.Response, job.ErrorCode, job.Error, job.CreatedAt.UnixNano())
	if err != nil {
		return model.GenerationJob{}, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (model.GenerationJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.GenerationJob{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.GenerationJob{}, fmt.Errorf("failed to load job: %w", err)
	}
	return j, nil
}

func (s *SQLiteStore) ClaimJob(ctx context.Context, id string) (model.GenerationJob, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE generation_jobs SET status = ? WHERE id = ? AND status = ?`,
		string(model.JobProcessing), id, string(model.JobPending))
	if err != nil {
		return model.GenerationJob{}, false, fmt.Errorf("failed to claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.GenerationJob{}, false, err
	}
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return model.GenerationJob{}, false, err
	}
	return job, n == 1, nil
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, job model.GenerationJob) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE generation_jobs SET status = ?, response = ?, error_code = ?, error = ?, processed_at = ? WHERE id = ?`,
		string(job.Status), job.Response, job.ErrorCode, job.Error, s.now().UnixNano(), job.ID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", job.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) PendingJobs(ctx context.Context, limit int) ([]model.GenerationJob, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE status = ? ORDER BY created_at, id LIMIT ?`,
		string(model.JobPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	defer rows.Close()

	var out []model.GenerationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
