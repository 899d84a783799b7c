// Package chatstore persists the chat-log corpus in SQLite and serves the
// retrieval queries behind the agent's tools: recency, date, keyword (FTS5)
// and semantic (sqlite-vec) lookups.
package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// Message is one chat-log entry.
type Message struct {
	ID        string    `json:"id"`
	ChatKey   string    `json:"chat_key"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SemanticResult is a message with a similarity score in [0, 1].
type SemanticResult struct {
	Message
	Score float64 `json:"score"`
}

// Window restricts queries to a time range. Zero values mean unbounded.
type Window struct {
	Start time.Time
	End   time.Time
}

// Stats summarizes one chat corpus.
type Stats struct {
	TotalMessages int            `json:"total_messages"`
	BySender      map[string]int `json:"by_sender"`
	FirstMessage  *time.Time     `json:"first_message,omitempty"`
	LastMessage   *time.Time     `json:"last_message,omitempty"`
}

// Config holds store configuration.
type Config struct {
	DBPath     string
	Logger     zerolog.Logger
	Embeddings EmbeddingProvider // optional, nil disables semantic search
}

// Store handles corpus persistence and retrieval.
type Store struct {
	db         *sql.DB
	logger     zerolog.Logger
	embeddings EmbeddingProvider

	mu      sync.RWMutex
	isDirty bool
}

// New opens (or creates) a chat store.
func New(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_fts5=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:         db,
		logger:     cfg.Logger,
		embeddings: cfg.Embeddings,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("db", cfg.DBPath).Msg("Chat store opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_key TEXT NOT NULL,
			sender TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_chat_time ON messages(chat_key, created_at);

		CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
			message_id UNINDEXED,
			content,
			tokenize='unicode61'
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if s.embeddings != nil {
		vectorSchema := fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS message_embeddings USING vec0(
				message_id TEXT PRIMARY KEY,
				embedding float[%d] distance_metric=cosine
			);
		`, s.embeddings.Dimension())

		if _, err := s.db.Exec(vectorSchema); err != nil {
			return fmt.Errorf("failed to create vector table: %w", err)
		}
	}

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// MarkDirty flags the corpus for re-sync (new export files arrived).
func (s *Store) MarkDirty() {
	s.mu.Lock()
	s.isDirty = true
	s.mu.Unlock()
}

// IsDirty reports whether the corpus has unsynced changes.
func (s *Store) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isDirty
}

// Append inserts one message. An empty ID is filled with a generated one.
func (s *Store) Append(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate message id: %w", err)
		}
		msg.ID = id
	}
	if msg.ChatKey == "" {
		return fmt.Errorf("chat key is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, chat_key, sender, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ChatKey, msg.Sender, msg.Content, msg.Timestamp.Unix(),
	); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages_fts (message_id, content) VALUES (?, ?)`,
		msg.ID, msg.Content,
	); err != nil {
		return fmt.Errorf("failed to index message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.MarkDirty()
	return nil
}

// exportEntry is one record of a chat export file.
type exportEntry struct {
	ID        string `json:"id,omitempty"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"` // RFC3339
}

// ImportFile loads a JSON export (array of {sender, content, timestamp})
// into the corpus under chatKey. Existing ids are skipped. Returns the
// number of messages imported.
func (s *Store) ImportFile(ctx context.Context, chatKey, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read export file: %w", err)
	}

	var entries []exportEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("failed to parse export file: %w", err)
	}

	imported := 0
	for i, entry := range entries {
		if strings.TrimSpace(entry.Content) == "" {
			continue
		}

		ts, err := time.Parse(time.RFC3339, entry.Timestamp)
		if err != nil {
			s.logger.Warn().Int("index", i).Str("timestamp", entry.Timestamp).Msg("Skipping entry with bad timestamp")
			continue
		}

		msg := Message{
			ID:        entry.ID,
			ChatKey:   chatKey,
			Sender:    entry.Sender,
			Content:   entry.Content,
			Timestamp: ts,
		}

		if msg.ID != "" {
			var exists int
			if err := s.db.QueryRowContext(ctx,
				`SELECT COUNT(1) FROM messages WHERE id = ?`, msg.ID,
			).Scan(&exists); err == nil && exists > 0 {
				continue
			}
		}

		if err := s.Append(ctx, msg); err != nil {
			return imported, err
		}
		imported++
	}

	s.logger.Info().
		Str("chat_key", chatKey).
		Str("file", path).
		Int("imported", imported).
		Msg("Chat export imported")

	return imported, nil
}

// Recent returns the newest messages for a chat, oldest first, optionally
// restricted to a time window.
func (s *Store) Recent(ctx context.Context, chatKey string, limit int, win *Window) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, chat_key, sender, content, created_at FROM messages WHERE chat_key = ?`
	args := []interface{}{chatKey}
	query, args = appendWindow(query, args, win)
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	msgs, err := s.queryMessages(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ByDate returns messages for one calendar day (local time of loc).
func (s *Store) ByDate(ctx context.Context, chatKey string, day time.Time, limit int) ([]Message, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)
	return s.Recent(ctx, chatKey, limit, &Window{Start: start, End: end})
}

// SearchKeyword performs an FTS5 keyword search scoped to a chat.
func (s *Store) SearchKeyword(ctx context.Context, chatKey, query string, limit int, win *Window) ([]Message, error) {
	if strings.TrimSpace(query) == "" {
		return []Message{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	sqlQuery := `
		SELECT m.id, m.chat_key, m.sender, m.content, m.created_at
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.message_id
		WHERE messages_fts MATCH ? AND m.chat_key = ?`
	args := []interface{}{ftsQuote(query), chatKey}
	sqlQuery, args = appendWindowAliased(sqlQuery, args, win, "m")
	sqlQuery += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	return s.queryMessages(ctx, sqlQuery, args...)
}

// SemanticSearch embeds the query and returns the topK most similar
// messages out of a candidateLimit-sized nearest-neighbor pool.
func (s *Store) SemanticSearch(ctx context.Context, chatKey, query string, topK, candidateLimit int) ([]SemanticResult, error) {
	if s.embeddings == nil {
		return nil, fmt.Errorf("semantic search unavailable: no embedding provider configured")
	}
	if strings.TrimSpace(query) == "" {
		return []SemanticResult{}, nil
	}
	if topK <= 0 {
		topK = 5
	}
	if candidateLimit < topK {
		candidateLimit = topK
	}

	embedding, err := s.embeddings.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.chat_key, m.sender, m.content, m.created_at,
		       vec_distance_cosine(e.embedding, ?) AS distance
		FROM message_embeddings e
		JOIN messages m ON m.id = e.message_id
		WHERE m.chat_key = ?
		ORDER BY distance ASC
		LIMIT ?`,
		string(embeddingJSON), chatKey, candidateLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	results := []SemanticResult{}
	for rows.Next() {
		var r SemanticResult
		var createdAt int64
		var distance float64
		if err := rows.Scan(&r.ID, &r.ChatKey, &r.Sender, &r.Content, &createdAt, &distance); err != nil {
			return nil, err
		}
		r.Timestamp = time.Unix(createdAt, 0)
		r.Score = 1 - distance
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// SyncEmbeddings embeds messages that have no vector yet, in batches.
// Returns how many messages were embedded.
func (s *Store) SyncEmbeddings(ctx context.Context, batchSize int) (int, error) {
	if s.embeddings == nil {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 64
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.content
		FROM messages m
		LEFT JOIN message_embeddings e ON e.message_id = m.id
		WHERE e.message_id IS NULL
		LIMIT ?`, batchSize,
	)
	if err != nil {
		return 0, err
	}

	ids := []string{}
	texts := []string{}
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
		texts = append(texts, content)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		s.mu.Lock()
		s.isDirty = false
		s.mu.Unlock()
		return 0, nil
	}

	vectors, err := s.embeddings.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(ids) {
		return 0, fmt.Errorf("embedding count mismatch: got %d for %d messages", len(vectors), len(ids))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for i, id := range ids {
		vecJSON, err := json.Marshal(vectors[i])
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO message_embeddings (message_id, embedding) VALUES (?, ?)`,
			id, string(vecJSON),
		); err != nil {
			return 0, fmt.Errorf("failed to store embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	s.logger.Debug().Int("embedded", len(ids)).Msg("Embedding sync batch completed")
	return len(ids), nil
}

// ChatStats aggregates message counts for one chat.
func (s *Store) ChatStats(ctx context.Context, chatKey string, win *Window) (*Stats, error) {
	query := `SELECT sender, COUNT(*), MIN(created_at), MAX(created_at) FROM messages WHERE chat_key = ?`
	args := []interface{}{chatKey}
	query, args = appendWindow(query, args, win)
	query += ` GROUP BY sender`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &Stats{BySender: map[string]int{}}
	var minTs, maxTs int64

	for rows.Next() {
		var sender string
		var count int
		var first, last int64
		if err := rows.Scan(&sender, &count, &first, &last); err != nil {
			return nil, err
		}
		stats.BySender[sender] = count
		stats.TotalMessages += count
		if minTs == 0 || first < minTs {
			minTs = first
		}
		if last > maxTs {
			maxTs = last
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.TotalMessages > 0 {
		first := time.Unix(minTs, 0)
		last := time.Unix(maxTs, 0)
		stats.FirstMessage = &first
		stats.LastMessage = &last
	}
	return stats, nil
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...interface{}) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.ChatKey, &m.Sender, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.Timestamp = time.Unix(createdAt, 0)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func appendWindow(query string, args []interface{}, win *Window) (string, []interface{}) {
	return appendWindowAliased(query, args, win, "")
}

func appendWindowAliased(query string, args []interface{}, win *Window, alias string) (string, []interface{}) {
	if win == nil {
		return query, args
	}
	col := "created_at"
	if alias != "" {
		col = alias + ".created_at"
	}
	if !win.Start.IsZero() {
		query += fmt.Sprintf(" AND %s >= ?", col)
		args = append(args, win.Start.Unix())
	}
	if !win.End.IsZero() {
		query += fmt.Sprintf(" AND %s < ?", col)
		args = append(args, win.End.Unix())
	}
	return query, args
}

// ftsQuote wraps the query in double quotes so FTS5 treats it as a phrase
// and user punctuation cannot break query syntax.
func ftsQuote(query string) string {
	return `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
}
