package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/fajrul/kontext/internal/observability"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// Store persists indexed artifacts, conversations and the vector index.
// Every operation is best-effort: failures are logged and surface as a
// false success flag or an empty collection, never as an error.
type Store struct {
	db        *sql.DB
	logger    zerolog.Logger
	dimension int
}

// Config holds store configuration
type Config struct {
	DBPath    string
	Dimension int
	Logger    zerolog.Logger
}

// New creates a new store
func New(cfg Config) (*Store, error) {
	observability.EnsureRegistered()

	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("vector dimension must be positive")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{
		db:        db,
		logger:    cfg.Logger,
		dimension: cfg.Dimension,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := s.initVectorIndex(cfg.DBPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}

	s.logger.Info().Str("db", cfg.DBPath).Int("dimension", cfg.Dimension).Msg("Store initialized")
	return s, nil
}

// initSchema creates the relational tables
func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			model_id TEXT,
			system_prompt TEXT,
			temperature REAL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp);

		CREATE TABLE IF NOT EXISTS context_items (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			path TEXT,
			language TEXT,
			content TEXT NOT NULL,
			line_start INTEGER,
			line_end INTEGER,
			size INTEGER NOT NULL,
			last_accessed INTEGER NOT NULL,
			importance_score REAL NOT NULL,
			vector_id INTEGER,
			metadata TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_items_path ON context_items(path);
		CREATE INDEX IF NOT EXISTS idx_items_vector ON context_items(vector_id);

		CREATE TABLE IF NOT EXISTS code_entities (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			file_path TEXT NOT NULL,
			code TEXT NOT NULL,
			first_seen INTEGER NOT NULL,
			last_seen INTEGER NOT NULL,
			frequency INTEGER NOT NULL DEFAULT 1,
			vector_id INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_entities_name ON code_entities(name);
		CREATE INDEX IF NOT EXISTS idx_entities_file ON code_entities(file_path);
		CREATE INDEX IF NOT EXISTS idx_entities_vector ON code_entities(vector_id);

		CREATE TABLE IF NOT EXISTS user_patterns (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			pattern TEXT NOT NULL,
			examples TEXT,
			frequency INTEGER NOT NULL DEFAULT 1,
			first_seen INTEGER NOT NULL,
			last_seen INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS vector_meta (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			ref_id TEXT NOT NULL,
			meta TEXT,
			UNIQUE(kind, ref_id)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveContextItem upserts a context item keyed by id.
func (s *Store) SaveContextItem(item ContextItem) bool {
	if item.ID == "" {
		s.logger.Warn().Msg("Context item without id, skipping save")
		return false
	}

	var metaJSON any
	if item.Metadata != nil {
		raw, err := EncodeMeta(item.Metadata)
		if err != nil {
			s.logger.Warn().Err(err).Str("item", item.ID).Msg("Failed to encode item metadata")
		} else {
			metaJSON = string(raw)
		}
	}

	lastAccessed := item.LastAccessed
	if lastAccessed.IsZero() {
		lastAccessed = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO context_items
			(id, type, name, path, language, content, line_start, line_end, size, last_accessed, importance_score, vector_id, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			path = excluded.path,
			language = excluded.language,
			content = excluded.content,
			line_start = excluded.line_start,
			line_end = excluded.line_end,
			size = excluded.size,
			last_accessed = excluded.last_accessed,
			importance_score = excluded.importance_score,
			vector_id = COALESCE(excluded.vector_id, context_items.vector_id),
			metadata = COALESCE(excluded.metadata, context_items.metadata)
	`,
		item.ID, item.Type, item.Name, nullStr(item.Path), nullStr(item.Language),
		item.Content, item.LineStart, item.LineEnd, item.Size,
		lastAccessed.Unix(), item.ImportanceScore, item.VectorID, metaJSON,
	)
	if err != nil {
		s.logger.Warn().Err(err).Str("item", item.ID).Msg("Failed to save context item")
		return false
	}

	return true
}

// SaveCodeEntity upserts a code entity. Re-sighting an entity increments its
// frequency and refreshes last_seen instead of creating a duplicate row.
func (s *Store) SaveCodeEntity(entity CodeEntity) bool {
	if entity.ID == "" {
		s.logger.Warn().Msg("Code entity without id, skipping save")
		return false
	}

	_, err := s.db.Exec(`
		INSERT INTO code_entities
			(id, name, type, file_path, code, first_seen, last_seen, frequency, vector_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			last_seen = ?,
			frequency = code_entities.frequency + 1,
			vector_id = COALESCE(excluded.vector_id, code_entities.vector_id)
	`,
		entity.ID, entity.Name, entity.Type, entity.FilePath, entity.Code,
		entity.FirstSeen, entity.LastSeen, entity.VectorID,
		time.Now().Unix(),
	)
	if err != nil {
		s.logger.Warn().Err(err).Str("entity", entity.ID).Msg("Failed to save code entity")
		return false
	}

	return true
}

// SaveConversation upserts a conversation and replaces its message rows.
func (s *Store) SaveConversation(conv Conversation) bool {
	if conv.ID == "" {
		s.logger.Warn().Msg("Conversation without id, skipping save")
		return false
	}

	start := time.Now()
	defer func() {
		observability.RecordConversationSave(time.Since(start))
	}()

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Warn().Err(err).Str("conversation", conv.ID).Msg("Failed to begin transaction")
		return false
	}
	defer tx.Rollback()

	createdAt := conv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := conv.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = tx.Exec(`
		INSERT INTO conversations (id, title, created_at, updated_at, model_id, system_prompt, temperature)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at,
			model_id = excluded.model_id,
			system_prompt = excluded.system_prompt,
			temperature = excluded.temperature
	`,
		conv.ID, conv.Title, createdAt.Unix(), updatedAt.Unix(),
		nullStr(conv.ModelID), nullStr(conv.SystemPrompt), conv.Temperature,
	)
	if err != nil {
		s.logger.Warn().Err(err).Str("conversation", conv.ID).Msg("Failed to save conversation")
		return false
	}

	// Pruning rewrites the retained set, so messages are replaced wholesale.
	if _, err := tx.Exec("DELETE FROM messages WHERE conversation_id = ?", conv.ID); err != nil {
		s.logger.Warn().Err(err).Str("conversation", conv.ID).Msg("Failed to clear messages")
		return false
	}

	for _, msg := range conv.Messages {
		_, err := tx.Exec(`
			INSERT INTO messages (id, conversation_id, role, content, timestamp)
			VALUES (?, ?, ?, ?, ?)
		`, msg.ID, conv.ID, msg.Role, msg.Content, msg.Timestamp.Unix())
		if err != nil {
			s.logger.Warn().Err(err).Str("conversation", conv.ID).Str("message", msg.ID).Msg("Failed to save message")
			return false
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Warn().Err(err).Str("conversation", conv.ID).Msg("Failed to commit conversation")
		return false
	}

	return true
}

// LoadConversations loads all conversations with their messages in append order.
func (s *Store) LoadConversations() []Conversation {
	rows, err := s.db.Query(`
		SELECT id, title, created_at, updated_at,
			COALESCE(model_id, ''), COALESCE(system_prompt, ''), COALESCE(temperature, 0)
		FROM conversations
		ORDER BY updated_at DESC
	`)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load conversations")
		return []Conversation{}
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var conv Conversation
		var createdAt, updatedAt int64
		if err := rows.Scan(&conv.ID, &conv.Title, &createdAt, &updatedAt,
			&conv.ModelID, &conv.SystemPrompt, &conv.Temperature); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to scan conversation")
			continue
		}
		conv.CreatedAt = time.Unix(createdAt, 0)
		conv.UpdatedAt = time.Unix(updatedAt, 0)
		conv.Messages = s.loadMessages(conv.ID)
		conversations = append(conversations, conv)
	}

	observability.SetActiveConversations(len(conversations))
	return conversations
}

func (s *Store) loadMessages(conversationID string) []ConversationMessage {
	rows, err := s.db.Query(`
		SELECT id, role, content, timestamp
		FROM messages
		WHERE conversation_id = ?
		ORDER BY rowid ASC
	`, conversationID)
	if err != nil {
		s.logger.Warn().Err(err).Str("conversation", conversationID).Msg("Failed to load messages")
		return []ConversationMessage{}
	}
	defer rows.Close()

	var messages []ConversationMessage
	for rows.Next() {
		var msg ConversationMessage
		var ts int64
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &ts); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to scan message")
			continue
		}
		msg.Timestamp = time.Unix(ts, 0)
		messages = append(messages, msg)
	}

	return messages
}

// FindContextItems returns items whose path matches the SQL LIKE pattern.
func (s *Store) FindContextItems(pathPattern string, limit int) []ContextItem {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, type, name, COALESCE(path, ''), COALESCE(language, ''), content,
			COALESCE(line_start, 0), COALESCE(line_end, 0), size, last_accessed,
			importance_score, vector_id, metadata
		FROM context_items
		WHERE path LIKE ?
		ORDER BY last_accessed DESC
		LIMIT ?
	`, pathPattern, limit)
	if err != nil {
		s.logger.Warn().Err(err).Str("pattern", pathPattern).Msg("Failed to find context items")
		return []ContextItem{}
	}
	defer rows.Close()

	return s.scanItems(rows)
}

// GetContextItem loads a single item by id.
func (s *Store) GetContextItem(id string) (ContextItem, bool) {
	rows, err := s.db.Query(`
		SELECT id, type, name, COALESCE(path, ''), COALESCE(language, ''), content,
			COALESCE(line_start, 0), COALESCE(line_end, 0), size, last_accessed,
			importance_score, vector_id, metadata
		FROM context_items
		WHERE id = ?
	`, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("item", id).Msg("Failed to get context item")
		return ContextItem{}, false
	}
	defer rows.Close()

	items := s.scanItems(rows)
	if len(items) == 0 {
		return ContextItem{}, false
	}
	return items[0], true
}

func (s *Store) scanItems(rows *sql.Rows) []ContextItem {
	var items []ContextItem
	for rows.Next() {
		var item ContextItem
		var lastAccessed int64
		var vectorID sql.NullInt64
		var metaRaw sql.NullString
		if err := rows.Scan(&item.ID, &item.Type, &item.Name, &item.Path, &item.Language,
			&item.Content, &item.LineStart, &item.LineEnd, &item.Size, &lastAccessed,
			&item.ImportanceScore, &vectorID, &metaRaw); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to scan context item")
			continue
		}
		item.LastAccessed = time.Unix(lastAccessed, 0)
		if vectorID.Valid {
			id := vectorID.Int64
			item.VectorID = &id
		}
		if metaRaw.Valid && metaRaw.String != "" {
			meta, err := DecodeMeta([]byte(metaRaw.String))
			if err != nil {
				s.logger.Warn().Err(err).Str("item", item.ID).Msg("Failed to decode item metadata")
			} else {
				item.Metadata = meta
			}
		}
		items = append(items, item)
	}
	if items == nil {
		return []ContextItem{}
	}
	return items
}

// FindCodeEntities returns entities whose name matches the SQL LIKE pattern,
// most frequently sighted first.
func (s *Store) FindCodeEntities(namePattern string, limit int) []CodeEntity {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, name, type, file_path, code, first_seen, last_seen, frequency, vector_id
		FROM code_entities
		WHERE name LIKE ?
		ORDER BY frequency DESC, last_seen DESC
		LIMIT ?
	`, namePattern, limit)
	if err != nil {
		s.logger.Warn().Err(err).Str("pattern", namePattern).Msg("Failed to find code entities")
		return []CodeEntity{}
	}
	defer rows.Close()

	var entities []CodeEntity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to scan code entity")
			continue
		}
		entities = append(entities, entity)
	}
	if entities == nil {
		return []CodeEntity{}
	}
	return entities
}

// GetCodeEntity loads a single entity by id.
func (s *Store) GetCodeEntity(id string) (CodeEntity, bool) {
	rows, err := s.db.Query(`
		SELECT id, name, type, file_path, code, first_seen, last_seen, frequency, vector_id
		FROM code_entities
		WHERE id = ?
	`, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("entity", id).Msg("Failed to get code entity")
		return CodeEntity{}, false
	}
	defer rows.Close()

	if !rows.Next() {
		return CodeEntity{}, false
	}
	entity, err := scanEntity(rows)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to scan code entity")
		return CodeEntity{}, false
	}
	return entity, true
}

func scanEntity(rows *sql.Rows) (CodeEntity, error) {
	var entity CodeEntity
	var vectorID sql.NullInt64
	err := rows.Scan(&entity.ID, &entity.Name, &entity.Type, &entity.FilePath,
		&entity.Code, &entity.FirstSeen, &entity.LastSeen, &entity.Frequency, &vectorID)
	if err != nil {
		return CodeEntity{}, err
	}
	if vectorID.Valid {
		id := vectorID.Int64
		entity.VectorID = &id
	}
	return entity, nil
}

// DeleteFileArtifacts removes the item, entities and vectors for a deleted file.
func (s *Store) DeleteFileArtifacts(itemID, path string) bool {
	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Failed to begin delete transaction")
		return false
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT vector_id FROM context_items WHERE id = ? AND vector_id IS NOT NULL
		UNION
		SELECT vector_id FROM code_entities WHERE file_path = ? AND vector_id IS NOT NULL
	`, itemID, path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Failed to collect vector ids for delete")
		return false
	}
	var vectorIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err == nil {
			vectorIDs = append(vectorIDs, id)
		}
	}
	rows.Close()

	for _, id := range vectorIDs {
		if _, err := tx.Exec("DELETE FROM vectors WHERE rowid = ?", id); err != nil {
			s.logger.Warn().Err(err).Int64("vector", id).Msg("Failed to delete vector")
		}
		if _, err := tx.Exec("DELETE FROM vector_meta WHERE id = ?", id); err != nil {
			s.logger.Warn().Err(err).Int64("vector", id).Msg("Failed to delete vector meta")
		}
	}

	if _, err := tx.Exec("DELETE FROM context_items WHERE id = ?", itemID); err != nil {
		s.logger.Warn().Err(err).Str("item", itemID).Msg("Failed to delete context item")
		return false
	}
	if _, err := tx.Exec("DELETE FROM code_entities WHERE file_path = ?", path); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Failed to delete code entities")
		return false
	}

	if err := tx.Commit(); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Failed to commit file delete")
		return false
	}

	return true
}

// TrackUsage upserts a user pattern, incrementing frequency on repeats.
func (s *Store) TrackUsage(pattern UsagePattern) bool {
	if pattern.ID == "" {
		return false
	}

	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO user_patterns (id, type, pattern, examples, frequency, first_seen, last_seen)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			examples = excluded.examples,
			frequency = user_patterns.frequency + 1,
			last_seen = excluded.last_seen
	`, pattern.ID, pattern.Type, pattern.Pattern, pattern.Examples, now, now)
	if err != nil {
		s.logger.Warn().Err(err).Str("pattern", pattern.ID).Msg("Failed to track usage pattern")
		return false
	}

	return true
}

// Counts returns item, entity and conversation totals for status reporting.
func (s *Store) Counts() (items, entities, conversations int) {
	s.db.QueryRow("SELECT COUNT(*) FROM context_items").Scan(&items)
	s.db.QueryRow("SELECT COUNT(*) FROM code_entities").Scan(&entities)
	s.db.QueryRow("SELECT COUNT(*) FROM conversations").Scan(&conversations)
	observability.SetContextItems(items)
	return items, entities, conversations
}

// HasItem reports whether an item id is already indexed.
func (s *Store) HasItem(id string) bool {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM context_items WHERE id = ?", id).Scan(&one)
	return err == nil
}

// Close closes the store
func (s *Store) Close() error {
	s.logger.Info().Msg("Closing store")
	return s.db.Close()
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
