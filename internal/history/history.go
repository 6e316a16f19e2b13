// Package history provides SQLite-based persistence for chat turns.
// The database is opened lazily and created on first use. If opening the DB
// or executing queries fails, the package falls back to in-memory storage so
// a broken disk never breaks the conversation.
package history

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/aaronba/SimpleChatAgent/internal/logger"
)

// Message roles stored per turn.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Message is one side of a chat turn within a conversation.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store records conversation transcripts.
type Store struct {
	dbPath string

	mu       sync.Mutex
	messages []Message // in-memory fallback

	dbOnce  sync.Once
	db      *sql.DB
	initErr error
}

// NewStore creates a store backed by the SQLite file at dbPath. The file is
// not touched until the first Save or List.
func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

func (s *Store) initDB() {
	var err error
	s.db, err = sql.Open("sqlite", "file:"+s.dbPath+"?_busy_timeout=10000&_fk=1")
	if err != nil {
		s.initErr = err
		logger.L.Warn("sqlite open failed; using in-memory history", "error", err)
		return
	}
	if _, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS turns (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        conversation_id TEXT,
        role TEXT,
        content TEXT,
        created_at DATETIME
    );`); err != nil {
		s.initErr = err
		logger.L.Warn("sqlite table creation failed; using in-memory history", "error", err)
		return
	}
	logger.L.Info("sqlite history DB initialized", "path", s.dbPath)
}

// Save persists a message to the SQLite database when available and always
// keeps an in-memory copy as fallback.
func (s *Store) Save(msg Message) {
	s.dbOnce.Do(s.initDB)

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	if s.initErr == nil && s.db != nil {
		_, err := s.db.Exec(`INSERT INTO turns (conversation_id, role, content, created_at) VALUES (?,?,?,?);`,
			msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt)
		if err != nil {
			logger.L.Error("failed to store message in sqlite; falling back to memory", "error", err)
		}
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

// List returns all messages of a conversation in chronological order.
func (s *Store) List(conversationID string) []Message {
	s.dbOnce.Do(s.initDB)

	var out []Message
	if s.initErr == nil && s.db != nil {
		rows, err := s.db.Query(`SELECT id, conversation_id, role, content, created_at FROM turns WHERE conversation_id = ? ORDER BY id ASC;`, conversationID)
		if err == nil {
			defer rows.Close()
			for rows.Next() {
				var m Message
				if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err == nil {
					out = append(out, m)
				}
			}
			return out
		}
		logger.L.Warn("sqlite query failed; reading in-memory history", "error", err)
	}

	s.mu.Lock()
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	s.mu.Unlock()
	return out
}
