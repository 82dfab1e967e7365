package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pkg/errors"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err = db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL,
        email TEXT NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS tokens (
        key TEXT PRIMARY KEY,
        user_id INTEGER UNIQUE NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        title TEXT,
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        conversation_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        model TEXT,
        temperature REAL,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) CreateUser(username, email, passwordHash string) (*User, error) {
	res, err := s.db.Exec("INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)", username, email, passwordHash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert user")
	}
	id, _ := res.LastInsertId()
	return s.GetUserByID(id)
}

func (s *SQLiteStore) GetUserByUsername(username string) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?", username).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, errors.Wrap(err, "failed to query user")
	}
	return &user, nil
}

func (s *SQLiteStore) GetUserByID(id int64) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, username, email, password_hash, created_at FROM users WHERE id = ?", id).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user by id")
	}
	return &user, nil
}

// Token methods

func (s *SQLiteStore) CreateToken(key string, userID int64) error {
	_, err := s.db.Exec("INSERT INTO tokens (key, user_id) VALUES (?, ?)", key, userID)
	if err != nil {
		return errors.Wrap(err, "failed to insert token")
	}
	return nil
}

// GetUserByToken resolves a bearer token key to its user in one query.
func (s *SQLiteStore) GetUserByToken(key string) (*User, error) {
	var user User
	err := s.db.QueryRow(`
        SELECT u.id, u.username, u.email, u.password_hash, u.created_at
        FROM users u
        JOIN tokens t ON u.id = t.user_id
        WHERE t.key = ?`, key).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Token not found
		}
		return nil, errors.Wrap(err, "failed to query token")
	}
	return &user, nil
}

// GetTokenByUserID returns the user's token key, or "" when none exists.
func (s *SQLiteStore) GetTokenByUserID(userID int64) (string, error) {
	var key string
	err := s.db.QueryRow("SELECT key FROM tokens WHERE user_id = ?", userID).Scan(&key)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", errors.Wrap(err, "failed to query token by user id")
	}
	return key, nil
}

// DeleteToken removes a token key. The boolean reports whether a token
// was actually deleted.
func (s *SQLiteStore) DeleteToken(key string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM tokens WHERE key = ?", key)
	if err != nil {
		return false, errors.Wrap(err, "failed to delete token")
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// Conversation methods

func (s *SQLiteStore) CreateConversation(userID int64, title *string) (*Conversation, error) {
	conversationID := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.Exec("INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		conversationID, userID, title, now, now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert conversation")
	}
	return &Conversation{ID: conversationID, UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// GetConversationByID fetches a conversation regardless of owner. The
// caller decides whether the requesting user may see it, so that a
// missing conversation and a foreign one stay distinguishable in logs.
func (s *SQLiteStore) GetConversationByID(conversationID string) (*Conversation, error) {
	var conv Conversation
	var title sql.NullString
	err := s.db.QueryRow("SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = ?", conversationID).
		Scan(&conv.ID, &conv.UserID, &title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, errors.Wrap(err, "failed to get conversation")
	}
	if title.Valid {
		conv.Title = &title.String
	}
	return &conv, nil
}

func (s *SQLiteStore) GetConversationsByUserID(userID int64) ([]Conversation, error) {
	rows, err := s.db.Query("SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE user_id = ? ORDER BY updated_at DESC", userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query conversations")
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var conv Conversation
		var title sql.NullString
		if err := rows.Scan(&conv.ID, &conv.UserID, &title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation row")
		}
		if title.Valid {
			conv.Title = &title.String
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (s *SQLiteStore) UpdateConversationTitle(conversationID string, title string) error {
	res, err := s.db.Exec("UPDATE conversations SET title = ? WHERE id = ?", title, conversationID)
	if err != nil {
		return errors.Wrap(err, "failed to update conversation title")
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.New("conversation not found, title not updated")
	}
	return nil
}

// TouchConversation bumps updated_at so the listing order reflects the
// most recently active conversation first.
func (s *SQLiteStore) TouchConversation(conversationID string) error {
	_, err := s.db.Exec("UPDATE conversations SET updated_at = ? WHERE id = ?", time.Now().UTC(), conversationID)
	if err != nil {
		return errors.Wrap(err, "failed to touch conversation")
	}
	return nil
}

// DeleteConversation removes a conversation and all of its messages in
// a single transaction so a failure cannot leave orphaned messages.
func (s *SQLiteStore) DeleteConversation(conversationID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if _, err := tx.Exec("DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "failed to delete messages")
	}
	if _, err := tx.Exec("DELETE FROM conversations WHERE id = ?", conversationID); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "failed to delete conversation")
	}

	return errors.Wrap(tx.Commit(), "failed to commit conversation delete")
}

// Message methods

// CreateMessage assigns the message its UUID and creation timestamp.
// Messages are immutable once inserted.
func (s *SQLiteStore) CreateMessage(msg *Message) error {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec("INSERT INTO messages (id, conversation_id, role, content, created_at, model, temperature) VALUES (?, ?, ?, ?, ?, ?, ?)",
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt, msg.Model, msg.Temperature)
	if err != nil {
		return errors.Wrap(err, "failed to insert message")
	}
	return nil
}

// GetMessagesByConversationID returns the canonical history: every
// message of the conversation, oldest first.
func (s *SQLiteStore) GetMessagesByConversationID(conversationID string) ([]Message, error) {
	rows, err := s.db.Query("SELECT id, conversation_id, role, content, created_at, model, temperature FROM messages WHERE conversation_id = ? ORDER BY created_at ASC", conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query messages")
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var model sql.NullString
		var temperature sql.NullFloat64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt, &model, &temperature); err != nil {
			return nil, errors.Wrap(err, "failed to scan message row")
		}
		if model.Valid {
			msg.Model = &model.String
		}
		if temperature.Valid {
			msg.Temperature = &temperature.Float64
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
