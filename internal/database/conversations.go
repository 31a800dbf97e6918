package database

import (
	"database/sql"
	"fmt"
)

// GetSessionID retrieves the agent session token associated with a chat.
// Returns an empty string when the chat has no session yet.
func (d *DB) GetSessionID(chatID string) (string, error) {
	var sessionID string
	err := d.QueryRow(`
		SELECT session_id FROM conversations WHERE chat_id = ?
	`, chatID).Scan(&sessionID)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session for chat %s: %w", chatID, err)
	}

	return sessionID, nil
}

// SetSessionID creates or replaces the agent session token for a chat.
// The conversations table is the authoritative session association; callers
// must not keep a process-local map as the source of truth.
func (d *DB) SetSessionID(chatID, sessionID string) error {
	_, err := d.Exec(`
		INSERT INTO conversations (chat_id, session_id, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(chat_id) DO UPDATE SET
			session_id = excluded.session_id,
			updated_at = CURRENT_TIMESTAMP
	`, chatID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to save session for chat %s: %w", chatID, err)
	}

	return nil
}

// ClearSession removes the session association for a chat, forcing the next
// agent invocation to start a fresh session.
func (d *DB) ClearSession(chatID string) error {
	_, err := d.Exec(`DELETE FROM conversations WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("failed to clear session for chat %s: %w", chatID, err)
	}
	return nil
}
