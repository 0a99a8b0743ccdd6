package db

import (
	"database/sql"
	"time"

	"github.com/switchboardhq/switchboard/internal/models"
)

// GetOrCreateConversation returns the ID of the conversation between
// accountID and phone, creating it on first use.
func GetOrCreateConversation(d *sql.DB, accountID, phone string) (int64, error) {
	now := time.Now().Unix()
	if _, err := d.Exec(
		`INSERT INTO conversations (account_id, phone, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, phone) DO UPDATE SET updated_at = excluded.updated_at`,
		accountID, phone, now, now,
	); err != nil {
		return 0, err
	}

	var id int64
	err := d.QueryRow("SELECT id FROM conversations WHERE account_id = ? AND phone = ?", accountID, phone).Scan(&id)
	return id, err
}

// ListConversations returns the conversations with phone held by accounts of
// apiKeyID.
func ListConversations(d *sql.DB, apiKeyID int64, phone string) ([]models.Conversation, error) {
	rows, err := d.Query(`SELECT c.id, c.account_id, c.phone, c.created_at, c.updated_at
		FROM conversations c
		JOIN social_accounts a ON a.id = c.account_id
		WHERE a.api_key_id = ? AND c.phone = ?
		ORDER BY c.id`, apiKeyID, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Phone, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// CreateMessage inserts a message and returns its ID.
func CreateMessage(d *sql.DB, m *models.Message) (int64, error) {
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().Unix()
	}
	result, err := d.Exec(
		`INSERT INTO messages (conversation_id, direction, body, provider_message_id, status, provider_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ConversationID, m.Direction, m.Body, m.ProviderMessageID, m.Status, m.ProviderStatus, m.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	m.ID, err = result.LastInsertId()
	return m.ID, err
}

// MessageStatus is a status update addressed by recipient phone and provider
// message ID.
type MessageStatus struct {
	Phone             string
	ProviderMessageID string
	Status            string
	ProviderStatus    string
	ErrorCode         string
	ErrorMessage      string
	At                time.Time
}

// UpdateMessageStatus applies u to the matching message and reports whether
// one was found.
func UpdateMessageStatus(d *sql.DB, u MessageStatus) (bool, error) {
	res, err := d.Exec(`UPDATE messages SET
		status = ?, provider_status = ?,
		error_code = NULLIF(?, ''), error_message = NULLIF(?, ''),
		status_updated_at = ?
		WHERE provider_message_id = ?
		AND conversation_id IN (SELECT id FROM conversations WHERE phone = ?)`,
		u.Status, u.ProviderStatus, u.ErrorCode, u.ErrorMessage, u.At.Unix(),
		u.ProviderMessageID, u.Phone,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListMessages returns the messages exchanged with phone by accounts of
// apiKeyID in chronological order.
func ListMessages(d *sql.DB, apiKeyID int64, phone string) ([]models.Message, error) {
	rows, err := d.Query(`SELECT m.id, m.conversation_id, m.direction, m.body, m.provider_message_id, m.status,
		m.provider_status, m.error_code, m.error_message, m.created_at, m.status_updated_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		JOIN social_accounts a ON a.id = c.account_id
		WHERE a.api_key_id = ? AND c.phone = ?
		ORDER BY m.created_at, m.id`, apiKeyID, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.Body, &m.ProviderMessageID, &m.Status,
			&m.ProviderStatus, &m.ErrorCode, &m.ErrorMessage, &m.CreatedAt, &m.StatusUpdatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
