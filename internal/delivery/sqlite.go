package delivery

import (
	"context"
	"database/sql"

	"github.com/switchboardhq/switchboard/internal/db"
	"github.com/switchboardhq/switchboard/internal/models"
	"github.com/switchboardhq/switchboard/internal/platform/whatsapp"
)

// SQLiteStore keeps conversations and messages in the service database.
type SQLiteStore struct {
	DB *sql.DB
}

// ApplyStatus implements MessageStore.
func (s *SQLiteStore) ApplyStatus(_ context.Context, u Update) (bool, error) {
	return db.UpdateMessageStatus(s.DB, db.MessageStatus{
		Phone:             whatsapp.Normalize(u.Recipient),
		ProviderMessageID: u.MessageID,
		Status:            string(u.Status),
		ProviderStatus:    u.ProviderStatus,
		ErrorCode:         u.ErrorCode,
		ErrorMessage:      u.ErrorMessage,
		At:                u.At,
	})
}

// RecordOutbound stores a message sent by accountID in its conversation with
// recipient so later callbacks can find it.
func (s *SQLiteStore) RecordOutbound(_ context.Context, recipient, accountID, body, messageID string) error {
	convID, err := db.GetOrCreateConversation(s.DB, accountID, whatsapp.Normalize(recipient))
	if err != nil {
		return err
	}
	_, err = db.CreateMessage(s.DB, &models.Message{
		ConversationID:    convID,
		Direction:         models.Outbound,
		Body:              body,
		ProviderMessageID: &messageID,
		Status:            string(StatusSent),
	})
	return err
}

// Conversations returns the conversations with recipient held by accounts
// of apiKeyID.
func (s *SQLiteStore) Conversations(_ context.Context, apiKeyID int64, recipient string) ([]models.Conversation, error) {
	return db.ListConversations(s.DB, apiKeyID, whatsapp.Normalize(recipient))
}

// Messages returns what accounts of apiKeyID exchanged with recipient in
// chronological order.
func (s *SQLiteStore) Messages(_ context.Context, apiKeyID int64, recipient string) ([]models.Message, error) {
	return db.ListMessages(s.DB, apiKeyID, whatsapp.Normalize(recipient))
}
