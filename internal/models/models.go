// Package models defines the database entity types.
package models

// APIKey represents an API key record in the database.
type APIKey struct {
	ID        int64
	KeyPrefix string
	KeyHash   []byte
	CreatedAt int64
	RevokedAt *int64
}

// Account statuses.
const (
	AccountActive  = "active"
	AccountExpired = "expired"
)

// SocialAccount is a connected platform account. Tokens are stored only in
// their encrypted form.
type SocialAccount struct {
	ID                  string
	APIKeyID            *int64
	UserID              string
	Platform            string
	PlatformAccountID   string
	PlatformAccountName string
	AccessToken         EncryptedColumns
	RefreshToken        *EncryptedColumns
	TokenExpiresAt      *int64
	Metadata            string
	Status              string
	CreatedAt           int64
	UpdatedAt           int64
}

// EncryptedColumns holds one encrypted token as three hex columns.
type EncryptedColumns struct {
	Ciphertext string
	IV         string
	Tag        string
}

// Conversation groups the messages one account exchanged with a phone number.
type Conversation struct {
	ID        int64
	AccountID string
	Phone     string
	CreatedAt int64
	UpdatedAt int64
}

// Message directions.
const (
	Inbound  = "inbound"
	Outbound = "outbound"
)

// Message is one message within a conversation.
type Message struct {
	ID                int64
	ConversationID    int64
	Direction         string
	Body              string
	ProviderMessageID *string
	Status            string
	ProviderStatus    *string
	ErrorCode         *string
	ErrorMessage      *string
	CreatedAt         int64
	StatusUpdatedAt   *int64
}
