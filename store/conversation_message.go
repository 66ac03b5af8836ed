package store

type ConversationMessageRole string

const (
	ConversationMessageRoleUser      ConversationMessageRole = "USER"
	ConversationMessageRoleAssistant ConversationMessageRole = "ASSISTANT"
)

type ConversationMessage struct {
	ID        int64
	UID       string
	Phone     string
	CompanyID int
	Role      ConversationMessageRole
	Content   string
	CreatedTs int64
}

// FindConversationMessage returns the newest Limit messages in chronological order.
type FindConversationMessage struct {
	Phone     string
	CompanyID int
	Limit     int
}
