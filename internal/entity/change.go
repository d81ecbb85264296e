package entity

// ChangeKind classifies a store mutation for live subscribers
type ChangeKind string

const (
	ChangeMessage             ChangeKind = "message"
	ChangeRead                ChangeKind = "read"
	ChangeConversation        ChangeKind = "conversation"
	ChangeConversationDeleted ChangeKind = "conversation_deleted"
	ChangePresence            ChangeKind = "presence"
)

// Change announces that data behind one or more live queries moved.
// It carries no payload; subscribers re-read the current snapshot.
type Change struct {
	Kind           ChangeKind `json:"kind"`
	ConversationId string     `json:"conversation_id,omitempty"`
	UserIds        []string   `json:"user_ids,omitempty"`
}
