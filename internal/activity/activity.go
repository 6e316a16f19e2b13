// Package activity holds a minimal Bot-Framework-style activity model. Only
// the fields the agent reads or writes are represented; everything else on
// the wire is ignored.
package activity

import "github.com/google/uuid"

// Activity types handled by the agent.
const (
	TypeMessage            = "message"
	TypeConversationUpdate = "conversationUpdate"
)

// Account identifies a channel participant.
type Account struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Conversation identifies the conversation an activity belongs to.
type Conversation struct {
	ID string `json:"id,omitempty"`
}

// Activity is a single inbound or outbound channel event.
type Activity struct {
	Type         string       `json:"type"`
	ID           string       `json:"id,omitempty"`
	Text         string       `json:"text,omitempty"`
	Conversation Conversation `json:"conversation,omitempty"`
	From         Account      `json:"from,omitempty"`
	Recipient    Account      `json:"recipient,omitempty"`
	MembersAdded []Account    `json:"membersAdded,omitempty"`
}

// Reply builds a message activity answering this one. Sender and recipient
// are swapped and the conversation is carried over.
func (a Activity) Reply(text string) Activity {
	return Activity{
		Type:         TypeMessage,
		ID:           uuid.NewString(),
		Text:         text,
		Conversation: a.Conversation,
		From:         a.Recipient,
		Recipient:    a.From,
	}
}
