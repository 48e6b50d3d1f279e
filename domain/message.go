// Package domain contains core concepts of the group chat system.
// This file defines Message entities and per-member read accounting.
// Messages are immutable once created except for their seen state.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"groupchat/errors"
)

type MessageID string

// Content is the payload of a message. Exactly two shapes exist: Text and
// File. Modeling this as a sealed interface removes the "body required only
// for text" runtime conditional.
type Content interface {
	isContent()
}

type Text struct {
	Body string
}

type File struct {
	Data        []byte
	ContentType string
	FileName    string
}

func (Text) isContent() {}
func (File) isContent() {}

// SeenReceipt records when a member acknowledged a message. The seen log is
// append-only; entries are never removed.
type SeenReceipt struct {
	MemberID MemberID
	SeenAt   time.Time
}

// Message is an authored unit scoped to one group and one sender. UnseenBy
// and SeenBy are disjoint for any member at any time; the sender appears in
// neither.
type Message struct {
	ID        MessageID
	GroupID   GroupID
	SenderID  MemberID
	Content   Content
	CreatedAt time.Time
	UnseenBy  []MemberID
	SeenBy    []SeenReceipt
}

// NewMessage authors a message inside a group. UnseenBy snapshots the group
// membership at send time, minus the sender; later membership changes never
// retroactively touch existing messages.
func NewMessage(group Group, sender MemberID, content Content, at time.Time) (Message, error) {
	if !group.IsMember(sender) {
		return Message{}, errors.Forbidden("sender %s is not a member of group %s", sender, group.ID)
	}
	switch c := content.(type) {
	case Text:
		if strings.TrimSpace(c.Body) == "" {
			return Message{}, errors.Validation("text message body is empty")
		}
	case File:
		if len(c.Data) == 0 {
			return Message{}, errors.Validation("file message payload is empty")
		}
	default:
		return Message{}, errors.Validation("unsupported message content")
	}
	return Message{
		ID:        MessageID(uuid.NewString()),
		GroupID:   group.ID,
		SenderID:  sender,
		Content:   content,
		CreatedAt: at,
		UnseenBy:  lo.Without(group.Members, sender),
	}, nil
}

// MarkSeen moves the member from the unseen set to the seen log. Marking a
// message seen twice for the same member is a no-op, not an error.
func (m *Message) MarkSeen(id MemberID, at time.Time) {
	if !lo.Contains(m.UnseenBy, id) {
		return
	}
	m.UnseenBy = lo.Without(m.UnseenBy, id)
	m.SeenBy = append(m.SeenBy, SeenReceipt{MemberID: id, SeenAt: at})
}

// Body returns the text body, or the empty string for file messages.
func (m *Message) Body() string {
	if text, ok := m.Content.(Text); ok {
		return text.Body
	}
	return ""
}
