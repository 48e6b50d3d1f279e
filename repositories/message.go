//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	chaterrors "groupchat/errors"

	"groupchat/domain"
)

type IMessageRepository interface {
	Append(groupID domain.GroupID, author func(domain.Group) (domain.Message, error)) (domain.Message, error)
	List(groupID domain.GroupID) ([]domain.Message, error)
	Get(id domain.MessageID) (domain.Message, error)
	Delete(id domain.MessageID, guard func(domain.Message) error) error
	MarkSeen(id domain.MessageID, member domain.MemberID, at time.Time) (domain.Message, error)
	UnseenCount(groupID domain.GroupID, member domain.MemberID) (int, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// diskMessage flattens the Content sum type for storage. Kind selects which
// of the body / file fields are meaningful.
type diskMessage struct {
	ID        string        `json:"id"`
	GroupID   string        `json:"group_id"`
	SenderID  string        `json:"sender_id"`
	Kind      string        `json:"kind"`
	Body      string        `json:"body,omitempty"`
	FileData  []byte        `json:"file_data,omitempty"`
	FileType  string        `json:"file_type,omitempty"`
	FileName  string        `json:"file_name,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UnseenBy  []string      `json:"unseen_by,omitempty"`
	SeenBy    []diskReceipt `json:"seen_by,omitempty"`
}

type diskReceipt struct {
	MemberID string    `json:"member_id"`
	SeenAt   time.Time `json:"seen_at"`
}

const (
	kindText = "text"
	kindFile = "file"
)

// Append authors and persists a message in one transaction. The author
// callback receives the group as stored at transaction time, so the unseen
// snapshot can never predate the membership state the post was accepted
// against. The group's last-message pointer moves in the same transaction.
func (m MessageRepository) Append(groupID domain.GroupID, author func(domain.Group) (domain.Message, error)) (domain.Message, error) {
	var msg domain.Message
	err := withRetry(func() error {
		return m.db.Update(func(txn *badger.Txn) error {
			group, err := getGroup(txn, groupID)
			if err != nil {
				return err
			}
			msg, err = author(group)
			if err != nil {
				return err
			}
			key := messageKey(msg)
			if err := setMessage(txn, key, msg); err != nil {
				return err
			}
			if err := txn.Set(messageRefKey(msg.ID), key); err != nil {
				return err
			}
			group.LastMessageID = &msg.ID
			return setGroup(txn, group)
		})
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// List returns the group's messages in creation order. The padded timestamp
// in the key makes the prefix scan naturally chronological. When a page
// limit is configured the scan runs newest-first and keeps the most recent
// messages, still returned in creation order.
func (m MessageRepository) List(groupID domain.GroupID) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		if _, err := getGroup(txn, groupID); err != nil {
			return err
		}
		prefix := messageGroupPrefix(groupID)
		options := badger.DefaultIteratorOptions
		options.Reverse = m.limitMessages != nil
		it := txn.NewIterator(options)
		defer it.Close()

		seek := prefix
		if options.Reverse {
			// Position past the last key under the prefix.
			seek = append(append([]byte{}, prefix...), 0xff)
		}
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(messages) == *m.limitMessages {
				m.log.Debug("message page limit reached", "limit", *m.limitMessages)
				break
			}
			var msg domain.Message
			err := it.Item().Value(func(val []byte) error {
				var err error
				msg, err = decodeMessage(val)
				return err
			})
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		if options.Reverse {
			lo.Reverse(messages)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (m MessageRepository) Get(id domain.MessageID) (domain.Message, error) {
	var msg domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		msg, _, err = getMessage(txn, id)
		return err
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// Delete removes a single message after the guard accepts it. The owning
// group's last-message pointer is left as-is even when it referenced the
// removed message; readers resolve it leniently, matching the directory
// dangling policy.
func (m MessageRepository) Delete(id domain.MessageID, guard func(domain.Message) error) error {
	return withRetry(func() error {
		return m.db.Update(func(txn *badger.Txn) error {
			msg, key, err := getMessage(txn, id)
			if err != nil {
				return err
			}
			if guard != nil {
				if err := guard(msg); err != nil {
					return err
				}
			}
			if err := txn.Delete(messageRefKey(id)); err != nil {
				return err
			}
			return txn.Delete(key)
		})
	})
}

// MarkSeen moves the member from the message's unseen set to its seen log.
// A second call for the same member finds nothing to move and commits no
// change.
func (m MessageRepository) MarkSeen(id domain.MessageID, member domain.MemberID, at time.Time) (domain.Message, error) {
	var updated domain.Message
	err := withRetry(func() error {
		return m.db.Update(func(txn *badger.Txn) error {
			msg, key, err := getMessage(txn, id)
			if err != nil {
				return err
			}
			msg.MarkSeen(member, at)
			updated = msg
			return setMessage(txn, key, msg)
		})
	})
	if err != nil {
		return domain.Message{}, err
	}
	return updated, nil
}

// UnseenCount recounts from the stored messages themselves rather than any
// cached tally, so it is correct even for members that never marked
// anything seen.
func (m MessageRepository) UnseenCount(groupID domain.GroupID, member domain.MemberID) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := messageGroupPrefix(groupID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var disk diskMessage
				if err := json.Unmarshal(val, &disk); err != nil {
					return err
				}
				if lo.Contains(disk.UnseenBy, string(member)) {
					count++
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// getMessage resolves a message by id via its reference key and returns the
// primary key alongside, so read-modify-write cycles can store it back.
func getMessage(txn *badger.Txn, id domain.MessageID) (domain.Message, []byte, error) {
	refItem, err := txn.Get(messageRefKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, nil, chaterrors.NotFound("message %s not found", id)
	}
	if err != nil {
		return domain.Message{}, nil, err
	}
	key, err := refItem.ValueCopy(nil)
	if err != nil {
		return domain.Message{}, nil, err
	}
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, nil, chaterrors.NotFound("message %s not found", id)
	}
	if err != nil {
		return domain.Message{}, nil, err
	}
	var msg domain.Message
	err = item.Value(func(val []byte) error {
		var err error
		msg, err = decodeMessage(val)
		return err
	})
	if err != nil {
		return domain.Message{}, nil, err
	}
	return msg, key, nil
}

func setMessage(txn *badger.Txn, key []byte, msg domain.Message) error {
	data, err := json.Marshal(fromMessage(msg))
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func fromMessage(msg domain.Message) diskMessage {
	disk := diskMessage{
		ID:        string(msg.ID),
		GroupID:   string(msg.GroupID),
		SenderID:  string(msg.SenderID),
		CreatedAt: msg.CreatedAt,
		UnseenBy: lo.Map(msg.UnseenBy, func(id domain.MemberID, _ int) string {
			return string(id)
		}),
		SeenBy: lo.Map(msg.SeenBy, func(r domain.SeenReceipt, _ int) diskReceipt {
			return diskReceipt{MemberID: string(r.MemberID), SeenAt: r.SeenAt}
		}),
	}
	switch content := msg.Content.(type) {
	case domain.Text:
		disk.Kind = kindText
		disk.Body = content.Body
	case domain.File:
		disk.Kind = kindFile
		disk.FileData = content.Data
		disk.FileType = content.ContentType
		disk.FileName = content.FileName
	}
	return disk
}

func decodeMessage(val []byte) (domain.Message, error) {
	var disk diskMessage
	if err := json.Unmarshal(val, &disk); err != nil {
		return domain.Message{}, err
	}
	msg := domain.Message{
		ID:        domain.MessageID(disk.ID),
		GroupID:   domain.GroupID(disk.GroupID),
		SenderID:  domain.MemberID(disk.SenderID),
		CreatedAt: disk.CreatedAt,
		UnseenBy: lo.Map(disk.UnseenBy, func(id string, _ int) domain.MemberID {
			return domain.MemberID(id)
		}),
		SeenBy: lo.Map(disk.SeenBy, func(r diskReceipt, _ int) domain.SeenReceipt {
			return domain.SeenReceipt{MemberID: domain.MemberID(r.MemberID), SeenAt: r.SeenAt}
		}),
	}
	switch disk.Kind {
	case kindText:
		msg.Content = domain.Text{Body: disk.Body}
	case kindFile:
		msg.Content = domain.File{Data: disk.FileData, ContentType: disk.FileType, FileName: disk.FileName}
	default:
		return domain.Message{}, chaterrors.Validation("stored message %s has unknown kind %q", disk.ID, disk.Kind)
	}
	return msg, nil
}
