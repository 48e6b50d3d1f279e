package repositories

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"groupchat/domain"
)

// Key layout. Message keys embed a 19-digit zero padded timestamp so that a
// forward prefix scan yields creation order, and the message id acts as a
// collision disconnector if two messages land on the same nanosecond.
//
//	group:{group_id}                     -> group record
//	msg:{group_id}:{padded_ts}:{msg_id}  -> message record
//	msgref:{msg_id}                      -> primary message key
//	dir:{member_id}                      -> group ids the member was added to
const (
	groupPrefix     = "group:"
	messagePrefix   = "msg:"
	messageRefPfx   = "msgref:"
	directoryPrefix = "dir:"
)

func groupKey(id domain.GroupID) []byte {
	return []byte(groupPrefix + string(id))
}

func messageKey(msg domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s",
		messagePrefix, msg.GroupID, msg.CreatedAt.UnixNano(), msg.ID))
}

func messageGroupPrefix(id domain.GroupID) []byte {
	return []byte(messagePrefix + string(id) + ":")
}

func messageRefKey(id domain.MessageID) []byte {
	return []byte(messageRefPfx + string(id))
}

func directoryKey(id domain.MemberID) []byte {
	return []byte(directoryPrefix + string(id))
}

// messageIDFromKey recovers the message id from a primary message key. The
// id is always the last colon-separated segment.
func messageIDFromKey(key []byte) domain.MessageID {
	s := string(key)
	return domain.MessageID(s[strings.LastIndexByte(s, ':')+1:])
}

const maxTxnRetries = 5

// withRetry re-runs fn while Badger reports a transaction conflict. This is
// the per-group serialization point: concurrent read-modify-write cycles
// touching the same keys retry instead of committing stale state.
func withRetry(fn func() error) error {
	var err error
	for i := 0; i < maxTxnRetries; i++ {
		err = fn()
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}
