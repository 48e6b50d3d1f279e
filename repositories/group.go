//go:generate go run go.uber.org/mock/mockgen -source=group.go -destination=../mocks/mock_group_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	chaterrors "groupchat/errors"

	"groupchat/domain"
)

type IGroupRepository interface {
	Create(group domain.Group) error
	Get(id domain.GroupID) (domain.Group, error)
	Update(id domain.GroupID, mutate func(*domain.Group) error) (domain.Group, error)
	AddMember(id domain.GroupID, member domain.MemberID) (domain.Group, error)
	DeleteCascade(id domain.GroupID, guard func(domain.Group) error) ([]domain.MessageID, error)
}

type GroupRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewGroupRepository(db *badger.DB, log *slog.Logger) GroupRepository {
	return GroupRepository{db: db, log: log}
}

// Create persists the group and appends its id to the directory entry of
// every member inside one transaction, so a reader never observes a group
// without its directory entries.
func (r GroupRepository) Create(group domain.Group) error {
	return withRetry(func() error {
		return r.db.Update(func(txn *badger.Txn) error {
			if err := setGroup(txn, group); err != nil {
				return err
			}
			for _, member := range group.Members {
				if err := addGroupToDirectory(txn, member, group.ID); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (r GroupRepository) Get(id domain.GroupID) (domain.Group, error) {
	var group domain.Group
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		group, err = getGroup(txn, id)
		return err
	})
	return group, err
}

// Update applies mutate to the stored group inside a single transaction.
// Concurrent updates against the same group retry on conflict, which keeps
// the admin invariants intact under concurrent leave/remove.
func (r GroupRepository) Update(id domain.GroupID, mutate func(*domain.Group) error) (domain.Group, error) {
	var updated domain.Group
	err := withRetry(func() error {
		return r.db.Update(func(txn *badger.Txn) error {
			group, err := getGroup(txn, id)
			if err != nil {
				return err
			}
			if err := mutate(&group); err != nil {
				return err
			}
			updated = group
			return setGroup(txn, group)
		})
	})
	if err != nil {
		return domain.Group{}, err
	}
	return updated, nil
}

// AddMember extends the member set and the member's directory entry in the
// same transaction.
func (r GroupRepository) AddMember(id domain.GroupID, member domain.MemberID) (domain.Group, error) {
	var updated domain.Group
	err := withRetry(func() error {
		return r.db.Update(func(txn *badger.Txn) error {
			group, err := getGroup(txn, id)
			if err != nil {
				return err
			}
			if err := group.AddMember(member); err != nil {
				return err
			}
			updated = group
			if err := setGroup(txn, group); err != nil {
				return err
			}
			return addGroupToDirectory(txn, member, id)
		})
	})
	if err != nil {
		return domain.Group{}, err
	}
	return updated, nil
}

// DeleteCascade removes the group and every message it owns in one
// transaction. Directory entries of former members are deliberately left
// in place; readers tolerate the dangling ids. The ids of the removed
// messages are returned so callers can clean up derived state.
func (r GroupRepository) DeleteCascade(id domain.GroupID, guard func(domain.Group) error) ([]domain.MessageID, error) {
	var removed []domain.MessageID
	err := withRetry(func() error {
		removed = removed[:0]
		return r.db.Update(func(txn *badger.Txn) error {
			group, err := getGroup(txn, id)
			if err != nil {
				return err
			}
			if guard != nil {
				if err := guard(group); err != nil {
					return err
				}
			}

			options := badger.DefaultIteratorOptions
			options.PrefetchValues = false
			it := txn.NewIterator(options)
			prefix := messageGroupPrefix(id)
			var keys [][]byte
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			it.Close()

			for _, key := range keys {
				msgID := messageIDFromKey(key)
				if err := txn.Delete(messageRefKey(msgID)); err != nil {
					return err
				}
				if err := txn.Delete(key); err != nil {
					return err
				}
				removed = append(removed, msgID)
			}
			r.log.Debug("group deleted", "group", id, "cascaded_messages", len(keys))
			return txn.Delete(groupKey(id))
		})
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func getGroup(txn *badger.Txn, id domain.GroupID) (domain.Group, error) {
	item, err := txn.Get(groupKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Group{}, chaterrors.NotFound("group %s not found", id)
	}
	if err != nil {
		return domain.Group{}, err
	}
	var group domain.Group
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &group)
	})
	return group, err
}

func setGroup(txn *badger.Txn, group domain.Group) error {
	data, err := json.Marshal(group)
	if err != nil {
		return err
	}
	return txn.Set(groupKey(group.ID), data)
}
