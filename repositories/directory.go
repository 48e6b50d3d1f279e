//go:generate go run go.uber.org/mock/mockgen -source=directory.go -destination=../mocks/mock_directory_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	chaterrors "groupchat/errors"

	"groupchat/domain"
)

type IDirectoryRepository interface {
	GroupsFor(member domain.MemberID) ([]domain.GroupID, error)
}

// DirectoryRepository reads the per-member group directory. Entries are
// written by GroupRepository as a side effect of group creation and member
// addition, and are never pruned: a removed member or a deleted group keeps
// its id in the entry, and readers skip ids that no longer resolve.
type DirectoryRepository struct {
	db *badger.DB
}

func NewDirectoryRepository(db *badger.DB) DirectoryRepository {
	return DirectoryRepository{db: db}
}

// GroupsFor returns the group ids recorded for the member, dangling ones
// included.
func (r DirectoryRepository) GroupsFor(member domain.MemberID) ([]domain.GroupID, error) {
	var groups []domain.GroupID
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		groups, err = getDirectory(txn, member)
		return err
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func getDirectory(txn *badger.Txn, member domain.MemberID) ([]domain.GroupID, error) {
	item, err := txn.Get(directoryKey(member))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, chaterrors.NotFound("member %s has no group directory entry", member)
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &ids)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(ids, func(id string, _ int) domain.GroupID {
		return domain.GroupID(id)
	}), nil
}

func addGroupToDirectory(txn *badger.Txn, member domain.MemberID, id domain.GroupID) error {
	groups, err := getDirectory(txn, member)
	if err != nil && !errors.Is(err, chaterrors.ErrNotFound) {
		return err
	}
	if lo.Contains(groups, id) {
		return nil
	}
	groups = append(groups, id)
	data, err := json.Marshal(lo.Map(groups, func(id domain.GroupID, _ int) string {
		return string(id)
	}))
	if err != nil {
		return err
	}
	return txn.Set(directoryKey(member), data)
}
