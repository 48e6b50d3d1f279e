// Package search maintains a Bluge full-text index over message content.
// The index is derived state: the message store in Badger stays the source
// of truth, and entries here follow message creation and deletion.
package search

import (
	"context"

	"github.com/blugelabs/bluge"

	"groupchat/domain"
)

type Index struct {
	writer *bluge.Writer
}

// Open opens (or creates) a persistent index at path.
func Open(path string) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &Index{writer: writer}, nil
}

// OpenInMemory opens a throwaway index, used in tests.
func OpenInMemory() (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	if err != nil {
		return nil, err
	}
	return &Index{writer: writer}, nil
}

func (i *Index) Close() error {
	return i.writer.Close()
}

// Add indexes a message under its group. Text messages contribute their
// body; file messages contribute the file name so uploads stay findable.
func (i *Index) Add(msg domain.Message) error {
	var text string
	switch content := msg.Content.(type) {
	case domain.Text:
		text = content.Body
	case domain.File:
		text = content.FileName
	}
	doc := bluge.NewDocument(string(msg.ID)).
		AddField(bluge.NewTextField("body", text)).
		AddField(bluge.NewKeywordField("group", string(msg.GroupID)))
	return i.writer.Update(doc.ID(), doc)
}

// Remove drops messages from the index, typically after a delete or a
// group cascade.
func (i *Index) Remove(ids ...domain.MessageID) error {
	batch := bluge.NewBatch()
	for _, id := range ids {
		batch.Delete(bluge.NewDocument(string(id)).ID())
	}
	return i.writer.Batch(batch)
}

// Search returns ids of messages in the group matching the terms, best
// match first.
func (i *Index) Search(ctx context.Context, group domain.GroupID, terms string, limit int) ([]domain.MessageID, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("body")).
		AddMust(bluge.NewTermQuery(string(group)).SetField("group"))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var ids []domain.MessageID
	match, err := iterator.Next()
	for err == nil && match != nil {
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				ids = append(ids, domain.MessageID(value))
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}
