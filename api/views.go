package api

import (
	"time"

	"github.com/samber/lo"

	"groupchat/domain"
	"groupchat/services"
)

type groupView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Members     []string  `json:"members"`
	Admins      []string  `json:"admins"`
	CreatedAt   time.Time `json:"createdAt"`
	LastMessage *string   `json:"lastMessage,omitempty"`
}

type summaryView struct {
	groupView
	UnseenCount int `json:"unseenCount"`
}

type senderView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type fileView struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"` // base64 in JSON
}

type receiptView struct {
	MemberID string    `json:"memberId"`
	SeenAt   time.Time `json:"seenAt"`
}

type messageView struct {
	ID        string        `json:"id"`
	GroupID   string        `json:"groupId"`
	Sender    senderView    `json:"sender"`
	Kind      string        `json:"kind"`
	Content   string        `json:"content,omitempty"`
	File      *fileView     `json:"file,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UnseenBy  []string      `json:"unseenBy"`
	SeenBy    []receiptView `json:"seenBy,omitempty"`
}

func toGroupView(group domain.Group) groupView {
	view := groupView{
		ID:        string(group.ID),
		Name:      group.Name,
		Members:   memberStrings(group.Members),
		Admins:    memberStrings(group.Admins),
		CreatedAt: group.CreatedAt,
	}
	if group.LastMessageID != nil {
		view.LastMessage = lo.ToPtr(string(*group.LastMessageID))
	}
	return view
}

func toSummaryView(summary services.GroupSummary) summaryView {
	return summaryView{
		groupView:   toGroupView(summary.Group),
		UnseenCount: summary.UnseenCount,
	}
}

func toMessageView(view services.MessageView) messageView {
	msg := view.Message
	out := messageView{
		ID:        string(msg.ID),
		GroupID:   string(msg.GroupID),
		Sender:    senderView{ID: string(view.Sender.ID), Name: view.Sender.Name},
		CreatedAt: msg.CreatedAt,
		UnseenBy:  memberStrings(msg.UnseenBy),
		SeenBy: lo.Map(msg.SeenBy, func(r domain.SeenReceipt, _ int) receiptView {
			return receiptView{MemberID: string(r.MemberID), SeenAt: r.SeenAt}
		}),
	}
	switch content := msg.Content.(type) {
	case domain.Text:
		out.Kind = "text"
		out.Content = content.Body
	case domain.File:
		out.Kind = "file"
		out.File = &fileView{
			FileName:    content.FileName,
			ContentType: content.ContentType,
			Data:        content.Data,
		}
	}
	return out
}

func toMessageViews(views []services.MessageView) []messageView {
	return lo.Map(views, func(v services.MessageView, _ int) messageView {
		return toMessageView(v)
	})
}

func memberStrings(ids []domain.MemberID) []string {
	return lo.Map(ids, func(id domain.MemberID, _ int) string {
		return string(id)
	})
}

func memberIDs(ids []string) []domain.MemberID {
	return lo.Map(ids, func(id string, _ int) domain.MemberID {
		return domain.MemberID(id)
	})
}
