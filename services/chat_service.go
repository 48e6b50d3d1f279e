//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	chaterrors "groupchat/errors"

	"groupchat/domain"
	"groupchat/moderation"
	"groupchat/observability"
	"groupchat/repositories"
	"groupchat/search"
)

// MemberResolver turns a member id into display data. Member accounts are
// owned by an external service; this is the only seam the chat core needs
// from it.
type MemberResolver interface {
	DisplayName(ctx context.Context, id domain.MemberID) (string, error)
}

// IdentityResolver echoes the member id as its display name, for
// deployments where the account service supplies no directory.
type IdentityResolver struct{}

func (IdentityResolver) DisplayName(_ context.Context, id domain.MemberID) (string, error) {
	return string(id), nil
}

type Sender struct {
	ID   domain.MemberID
	Name string
}

// MessageView is a message with its sender resolved for display.
type MessageView struct {
	Message domain.Message
	Sender  Sender
}

// GroupSummary pairs a group with the member's unseen message count.
type GroupSummary struct {
	Group       domain.Group
	UnseenCount int
}

type IChatService interface {
	CreateGroup(ctx context.Context, cmd domain.CreateGroupCommand) (domain.Group, error)
	AddMember(ctx context.Context, groupID domain.GroupID, member domain.MemberID) (domain.Group, error)
	RemoveMember(ctx context.Context, groupID domain.GroupID, actor, target domain.MemberID) (domain.Group, error)
	PromoteAdmin(ctx context.Context, groupID domain.GroupID, actor, target domain.MemberID) (domain.Group, error)
	LeaveGroup(ctx context.Context, groupID domain.GroupID, member domain.MemberID) (domain.Group, error)
	RenameGroup(ctx context.Context, groupID domain.GroupID, name string) (domain.Group, error)
	DeleteGroup(ctx context.Context, groupID domain.GroupID, actor domain.MemberID) error
	PostMessage(ctx context.Context, cmd domain.PostMessageCommand) (MessageView, error)
	ListMessages(ctx context.Context, groupID domain.GroupID) ([]MessageView, error)
	SearchMessages(ctx context.Context, groupID domain.GroupID, terms string) ([]MessageView, error)
	DeleteMessage(ctx context.Context, id domain.MessageID, actor domain.MemberID) error
	MarkSeen(ctx context.Context, id domain.MessageID, member domain.MemberID) error
	Summaries(ctx context.Context, member domain.MemberID) ([]GroupSummary, error)
}

type ChatService struct {
	log         *slog.Logger
	groups      repositories.IGroupRepository
	messages    repositories.IMessageRepository
	directory   repositories.IDirectoryRepository
	moderator   moderation.Moderator
	index       *search.Index
	metrics     *observability.Metrics
	resolver    MemberResolver
	searchLimit int
}

func NewChatService(
	log *slog.Logger,
	groups repositories.IGroupRepository,
	messages repositories.IMessageRepository,
	directory repositories.IDirectoryRepository,
	moderator moderation.Moderator,
	index *search.Index,
	metrics *observability.Metrics,
	resolver MemberResolver,
	searchLimit int,
) *ChatService {
	return &ChatService{
		log:         log,
		groups:      groups,
		messages:    messages,
		directory:   directory,
		moderator:   moderator,
		index:       index,
		metrics:     metrics,
		resolver:    resolver,
		searchLimit: searchLimit,
	}
}

func (s *ChatService) CreateGroup(_ context.Context, cmd domain.CreateGroupCommand) (domain.Group, error) {
	group, err := domain.NewGroup(cmd.Name, cmd.Initiator, cmd.Members, time.Now().UTC())
	if err != nil {
		return domain.Group{}, err
	}
	if err := s.groups.Create(group); err != nil {
		return domain.Group{}, err
	}
	s.metrics.GroupsCreated.Inc()
	s.log.Info("group created", "group", group.ID, "name", group.Name, "members", len(group.Members))
	return group, nil
}

func (s *ChatService) AddMember(_ context.Context, groupID domain.GroupID, member domain.MemberID) (domain.Group, error) {
	return s.groups.AddMember(groupID, member)
}

// RemoveMember ejects target on the authority of actor. The target's
// directory entry keeps the group id; only membership changes.
func (s *ChatService) RemoveMember(_ context.Context, groupID domain.GroupID, actor, target domain.MemberID) (domain.Group, error) {
	return s.groups.Update(groupID, func(group *domain.Group) error {
		if !group.IsAdmin(actor) {
			return chaterrors.Forbidden("only admins can remove members from group %s", groupID)
		}
		return group.RemoveMember(target)
	})
}

func (s *ChatService) PromoteAdmin(_ context.Context, groupID domain.GroupID, actor, target domain.MemberID) (domain.Group, error) {
	return s.groups.Update(groupID, func(group *domain.Group) error {
		if !group.IsAdmin(actor) {
			return chaterrors.Forbidden("only admins can promote members of group %s", groupID)
		}
		return group.Promote(target)
	})
}

func (s *ChatService) LeaveGroup(_ context.Context, groupID domain.GroupID, member domain.MemberID) (domain.Group, error) {
	return s.groups.Update(groupID, func(group *domain.Group) error {
		return group.Leave(member)
	})
}

func (s *ChatService) RenameGroup(_ context.Context, groupID domain.GroupID, name string) (domain.Group, error) {
	return s.groups.Update(groupID, func(group *domain.Group) error {
		return group.Rename(name)
	})
}

// DeleteGroup removes the group and cascades over its messages. Former
// members keep the group id in their directories; summaries skip it once
// it stops resolving.
func (s *ChatService) DeleteGroup(_ context.Context, groupID domain.GroupID, actor domain.MemberID) error {
	removed, err := s.groups.DeleteCascade(groupID, func(group domain.Group) error {
		if !group.IsAdmin(actor) {
			return chaterrors.Forbidden("only admins can delete group %s", groupID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.metrics.GroupsDeleted.Inc()
	if err := s.index.Remove(removed...); err != nil {
		s.log.Warn("search index cascade failed", "group", groupID, "error", err)
	}
	s.log.Info("group deleted", "group", groupID, "cascaded_messages", len(removed))
	return nil
}

func (s *ChatService) PostMessage(ctx context.Context, cmd domain.PostMessageCommand) (MessageView, error) {
	content := cmd.Content
	if text, ok := content.(domain.Text); ok {
		content = domain.Text{Body: s.moderator.Censor(text.Body)}
	}
	msg, err := s.messages.Append(cmd.Group, func(group domain.Group) (domain.Message, error) {
		return domain.NewMessage(group, cmd.Sender, content, time.Now().UTC())
	})
	if err != nil {
		return MessageView{}, err
	}
	s.metrics.MessagesPosted.WithLabelValues(contentKind(msg.Content)).Inc()
	// The index lags rather than fails the post; Badger stays the source
	// of truth and search results are resolved against it.
	if err := s.index.Add(msg); err != nil {
		s.log.Warn("search indexing failed", "message", msg.ID, "error", err)
	}
	name, err := s.resolver.DisplayName(ctx, msg.SenderID)
	if err != nil {
		name = string(msg.SenderID)
	}
	return MessageView{Message: msg, Sender: Sender{ID: msg.SenderID, Name: name}}, nil
}

func (s *ChatService) ListMessages(ctx context.Context, groupID domain.GroupID) ([]MessageView, error) {
	messages, err := s.messages.List(groupID)
	if err != nil {
		return nil, err
	}
	return s.resolveViews(ctx, messages)
}

// SearchMessages resolves index hits back through the message store, so a
// hit that was deleted since indexing is silently dropped.
func (s *ChatService) SearchMessages(ctx context.Context, groupID domain.GroupID, terms string) ([]MessageView, error) {
	if _, err := s.groups.Get(groupID); err != nil {
		return nil, err
	}
	ids, err := s.index.Search(ctx, groupID, terms, s.searchLimit)
	if err != nil {
		return nil, err
	}
	var messages []domain.Message
	for _, id := range ids {
		msg, err := s.messages.Get(id)
		if errors.Is(err, chaterrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return s.resolveViews(ctx, messages)
}

// DeleteMessage is allowed for the message's sender and for admins of the
// owning group.
func (s *ChatService) DeleteMessage(_ context.Context, id domain.MessageID, actor domain.MemberID) error {
	err := s.messages.Delete(id, func(msg domain.Message) error {
		if msg.SenderID == actor {
			return nil
		}
		group, err := s.groups.Get(msg.GroupID)
		if err == nil && group.IsAdmin(actor) {
			return nil
		}
		return chaterrors.Forbidden("member %s may not delete message %s", actor, id)
	})
	if err != nil {
		return err
	}
	if err := s.index.Remove(id); err != nil {
		s.log.Warn("search index removal failed", "message", id, "error", err)
	}
	return nil
}

func (s *ChatService) MarkSeen(_ context.Context, id domain.MessageID, member domain.MemberID) error {
	if _, err := s.messages.MarkSeen(id, member, time.Now().UTC()); err != nil {
		return err
	}
	s.metrics.SeenMarks.Inc()
	return nil
}

// Summaries lists every group recorded in the member's directory that still
// resolves, with the member's unseen count per group. Dangling ids are
// skipped, not pruned.
func (s *ChatService) Summaries(_ context.Context, member domain.MemberID) ([]GroupSummary, error) {
	ids, err := s.directory.GroupsFor(member)
	if err != nil {
		return nil, err
	}
	summaries := make([]GroupSummary, 0, len(ids))
	for _, id := range ids {
		group, err := s.groups.Get(id)
		if errors.Is(err, chaterrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		unseen, err := s.messages.UnseenCount(id, member)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, GroupSummary{Group: group, UnseenCount: unseen})
	}
	return summaries, nil
}

func (s *ChatService) resolveViews(ctx context.Context, messages []domain.Message) ([]MessageView, error) {
	names := make(map[domain.MemberID]string, 4)
	views := make([]MessageView, 0, len(messages))
	for _, msg := range messages {
		name, ok := names[msg.SenderID]
		if !ok {
			var err error
			name, err = s.resolver.DisplayName(ctx, msg.SenderID)
			if err != nil {
				name = string(msg.SenderID)
			}
			names[msg.SenderID] = name
		}
		views = append(views, MessageView{
			Message: msg,
			Sender:  Sender{ID: msg.SenderID, Name: name},
		})
	}
	return views, nil
}

func contentKind(content domain.Content) string {
	if _, ok := content.(domain.File); ok {
		return "file"
	}
	return "text"
}
