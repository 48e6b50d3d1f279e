package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	chaterrors "groupchat/errors"

	"groupchat/domain"
	"groupchat/moderation"
	"groupchat/observability"
	"groupchat/repositories"
	"groupchat/search"
)

func newTestStack(t *testing.T, censoredWords ...string) (*ChatService, repositories.GroupRepository) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	index, err := search.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	moderator, err := moderation.NewModerator(censoredWords, '*')
	require.NoError(t, err)

	log := slog.Default()
	groups := repositories.NewGroupRepository(db, log)
	svc := NewChatService(
		log,
		groups,
		repositories.NewMessageRepository(db, log, nil),
		repositories.NewDirectoryRepository(db),
		moderator,
		index,
		observability.NewMetrics(),
		IdentityResolver{},
		25,
	)
	return svc, groups
}

func newTestService(t *testing.T, censoredWords ...string) *ChatService {
	t.Helper()
	svc, _ := newTestStack(t, censoredWords...)
	return svc
}

func createGroup(t *testing.T, svc *ChatService, name string, admin domain.MemberID, members ...domain.MemberID) domain.Group {
	t.Helper()
	group, err := svc.CreateGroup(context.Background(), domain.CreateGroupCommand{
		Name:      name,
		Initiator: admin,
		Members:   members,
	})
	require.NoError(t, err)
	return group
}

func postText(t *testing.T, svc *ChatService, groupID domain.GroupID, sender domain.MemberID, body string) domain.Message {
	t.Helper()
	view, err := svc.PostMessage(context.Background(), domain.PostMessageCommand{
		Group:   groupID,
		Sender:  sender,
		Content: domain.Text{Body: body},
	})
	require.NoError(t, err)
	return view.Message
}

func Test_Post_Then_Seen_Accounting(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc := newTestService(t)

	group := createGroup(t, svc, "G", "A", "B", "C")
	msg := postText(t, svc, group.ID, "A", "hi")
	req.ElementsMatch([]domain.MemberID{"B", "C"}, msg.UnseenBy)

	req.NoError(svc.MarkSeen(ctx, msg.ID, "B"))

	views, err := svc.ListMessages(ctx, group.ID)
	req.NoError(err)
	req.Len(views, 1)
	req.Equal([]domain.MemberID{"C"}, views[0].Message.UnseenBy)
	req.Len(views[0].Message.SeenBy, 1)
	req.Equal(domain.MemberID("B"), views[0].Message.SeenBy[0].MemberID)

	summaryFor := func(member domain.MemberID) int {
		summaries, err := svc.Summaries(ctx, member)
		req.NoError(err)
		req.Len(summaries, 1)
		return summaries[0].UnseenCount
	}
	req.Equal(0, summaryFor("B"))
	req.Equal(1, summaryFor("C"))
}

func Test_MarkSeen_Twice_Same_State(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc := newTestService(t)

	group := createGroup(t, svc, "G", "A", "B")
	msg := postText(t, svc, group.ID, "A", "hi")

	req.NoError(svc.MarkSeen(ctx, msg.ID, "B"))
	req.NoError(svc.MarkSeen(ctx, msg.ID, "B"))

	views, err := svc.ListMessages(ctx, group.ID)
	req.NoError(err)
	req.Empty(views[0].Message.UnseenBy)
	req.Len(views[0].Message.SeenBy, 1)
}

// Reconciliation: the summary count must equal an independent recount over
// the listed messages.
func Test_UnseenCount_Matches_Recount(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc := newTestService(t)

	group := createGroup(t, svc, "G", "A", "B", "C")
	first := postText(t, svc, group.ID, "A", "one")
	postText(t, svc, group.ID, "B", "two")
	postText(t, svc, group.ID, "C", "three")
	req.NoError(svc.MarkSeen(ctx, first.ID, "C"))

	views, err := svc.ListMessages(ctx, group.ID)
	req.NoError(err)

	for _, member := range []domain.MemberID{"A", "B", "C"} {
		recount := lo.CountBy(views, func(v MessageView) bool {
			return lo.Contains(v.Message.UnseenBy, member)
		})
		summaries, err := svc.Summaries(ctx, member)
		req.NoError(err)
		req.Len(summaries, 1)
		req.Equal(recount, summaries[0].UnseenCount, "member %s", member)
	}
}

func Test_Sole_Admin_Leave_Then_Remove_Member(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc := newTestService(t)

	group := createGroup(t, svc, "G", "A", "B", "C")

	_, err := svc.LeaveGroup(ctx, group.ID, "A")
	req.ErrorIs(err, chaterrors.ErrConflict)

	stored, err := svc.AddMember(ctx, group.ID, "D")
	req.NoError(err)
	req.True(stored.IsMember("A"), "failed leave must not mutate the group")

	updated, err := svc.RemoveMember(ctx, group.ID, "A", "B")
	req.NoError(err)
	req.False(updated.IsMember("B"))

	// B's directory still records the group.
	summaries, err := svc.Summaries(ctx, "B")
	req.NoError(err)
	req.Len(summaries, 1)
	req.Equal(group.ID, summaries[0].Group.ID)
}

func Test_RemoveMember_Requires_Admin(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc := newTestService(t)

	group := createGroup(t, svc, "G", "A", "B", "C")
	_, err := svc.RemoveMember(ctx, group.ID, "B", "C")
	req.ErrorIs(err, chaterrors.ErrForbidden)
}

// Racing an admin's leave against that admin removing the other admin must
// never commit a group without admins, whichever mutation wins.
func Test_Concurrent_Leave_And_Remove_Keep_An_Admin(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		svc, groups := newTestStack(t)
		group := createGroup(t, svc, "G", "A", "B", "C")
		_, err := svc.PromoteAdmin(ctx, group.ID, "A", "B")
		req.NoError(err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.LeaveGroup(ctx, group.ID, "A")
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.RemoveMember(ctx, group.ID, "A", "B")
		}()
		wg.Wait()

		stored, err := groups.Get(group.ID)
		req.NoError(err)
		req.NotEmpty(stored.Admins)
		for _, admin := range stored.Admins {
			req.True(stored.IsMember(admin), "admin %s must be a member", admin)
		}
	}
}

func Test_Promote_Then_Leave(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc := newTestService(t)

	group := createGroup(t, svc, "G", "A", "B")
	_, err := svc.PromoteAdmin(ctx, group.ID, "A", "B")
	req.NoError(err)

	updated, err := svc.LeaveGroup(ctx, group.ID, "A")
	req.NoError(err)
	req.Equal([]domain.MemberID{"B"}, updated.Admins)
}

func Test_Empty_File_Payload_Leaves_Group_Untouched(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc := newTestService(t)

	group := createGroup(t, svc, "G", "A", "B")
	_, err := svc.PostMessage(ctx, domain.PostMessageCommand{
		Group:   group.ID,
		Sender:  "A",
		Content: domain.File{FileName: "x.pdf", ContentType: "application/pdf"},
	})
	req.ErrorIs(err, chaterrors.ErrValidation)

	views, err := svc.ListMessages(ctx, group.ID)
	req.NoError(err)
	req.Empty(views)

	summaries, err := svc.Summaries(ctx, "A")
	req.NoError(err)
	req.Nil(summaries[0].Group.LastMessageID)
}

func Test_DeleteGroup_Cascades_And_Summaries_Skip_Dangling(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc := newTestService(t)

	kept := createGroup(t, svc, "kept", "A", "B")
	doomed := createGroup(t, svc, "doomed", "A", "B")
	postText(t, svc, doomed.ID, "A", "bye")

	req.ErrorIs(svc.DeleteGroup(ctx, doomed.ID, "B"), chaterrors.ErrForbidden)
	req.NoError(svc.DeleteGroup(ctx, doomed.ID, "A"))

	_, err := svc.ListMessages(ctx, doomed.ID)
	req.ErrorIs(err, chaterrors.ErrNotFound)

	// The dangling directory reference is skipped, not an error.
	summaries, err := svc.Summaries(ctx, "B")
	req.NoError(err)
	req.Len(summaries, 1)
	req.Equal(kept.ID, summaries[0].Group.ID)
}

func Test_DeleteMessage_Authority(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc := newTestService(t)

	group := createGroup(t, svc, "G", "A", "B", "C")
	msg := postText(t, svc, group.ID, "B", "hi")

	req.ErrorIs(svc.DeleteMessage(ctx, msg.ID, "C"), chaterrors.ErrForbidden)
	req.NoError(svc.DeleteMessage(ctx, msg.ID, "B"), "sender may delete own message")

	msg = postText(t, svc, group.ID, "B", "again")
	req.NoError(svc.DeleteMessage(ctx, msg.ID, "A"), "admin may delete any message")
}

func Test_PostMessage_Censors_Text(t *testing.T) {
	req := require.New(t)
	svc := newTestService(t, "secret")

	group := createGroup(t, svc, "G", "A", "B")
	msg := postText(t, svc, group.ID, "A", "the Secret plan")
	req.Equal("the ****** plan", msg.Body())
}

func Test_SearchMessages_Scoped_To_Group(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc := newTestService(t)

	first := createGroup(t, svc, "first", "A", "B")
	second := createGroup(t, svc, "second", "A", "B")
	hit := postText(t, svc, first.ID, "A", "quarterly budget review")
	postText(t, svc, second.ID, "A", "budget for the trip")
	postText(t, svc, first.ID, "B", "lunch plans")

	views, err := svc.SearchMessages(ctx, first.ID, "budget")
	req.NoError(err)
	req.Len(views, 1)
	req.Equal(hit.ID, views[0].Message.ID)

	_, err = svc.SearchMessages(ctx, "missing", "budget")
	req.ErrorIs(err, chaterrors.ErrNotFound)
}

func Test_Summaries_Unknown_Member(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Summaries(context.Background(), "ghost")
	require.ErrorIs(t, err, chaterrors.ErrNotFound)
}
