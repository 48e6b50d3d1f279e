package domain

// CreateGroupCommand carries the intent to open a new group. The initiator
// becomes the first admin.
type CreateGroupCommand struct {
	Name      string
	Initiator MemberID
	Members   []MemberID
}

// PostMessageCommand carries the intent to author a message in a group.
type PostMessageCommand struct {
	Group   GroupID
	Sender  MemberID
	Content Content
}
