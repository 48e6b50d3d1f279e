// Package domain contains core concepts of the group chat system.
// This file defines the Group entity and its membership invariants.
// No storage, network, or transport logic should be added here.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"groupchat/errors"
)

type (
	// MemberID identifies a user owned by the external account system.
	MemberID string
	GroupID  string
)

// Group is a named collection of members with a subset designated admins.
// Invariants held by every mutation: admins is a subset of members, and
// admins is never empty while the group exists.
type Group struct {
	ID            GroupID
	Name          string
	Members       []MemberID // unique, insertion order preserved for display
	Admins        []MemberID
	CreatedAt     time.Time
	LastMessageID *MessageID
}

// NewGroup creates a group with the initiator as its sole admin. The
// initiator is always a member, whether or not it appears in members.
func NewGroup(name string, initiator MemberID, members []MemberID, at time.Time) (Group, error) {
	if strings.TrimSpace(name) == "" {
		return Group{}, errors.Validation("group name is empty")
	}
	all := lo.Uniq(members)
	if !lo.Contains(all, initiator) {
		all = append(all, initiator)
	}
	return Group{
		ID:        GroupID(uuid.NewString()),
		Name:      name,
		Members:   all,
		Admins:    []MemberID{initiator},
		CreatedAt: at,
	}, nil
}

func (g *Group) IsMember(id MemberID) bool {
	return lo.Contains(g.Members, id)
}

func (g *Group) IsAdmin(id MemberID) bool {
	return lo.Contains(g.Admins, id)
}

// AddMember appends a new member. Adding an existing member is reported as
// a conflict, not silently ignored.
func (g *Group) AddMember(id MemberID) error {
	if g.IsMember(id) {
		return errors.Conflict("member %s is already in group %s", id, g.ID)
	}
	g.Members = append(g.Members, id)
	return nil
}

// RemoveMember removes target from the member set, and from the admin set
// when present. It refuses any removal that would leave the group without
// an admin.
func (g *Group) RemoveMember(target MemberID) error {
	if !g.IsMember(target) {
		return errors.NotFound("member %s is not in group %s", target, g.ID)
	}
	admins := lo.Without(g.Admins, target)
	if len(admins) == 0 {
		return errors.Conflict("removing %s would leave group %s without admins", target, g.ID)
	}
	g.Members = lo.Without(g.Members, target)
	g.Admins = admins
	return nil
}

// Leave removes the member on their own initiative. The sole admin cannot
// leave without promoting a successor first.
func (g *Group) Leave(id MemberID) error {
	if !g.IsMember(id) {
		return errors.NotFound("member %s is not in group %s", id, g.ID)
	}
	if g.IsAdmin(id) && len(g.Admins) == 1 {
		return errors.Conflict("last admin must promote a successor before leaving")
	}
	g.Members = lo.Without(g.Members, id)
	g.Admins = lo.Without(g.Admins, id)
	return nil
}

// Promote grants admin authority to an existing member.
func (g *Group) Promote(target MemberID) error {
	if !g.IsMember(target) {
		return errors.NotFound("member %s is not in group %s", target, g.ID)
	}
	if g.IsAdmin(target) {
		return errors.Conflict("member %s is already an admin of group %s", target, g.ID)
	}
	g.Admins = append(g.Admins, target)
	return nil
}

func (g *Group) Rename(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.Validation("group name is empty")
	}
	g.Name = name
	return nil
}
