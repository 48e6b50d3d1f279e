package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"groupchat/domain"
	"groupchat/services"
)

type createGroupRequest struct {
	Name    string   `json:"name" validate:"required"`
	AdminID string   `json:"adminId" validate:"required"`
	Members []string `json:"members"`
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	group, err := h.chat.CreateGroup(r.Context(), domain.CreateGroupCommand{
		Name:      req.Name,
		Initiator: domain.MemberID(req.AdminID),
		Members:   memberIDs(req.Members),
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupView(group))
}

type memberRequest struct {
	MemberID string `json:"memberId" validate:"required"`
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	group, err := h.chat.AddMember(r.Context(), groupID(r), domain.MemberID(req.MemberID))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupView(group))
}

type adminActionRequest struct {
	AdminID  string `json:"adminId" validate:"required"`
	MemberID string `json:"memberId" validate:"required"`
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	var req adminActionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	group, err := h.chat.RemoveMember(r.Context(), groupID(r),
		domain.MemberID(req.AdminID), domain.MemberID(req.MemberID))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupView(group))
}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	var req adminActionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	group, err := h.chat.PromoteAdmin(r.Context(), groupID(r),
		domain.MemberID(req.AdminID), domain.MemberID(req.MemberID))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupView(group))
}

type leaveGroupRequest struct {
	UserID string `json:"userId" validate:"required"`
}

func (h *Handler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	var req leaveGroupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	group, err := h.chat.LeaveGroup(r.Context(), groupID(r), domain.MemberID(req.UserID))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupView(group))
}

type renameGroupRequest struct {
	NewName string `json:"newName" validate:"required"`
}

func (h *Handler) RenameGroup(w http.ResponseWriter, r *http.Request) {
	var req renameGroupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	group, err := h.chat.RenameGroup(r.Context(), groupID(r), req.NewName)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupView(group))
}

type deleteGroupRequest struct {
	AdminID string `json:"adminId" validate:"required"`
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	var req deleteGroupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.chat.DeleteGroup(r.Context(), groupID(r), domain.MemberID(req.AdminID)); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "group deleted"})
}

func (h *Handler) UserGroups(w http.ResponseWriter, r *http.Request) {
	member := domain.MemberID(mux.Vars(r)["userId"])
	summaries, err := h.chat.Summaries(r.Context(), member)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	views := lo.Map(summaries, func(s services.GroupSummary, _ int) summaryView {
		return toSummaryView(s)
	})
	writeJSON(w, http.StatusOK, map[string][]summaryView{"chatgroups": views})
}

func groupID(r *http.Request) domain.GroupID {
	return domain.GroupID(mux.Vars(r)["groupId"])
}
