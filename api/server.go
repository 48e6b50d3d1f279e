// Package api exposes the chat service over HTTP. Routes mirror the
// group-chat binding of the surrounding document-sharing application.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"groupchat/observability"
	"groupchat/services"
)

type Handler struct {
	log          *slog.Logger
	chat         services.IChatService
	maxFileBytes int64
}

func NewHandler(log *slog.Logger, chat services.IChatService, maxFileBytes int64) *Handler {
	return &Handler{log: log, chat: chat, maxFileBytes: maxFileBytes}
}

// Router wires every chat operation plus the metrics scrape endpoint.
func (h *Handler) Router(metrics *observability.Metrics, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()

	chat := r.PathPrefix("/chat").Subrouter()
	chat.HandleFunc("/creategroup", h.CreateGroup).Methods(http.MethodPost)
	chat.HandleFunc("/addmember/{groupId}", h.AddMember).Methods(http.MethodPost)
	chat.HandleFunc("/removemember/{groupId}", h.RemoveMember).Methods(http.MethodPost)
	chat.HandleFunc("/promoteadmin/{groupId}", h.PromoteAdmin).Methods(http.MethodPost)
	chat.HandleFunc("/leavegroup/{groupId}", h.LeaveGroup).Methods(http.MethodPost)
	chat.HandleFunc("/editgroupname/{groupId}", h.RenameGroup).Methods(http.MethodPut)
	chat.HandleFunc("/deletegroup/{groupId}", h.DeleteGroup).Methods(http.MethodDelete)

	chat.HandleFunc("/sendmessage/{groupId}", h.SendMessage).Methods(http.MethodPost)
	chat.HandleFunc("/messages/{groupId}", h.ListMessages).Methods(http.MethodGet)
	chat.HandleFunc("/search/{groupId}", h.SearchMessages).Methods(http.MethodGet)
	chat.HandleFunc("/deletemessage/{messageId}", h.DeleteMessage).Methods(http.MethodDelete)
	chat.HandleFunc("/markseen/{messageId}", h.MarkSeen).Methods(http.MethodPost)

	chat.HandleFunc("/usergroups/{userId}", h.UserGroups).Methods(http.MethodGet)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(metrics.Middleware(r))
}
