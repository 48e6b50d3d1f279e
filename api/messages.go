package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"

	chaterrors "groupchat/errors"

	"groupchat/domain"
)

type sendTextRequest struct {
	SenderID    string `json:"senderId" validate:"required"`
	MessageType string `json:"messageType" validate:"required,oneof=text file"`
	Content     string `json:"content"`
}

// SendMessage accepts a text message as JSON, or a file message as
// multipart/form-data with senderId and file parts. The file payload
// travels as an opaque blob; only its metadata is interpreted here.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var (
		sender  domain.MemberID
		content domain.Content
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var err error
		sender, content, err = h.decodeFileMessage(r)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
	} else {
		var req sendTextRequest
		if err := decode(r, &req); err != nil {
			writeError(w, h.log, err)
			return
		}
		if req.MessageType != "text" {
			writeError(w, h.log,
				chaterrors.Validation("file messages must be sent as multipart/form-data"))
			return
		}
		sender = domain.MemberID(req.SenderID)
		content = domain.Text{Body: req.Content}
	}

	view, err := h.chat.PostMessage(r.Context(), domain.PostMessageCommand{
		Group:   groupID(r),
		Sender:  sender,
		Content: content,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageView(view))
}

func (h *Handler) decodeFileMessage(r *http.Request) (domain.MemberID, domain.Content, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, h.maxFileBytes)
	if err := r.ParseMultipartForm(h.maxFileBytes); err != nil {
		return "", nil, chaterrors.Validation("invalid multipart body: %v", err)
	}
	sender := r.FormValue("senderId")
	if sender == "" {
		return "", nil, chaterrors.Validation("senderId is required")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, chaterrors.Validation("file part is missing: %v", err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, chaterrors.Validation("file part is unreadable: %v", err)
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}
	return domain.MemberID(sender), domain.File{
		Data:        data,
		ContentType: contentType,
		FileName:    header.Filename,
	}, nil
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	views, err := h.chat.ListMessages(r.Context(), groupID(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageViews(views))
}

func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	terms := r.URL.Query().Get("q")
	if strings.TrimSpace(terms) == "" {
		writeError(w, h.log, chaterrors.Validation("query parameter q is required"))
		return
	}
	views, err := h.chat.SearchMessages(r.Context(), groupID(r), terms)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageViews(views))
}

type deleteMessageRequest struct {
	ActorID string `json:"actorId" validate:"required"`
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	var req deleteMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	id := domain.MessageID(mux.Vars(r)["messageId"])
	if err := h.chat.DeleteMessage(r.Context(), id, domain.MemberID(req.ActorID)); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "message deleted"})
}

type markSeenRequest struct {
	MemberID string `json:"memberId" validate:"required"`
}

func (h *Handler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	var req markSeenRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	id := domain.MessageID(mux.Vars(r)["messageId"])
	if err := h.chat.MarkSeen(r.Context(), id, domain.MemberID(req.MemberID)); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
