package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/campushub/studyhub/persistence"
	"github.com/campushub/studyhub/types"
	"github.com/campushub/studyhub/upload"
	"github.com/campushub/studyhub/ws"
)

type MessageHandler struct {
	Store persistence.Persister
	Relay *upload.Relay
	Hub   *ws.Hub
}

// List returns the group's full message log, creation time ascending. This
// is the authoritative sync path the clients poll; it is a pure read.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	groupId, ok := pathId(w, r, "groupId")
	if !ok {
		return
	}
	if !h.requireMember(w, groupId, UserIdFrom(r)) {
		return
	}
	messages, err := h.Store.MessagesForGroup(groupId)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messages)
}

type sendMessageRequest struct {
	GroupId uint   `json:"group_id"`
	Text    string `json:"text"`
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	req := sendMessageRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.GroupId == 0 {
		respondError(w, http.StatusBadRequest, "group_id is required")
		return
	}
	userId := UserIdFrom(r)
	if !h.requireMember(w, req.GroupId, userId) {
		return
	}
	msg := types.NewTextMessage(req.GroupId, userId, req.Text)
	if err := h.Store.AppendMessage(msg); err != nil {
		respondStoreError(w, err)
		return
	}
	h.push(msg)
	respondJSON(w, http.StatusCreated, msg)
}

// Upload accepts a multipart file for a group, relays it to disk and
// appends a file message referencing the stored path.
func (h *MessageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "could not parse multipart form")
		return
	}
	groupId, err := strconv.ParseUint(r.FormValue("group_id"), 10, 64)
	if err != nil || groupId == 0 {
		respondError(w, http.StatusBadRequest, "group_id is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	userId := UserIdFrom(r)
	if !h.requireMember(w, uint(groupId), userId) {
		return
	}
	originalName := upload.FixEncoding(header.Filename)
	stored, err := h.Relay.Store("files", originalName, file)
	if errors.Is(err, upload.ErrTooLarge) {
		respondError(w, http.StatusBadRequest, "file exceeds the maximum upload size")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not store file")
		return
	}
	msg := types.NewFileMessage(uint(groupId), userId, stored, originalName)
	if err := h.Store.AppendMessage(msg); err != nil {
		respondStoreError(w, err)
		return
	}
	h.push(msg)
	respondJSON(w, http.StatusCreated, msg)
}

// push hands a stored message to the room router for advisory delivery.
func (h *MessageHandler) push(msg *types.Message) {
	if h.Hub == nil {
		return
	}
	select {
	case h.Hub.Broadcast <- msg:
	default:
	}
}

func (h *MessageHandler) requireMember(w http.ResponseWriter, groupId, userId uint) bool {
	member, err := h.Store.IsMember(groupId, userId)
	if err != nil {
		respondStoreError(w, err)
		return false
	}
	if !member {
		respondError(w, http.StatusForbidden, "not a member of this group")
		return false
	}
	return true
}
