package api

import (
	"fmt"
	"net/http"

	"github.com/campushub/studyhub/persistence"
	"github.com/campushub/studyhub/types"
	"github.com/campushub/studyhub/upload"
)

type FileHandler struct {
	Store persistence.Persister
	Relay *upload.Relay
}

// ListForGroup returns the group's file messages re-shaped as a file
// listing, titles with the attachment marker stripped.
func (h *FileHandler) ListForGroup(w http.ResponseWriter, r *http.Request) {
	groupId, ok := pathId(w, r, "groupId")
	if !ok {
		return
	}
	if !h.requireMember(w, groupId, UserIdFrom(r)) {
		return
	}
	entries, err := h.Store.FilesForGroup(groupId)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// Download streams a stored file. The stored path is resolved against the
// upload root; anything resolving outside of it is treated as absent.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	fileId, ok := pathId(w, r, "fileId")
	if !ok {
		return
	}
	msg, err := h.Store.GetMessage(fileId)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if msg.Kind != types.MessageKindFile {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	if !h.requireMember(w, msg.GroupId, UserIdFrom(r)) {
		return
	}
	abs, err := h.Relay.Resolve(msg.FilePath)
	if err != nil {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", msg.FileName))
	http.ServeFile(w, r, abs)
}

func (h *FileHandler) requireMember(w http.ResponseWriter, groupId, userId uint) bool {
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
