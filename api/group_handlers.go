package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/campushub/studyhub/filter"
	"github.com/campushub/studyhub/persistence"
	"github.com/campushub/studyhub/types"
)

type GroupHandler struct {
	Store persistence.Persister
}

type createGroupRequest struct {
	Name     string `json:"name"`
	Subject  string `json:"subject"`
	Program  string `json:"program"`
	Year     int    `json:"year"`
	Capacity int    `json:"capacity"`
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	req := createGroupRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Subject == "" {
		respondError(w, http.StatusBadRequest, "name and subject are required")
		return
	}
	if req.Capacity < 1 {
		respondError(w, http.StatusBadRequest, "capacity must be at least 1")
		return
	}
	group := &types.Group{
		Name:      req.Name,
		Subject:   req.Subject,
		Program:   req.Program,
		Year:      req.Year,
		Capacity:  req.Capacity,
		CreatorId: UserIdFrom(r),
		CreatedAt: time.Now(),
	}
	if err := h.Store.CreateGroup(group); err != nil {
		respondStoreError(w, err)
		return
	}
	created, err := h.Store.GetGroup(group.Id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// All lists the groups the caller could still join. An optional filter
// expression narrows the listing, f.e. `Subject == "calculus" && SpotsLeft > 0`.
func (h *GroupHandler) All(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Store.AvailableGroups(UserIdFrom(r))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if expression := r.URL.Query().Get("filter"); expression != "" {
		prog, err := filter.Compile(expression)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid filter expression")
			return
		}
		matched := make([]*types.Group, 0, len(groups))
		for _, g := range groups {
			if filter.Match(prog, g) {
				matched = append(matched, g)
			}
		}
		groups = matched
	}
	respondJSON(w, http.StatusOK, groups)
}

func (h *GroupHandler) My(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Store.GroupsForUser(UserIdFrom(r))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, groups)
}

func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	groupId, ok := pathId(w, r, "id")
	if !ok {
		return
	}
	if err := h.Store.JoinGroup(groupId, UserIdFrom(r)); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	groupId, ok := pathId(w, r, "id")
	if !ok {
		return
	}
	if err := h.Store.LeaveGroup(groupId, UserIdFrom(r)); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (h *GroupHandler) Info(w http.ResponseWriter, r *http.Request) {
	groupId, ok := pathId(w, r, "id")
	if !ok {
		return
	}
	group, err := h.Store.GetGroup(groupId)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

// pathId parses a numeric path variable, answering 400 itself on garbage.
func pathId(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil || id == 0 {
		respondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return uint(id), true
}
