package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/campushub/studyhub/persistence"
	"github.com/campushub/studyhub/types"
)

const (
	meetingDateLayout = "2006-01-02"
	meetingTimeLayout = "15:04"
)

type MeetingHandler struct {
	Store persistence.Persister
}

type createMeetingRequest struct {
	GroupId  uint   `json:"group_id"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Location string `json:"location"`
	Notes    string `json:"notes"`
}

// Create combines the date and time fields into one instant in the
// server's location. Past instants are rejected here, not only on the
// client.
func (h *MeetingHandler) Create(w http.ResponseWriter, r *http.Request) {
	req := createMeetingRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GroupId == 0 {
		respondError(w, http.StatusBadRequest, "group_id is required")
		return
	}
	if req.Date == "" || req.Time == "" {
		respondError(w, http.StatusBadRequest, "date and time are required")
		return
	}
	startsAt, err := time.ParseInLocation(meetingDateLayout+" "+meetingTimeLayout, req.Date+" "+req.Time, time.Local)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date or time")
		return
	}
	if startsAt.Before(time.Now()) {
		respondError(w, http.StatusBadRequest, "meeting must not be in the past")
		return
	}
	userId := UserIdFrom(r)
	member, err := h.Store.IsMember(req.GroupId, userId)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if !member {
		respondError(w, http.StatusForbidden, "not a member of this group")
		return
	}
	meeting := &types.Meeting{
		GroupId:   req.GroupId,
		CreatorId: userId,
		StartsAt:  startsAt,
		Location:  req.Location,
		Notes:     req.Notes,
		CreatedAt: time.Now(),
	}
	if err := h.Store.CreateMeeting(meeting); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, meeting)
}

// My lists the meetings of all groups the caller belongs to, ascending by
// start time. Past meetings stay in the listing; filtering them is a
// client concern.
func (h *MeetingHandler) My(w http.ResponseWriter, r *http.Request) {
	meetings, err := h.Store.MeetingsForUser(UserIdFrom(r))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, meetings)
}
