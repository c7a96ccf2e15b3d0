package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/campushub/studyhub/types"
)

func TestSendAndListMessages(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice", "alice@example.com")
	bob := api.register(t, "bob", "bob@example.com")
	group := api.createGroup(t, alice.Token, "study", "calculus", 2)

	rr := api.do(t, http.MethodPost, "/messages/send", alice.Token, map[string]interface{}{
		"group_id": group.Id,
		"text":     "hello",
	})
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = api.do(t, http.MethodPost, "/messages/send", alice.Token, map[string]interface{}{
		"group_id": group.Id,
		"text":     "   ",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// non-members can neither write nor read
	rr = api.do(t, http.MethodPost, "/messages/send", bob.Token, map[string]interface{}{
		"group_id": group.Id,
		"text":     "let me in",
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "not a member of this group", decodeError(t, rr))

	rr = api.do(t, http.MethodGet, fmt.Sprintf("/messages/%d", group.Id), bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = api.do(t, http.MethodPost, "/messages/send", alice.Token, map[string]interface{}{
		"group_id": group.Id,
		"text":     "second",
	})
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = api.do(t, http.MethodGet, fmt.Sprintf("/messages/%d", group.Id), alice.Token, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	messages := []types.Message{}
	if err := json.Unmarshal(rr.Body.Bytes(), &messages); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, len(messages))
	assert.Equal(t, "hello", messages[0].Body)
	assert.Equal(t, "second", messages[1].Body)
	assert.Equal(t, "alice", messages[0].AuthorName)
}

func TestUploadListDownload(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice", "alice@example.com")
	bob := api.register(t, "bob", "bob@example.com")
	group := api.createGroup(t, alice.Token, "study", "calculus", 2)

	content := "chapter one notes"
	rr := api.doMultipart(t, "/messages/upload", alice.Token,
		map[string]string{"group_id": fmt.Sprint(group.Id)},
		"file", "notes.pdf", "application/pdf", content)
	assert.Equal(t, http.StatusCreated, rr.Code)
	msg := types.Message{}
	if err := json.Unmarshal(rr.Body.Bytes(), &msg); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, types.MessageKindFile, msg.Kind)
	assert.True(t, strings.HasPrefix(msg.Body, types.AttachmentMarker))
	assert.Equal(t, "notes.pdf", msg.FileName)

	// the file message shows up in the chat log and in the file listing
	rr = api.do(t, http.MethodGet, fmt.Sprintf("/messages/%d", group.Id), alice.Token, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = api.do(t, http.MethodGet, fmt.Sprintf("/files/group/%d", group.Id), alice.Token, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	entries := []types.FileEntry{}
	if err := json.Unmarshal(rr.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, len(entries))
	assert.Equal(t, "notes.pdf", entries[0].Title)
	assert.Equal(t, "alice", entries[0].UploadedBy)

	downloadPath := fmt.Sprintf("/files/%d/download", msg.Id)
	rr = api.do(t, http.MethodGet, downloadPath, alice.Token, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, content, rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Disposition"), `"notes.pdf"`)

	// membership gates the download as well
	rr = api.do(t, http.MethodGet, downloadPath, bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestUploadValidation(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice", "alice@example.com")
	api.createGroup(t, alice.Token, "study", "calculus", 2)

	rr := api.doMultipart(t, "/messages/upload", alice.Token,
		map[string]string{}, "file", "notes.pdf", "application/pdf", "content")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDownloadTextMessage(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice", "alice@example.com")
	group := api.createGroup(t, alice.Token, "study", "calculus", 2)

	rr := api.do(t, http.MethodPost, "/messages/send", alice.Token, map[string]interface{}{
		"group_id": group.Id,
		"text":     "just text",
	})
	assert.Equal(t, http.StatusCreated, rr.Code)
	msg := types.Message{}
	if err := json.Unmarshal(rr.Body.Bytes(), &msg); err != nil {
		t.Fatal(err)
	}

	// only file messages are downloadable
	rr = api.do(t, http.MethodGet, fmt.Sprintf("/files/%d/download", msg.Id), alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
