package types

import (
	"strings"
	"time"
)

const (
	MessageKindText = "text"
	MessageKindFile = "file"
)

// AttachmentMarker prefixes the display body of file messages. The file
// listing strips it again to recover the plain title.
const AttachmentMarker = "\U0001F4CE "

// Message is one entry of a group's append-only chat log. Entries are
// immutable once stored; the auto-increment id breaks creation-time ties
// in storage order.
type Message struct {
	Id         uint      `json:"id" gorm:"primaryKey"`
	GroupId    uint      `json:"group_id" gorm:"index"`
	UserId     uint      `json:"user_id"`
	AuthorName string    `json:"author_name" gorm:"-"` // denormalized for display
	Kind       string    `json:"kind"`
	Body       string    `json:"body"`
	FilePath   string    `json:"file_path,omitempty"` // relative to the upload root
	FileName   string    `json:"file_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewTextMessage(groupId, userId uint, body string) *Message {
	return &Message{
		GroupId:   groupId,
		UserId:    userId,
		Kind:      MessageKindText,
		Body:      body,
		CreatedAt: time.Now(),
	}
}

func NewFileMessage(groupId, userId uint, storedPath, originalName string) *Message {
	return &Message{
		GroupId:   groupId,
		UserId:    userId,
		Kind:      MessageKindFile,
		Body:      AttachmentMarker + originalName,
		FilePath:  storedPath,
		FileName:  originalName,
		CreatedAt: time.Now(),
	}
}

// FileEntry is the file-listing view of a file message.
type FileEntry struct {
	Id         uint      `json:"id"`
	GroupId    uint      `json:"group_id"`
	Title      string    `json:"title"`
	FileName   string    `json:"file_name"`
	Path       string    `json:"path"`
	UploadedBy string    `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// AsFileEntry re-shapes a file message for the file listing. The title is
// the stored body minus the attachment marker.
func (m *Message) AsFileEntry() FileEntry {
	return FileEntry{
		Id:         m.Id,
		GroupId:    m.GroupId,
		Title:      strings.TrimPrefix(m.Body, AttachmentMarker),
		FileName:   m.FileName,
		Path:       m.FilePath,
		UploadedBy: m.AuthorName,
		CreatedAt:  m.CreatedAt,
	}
}
