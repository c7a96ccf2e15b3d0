package persistence

import (
	"errors"
	"fmt"

	"github.com/campushub/studyhub/config"
	"github.com/campushub/studyhub/types"
)

var (
	// ErrNotFound is returned when a referenced user, group, message or
	// meeting does not exist.
	ErrNotFound = errors.New("not found")
	// ErrFull is returned by JoinGroup when the group is at capacity.
	ErrFull = errors.New("group is full")
	// ErrAlreadyMember is returned by JoinGroup for an existing member.
	ErrAlreadyMember = errors.New("already a member")
	// ErrDuplicate is returned by CreateUser on an e-mail conflict.
	ErrDuplicate = errors.New("already exists")
)

type Persister interface {
	CreateUser(user *types.User) error
	GetUser(id uint) (*types.User, error)
	GetUserByEmail(email string) (*types.User, error)
	UpdateUser(user *types.User) error
	Users() ([]*types.User, error)

	Groups() ([]*types.Group, error)

	CreateGroup(group *types.Group) error
	GetGroup(id uint) (*types.Group, error)
	GroupsForUser(userId uint) ([]*types.Group, error)
	AvailableGroups(userId uint) ([]*types.Group, error)
	JoinGroup(groupId, userId uint) error
	LeaveGroup(groupId, userId uint) error
	IsMember(groupId, userId uint) (bool, error)

	AppendMessage(msg *types.Message) error
	MessagesForGroup(groupId uint) ([]*types.Message, error)
	FilesForGroup(groupId uint) ([]types.FileEntry, error)
	GetMessage(id uint) (*types.Message, error)

	CreateMeeting(meeting *types.Meeting) error
	MeetingsForUser(userId uint) ([]*types.Meeting, error)

	// FilePathsInUse returns every stored file path some message or
	// avatar still references, for the upload sweep.
	FilePathsInUse() (map[string]struct{}, error)

	Close() error
}

// NewPersister creates the Persister selected by the persistence
// configuration.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	case "buntdb":
		return NewBuntPersister(cfg)
	case "":
		return nil, fmt.Errorf("no persistence configured")
	}
	return nil, fmt.Errorf("invalid persistence type %q", cfg.PersistenceConfig.Type)
}
