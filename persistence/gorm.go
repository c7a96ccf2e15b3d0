package persistence

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/campushub/studyhub/config"
	"github.com/campushub/studyhub/types"
)

type GormPersist struct {
	db *gorm.DB

	// serializes the membership read-check-then-write so the capacity
	// invariant holds under concurrent joins
	joinMu sync.Mutex
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	p := GormPersist{db: db}
	return &p, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	err = db.SetupJoinTable(&types.Group{}, "Members", &types.GroupMember{})
	if err != nil {
		return nil, err
	}
	err = db.Migrator().AutoMigrate(&types.User{}, &types.Group{}, &types.GroupMember{}, &types.Message{}, &types.Meeting{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (p *GormPersist) CreateUser(user *types.User) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&types.User{}).Where("email = ?", user.Email).Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicate
		}
		return tx.Create(user).Error
	})
}

func (p *GormPersist) GetUser(id uint) (*types.User, error) {
	user := types.User{}
	err := p.db.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (p *GormPersist) GetUserByEmail(email string) (*types.User, error) {
	user := types.User{}
	err := p.db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (p *GormPersist) UpdateUser(user *types.User) error {
	return p.db.Save(user).Error
}

func (p *GormPersist) Users() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.Order("id").Find(&users).Error
	return users, err
}

func (p *GormPersist) Groups() ([]*types.Group, error) {
	groups := make([]*types.Group, 0)
	err := p.db.Preload("Members").Order("id").Find(&groups).Error
	return groups, err
}

// CreateGroup stores the group and auto-adds the creator as its first
// member in the same transaction.
func (p *GormPersist) CreateGroup(group *types.Group) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&types.User{}).Where("id = ?", group.CreatorId).Count(&count).Error
		if err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		members := group.Members
		group.Members = nil
		if err := tx.Create(group).Error; err != nil {
			group.Members = members
			return err
		}
		group.Members = members
		return tx.Create(&types.GroupMember{GroupId: group.Id, UserId: group.CreatorId, JoinedAt: time.Now()}).Error
	})
}

func (p *GormPersist) GetGroup(id uint) (*types.Group, error) {
	group := types.Group{}
	err := p.db.Preload("Members").First(&group, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (p *GormPersist) GroupsForUser(userId uint) ([]*types.Group, error) {
	ids := make([]uint, 0)
	err := p.db.Model(&types.GroupMember{}).Where("user_id = ?", userId).Pluck("group_id", &ids).Error
	if err != nil {
		return nil, err
	}
	groups := make([]*types.Group, 0)
	if len(ids) == 0 {
		return groups, nil
	}
	err = p.db.Preload("Members").Where("id IN ?", ids).Order("id").Find(&groups).Error
	return groups, err
}

// AvailableGroups returns the groups the user is not a member of and that
// still have a free spot.
func (p *GormPersist) AvailableGroups(userId uint) ([]*types.Group, error) {
	groups := make([]*types.Group, 0)
	err := p.db.Preload("Members").Order("id").Find(&groups).Error
	if err != nil {
		return nil, err
	}
	available := make([]*types.Group, 0, len(groups))
	for _, g := range groups {
		if g.HasMember(userId) || g.SpotsLeft() <= 0 {
			continue
		}
		available = append(available, g)
	}
	return available, nil
}

// JoinGroup adds the user iff it is not a member yet and the group is below
// capacity. Check and insert happen in one transaction, serialized by
// joinMu, so concurrent joins can never exceed the capacity.
func (p *GormPersist) JoinGroup(groupId, userId uint) error {
	p.joinMu.Lock()
	defer p.joinMu.Unlock()
	return p.db.Transaction(func(tx *gorm.DB) error {
		group := types.Group{}
		err := tx.First(&group, groupId).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var count int64
		err = tx.Model(&types.GroupMember{}).Where("group_id = ? AND user_id = ?", groupId, userId).Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyMember
		}
		err = tx.Model(&types.GroupMember{}).Where("group_id = ?", groupId).Count(&count).Error
		if err != nil {
			return err
		}
		if int(count) >= group.Capacity {
			return ErrFull
		}
		return tx.Create(&types.GroupMember{GroupId: groupId, UserId: userId, JoinedAt: time.Now()}).Error
	})
}

// LeaveGroup removes the membership. Messages and meetings created by the
// departed user keep their attribution.
func (p *GormPersist) LeaveGroup(groupId, userId uint) error {
	res := p.db.Where("group_id = ? AND user_id = ?", groupId, userId).Delete(&types.GroupMember{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *GormPersist) IsMember(groupId, userId uint) (bool, error) {
	var count int64
	err := p.db.Model(&types.GroupMember{}).Where("group_id = ? AND user_id = ?", groupId, userId).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *GormPersist) AppendMessage(msg *types.Message) error {
	err := p.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&types.Group{}).Where("id = ?", msg.GroupId).Count(&count).Error
		if err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		err = tx.Model(&types.User{}).Where("id = ?", msg.UserId).Count(&count).Error
		if err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return tx.Create(msg).Error
	})
	if err != nil {
		return err
	}
	return p.expandAuthors([]*types.Message{msg})
}

// MessagesForGroup returns the full ordered log, creation time ascending
// with the storage id breaking ties.
func (p *GormPersist) MessagesForGroup(groupId uint) ([]*types.Message, error) {
	messages := make([]*types.Message, 0)
	err := p.db.Where("group_id = ?", groupId).Order("created_at, id").Find(&messages).Error
	if err != nil {
		return nil, err
	}
	if err := p.expandAuthors(messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (p *GormPersist) FilesForGroup(groupId uint) ([]types.FileEntry, error) {
	messages := make([]*types.Message, 0)
	err := p.db.Where("group_id = ? AND kind = ?", groupId, types.MessageKindFile).Order("created_at, id").Find(&messages).Error
	if err != nil {
		return nil, err
	}
	if err := p.expandAuthors(messages); err != nil {
		return nil, err
	}
	entries := make([]types.FileEntry, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, m.AsFileEntry())
	}
	return entries, nil
}

func (p *GormPersist) GetMessage(id uint) (*types.Message, error) {
	msg := types.Message{}
	err := p.db.First(&msg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := p.expandAuthors([]*types.Message{&msg}); err != nil {
		return nil, err
	}
	return &msg, nil
}

// expandAuthors fills the denormalized author names for display.
func (p *GormPersist) expandAuthors(messages []*types.Message) error {
	if len(messages) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(messages))
	seen := make(map[uint]struct{}, len(messages))
	for _, m := range messages {
		if _, ok := seen[m.UserId]; !ok {
			seen[m.UserId] = struct{}{}
			ids = append(ids, m.UserId)
		}
	}
	users := make([]*types.User, 0, len(ids))
	err := p.db.Where("id IN ?", ids).Find(&users).Error
	if err != nil {
		return err
	}
	names := make(map[uint]string, len(users))
	for _, u := range users {
		names[u.Id] = u.Name
	}
	for _, m := range messages {
		m.AuthorName = names[m.UserId]
	}
	return nil
}

func (p *GormPersist) CreateMeeting(meeting *types.Meeting) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&types.Group{}).Where("id = ?", meeting.GroupId).Count(&count).Error
		if err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return tx.Create(meeting).Error
	})
}

// MeetingsForUser returns the meetings of all groups the user belongs to,
// ascending by start time. Past meetings are included.
func (p *GormPersist) MeetingsForUser(userId uint) ([]*types.Meeting, error) {
	ids := make([]uint, 0)
	err := p.db.Model(&types.GroupMember{}).Where("user_id = ?", userId).Pluck("group_id", &ids).Error
	if err != nil {
		return nil, err
	}
	meetings := make([]*types.Meeting, 0)
	if len(ids) == 0 {
		return meetings, nil
	}
	err = p.db.Where("group_id IN ?", ids).Find(&meetings).Error
	if err != nil {
		return nil, err
	}
	sort.Slice(meetings, func(i, j int) bool { return meetings[i].StartsAt.Before(meetings[j].StartsAt) })
	return meetings, nil
}

func (p *GormPersist) FilePathsInUse() (map[string]struct{}, error) {
	paths := make([]string, 0)
	err := p.db.Model(&types.Message{}).Where("kind = ?", types.MessageKindFile).Pluck("file_path", &paths).Error
	if err != nil {
		return nil, err
	}
	avatars := make([]string, 0)
	err = p.db.Model(&types.User{}).Where("avatar_path <> ''").Pluck("avatar_path", &avatars).Error
	if err != nil {
		return nil, err
	}
	inUse := make(map[string]struct{}, len(paths)+len(avatars))
	for _, p := range paths {
		inUse[p] = struct{}{}
	}
	for _, p := range avatars {
		inUse[p] = struct{}{}
	}
	return inUse, nil
}

func (p *GormPersist) Close() error {
	return nil
}
