package persistence

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/buntdb"

	"github.com/campushub/studyhub/config"
	"github.com/campushub/studyhub/types"
)

// BuntDBPersist is the embedded single-file alternative to the gorm
// backend. BuntDB serializes all writes, so the membership capacity check
// runs atomically inside a single Update transaction.
type BuntDBPersist struct {
	db *buntdb.DB
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	db, err := setupBuntDB(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	return &BuntDBPersist{db}, nil
}

func setupBuntDB(cfg *config.Config) (*buntdb.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil
	}
	db, err := buntdb.Open(cfg.PersistenceConfig.DSN)
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex("meetingsts", "meeting:*", buntdb.IndexJSON("starts_at"))
	if err != nil && err != buntdb.ErrIndexExists {
		db.Close()
		return nil, err
	}
	return db, nil
}

// fixed-width decimal keys keep the lexicographic key order equal to the
// numeric insertion order
func seqKey(id uint) string {
	return fmt.Sprintf("%020d", id)
}

func userKey(id uint) string    { return "user:" + seqKey(id) }
func groupKey(id uint) string   { return "group:" + seqKey(id) }
func membersKey(id uint) string { return "members:" + seqKey(id) }
func meetingKey(id uint) string { return "meeting:" + seqKey(id) }
func messageKey(groupId, id uint) string {
	return "message:" + seqKey(groupId) + ":" + seqKey(id)
}

func nextSeq(tx *buntdb.Tx, name string) (uint, error) {
	key := "seq:" + name
	n := uint64(0)
	val, err := tx.Get(key)
	if err == nil {
		n, err = strconv.ParseUint(val, 10, 64)
		if err != nil {
			return 0, err
		}
	} else if err != buntdb.ErrNotFound {
		return 0, err
	}
	n++
	_, _, err = tx.Set(key, strconv.FormatUint(n, 10), nil)
	return uint(n), err
}

func getJSON(tx *buntdb.Tx, key string, out interface{}) error {
	val, err := tx.Get(key)
	if err == buntdb.ErrNotFound {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), out)
}

func setJSON(tx *buntdb.Tx, key string, in interface{}) error {
	val, err := json.Marshal(in)
	if err != nil {
		return err
	}
	_, _, err = tx.Set(key, string(val), nil)
	return err
}

func getMemberIds(tx *buntdb.Tx, groupId uint) ([]uint, error) {
	ids := make([]uint, 0)
	err := getJSON(tx, membersKey(groupId), &ids)
	if err == ErrNotFound {
		return ids, nil
	}
	return ids, err
}

func (p *BuntDBPersist) CreateUser(user *types.User) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get("useremail:" + user.Email); err == nil {
			return ErrDuplicate
		} else if err != buntdb.ErrNotFound {
			return err
		}
		id, err := nextSeq(tx, "user")
		if err != nil {
			return err
		}
		user.Id = id
		if _, _, err := tx.Set("useremail:"+user.Email, strconv.FormatUint(uint64(id), 10), nil); err != nil {
			return err
		}
		return setJSON(tx, userKey(id), user)
	})
}

func (p *BuntDBPersist) GetUser(id uint) (*types.User, error) {
	user := types.User{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		return getJSON(tx, userKey(id), &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (p *BuntDBPersist) GetUserByEmail(email string) (*types.User, error) {
	user := types.User{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get("useremail:" + email)
		if err == buntdb.ErrNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		id, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return err
		}
		return getJSON(tx, userKey(uint(id)), &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (p *BuntDBPersist) UpdateUser(user *types.User) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		old := types.User{}
		if err := getJSON(tx, userKey(user.Id), &old); err != nil {
			return err
		}
		if old.Email != user.Email {
			if _, err := tx.Delete("useremail:" + old.Email); err != nil && err != buntdb.ErrNotFound {
				return err
			}
			if _, _, err := tx.Set("useremail:"+user.Email, strconv.FormatUint(uint64(user.Id), 10), nil); err != nil {
				return err
			}
		}
		return setJSON(tx, userKey(user.Id), user)
	})
}

func (p *BuntDBPersist) Users() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		var iterErr error
		err := tx.AscendKeys("user:*", func(_, val string) bool {
			user := types.User{}
			if err := json.Unmarshal([]byte(val), &user); err != nil {
				iterErr = err
				return false
			}
			users = append(users, &user)
			return true
		})
		if err != nil {
			return err
		}
		return iterErr
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (p *BuntDBPersist) Groups() ([]*types.Group, error) {
	var groups []*types.Group
	err := p.db.View(func(tx *buntdb.Tx) error {
		var err error
		groups, err = p.allGroups(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (p *BuntDBPersist) CreateGroup(group *types.Group) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(userKey(group.CreatorId)); err == buntdb.ErrNotFound {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		id, err := nextSeq(tx, "group")
		if err != nil {
			return err
		}
		group.Id = id
		members := group.Members
		group.Members = nil
		err = setJSON(tx, groupKey(id), group)
		group.Members = members
		if err != nil {
			return err
		}
		return setJSON(tx, membersKey(id), []uint{group.CreatorId})
	})
}

func (p *BuntDBPersist) loadGroup(tx *buntdb.Tx, id uint) (*types.Group, error) {
	group := types.Group{}
	if err := getJSON(tx, groupKey(id), &group); err != nil {
		return nil, err
	}
	ids, err := getMemberIds(tx, id)
	if err != nil {
		return nil, err
	}
	group.Members = make([]types.User, 0, len(ids))
	for _, uid := range ids {
		user := types.User{}
		if err := getJSON(tx, userKey(uid), &user); err != nil {
			return nil, err
		}
		group.Members = append(group.Members, user)
	}
	return &group, nil
}

func (p *BuntDBPersist) GetGroup(id uint) (*types.Group, error) {
	var group *types.Group
	err := p.db.View(func(tx *buntdb.Tx) error {
		var err error
		group, err = p.loadGroup(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (p *BuntDBPersist) allGroups(tx *buntdb.Tx) ([]*types.Group, error) {
	ids := make([]uint, 0)
	var iterErr error
	err := tx.AscendKeys("group:*", func(key, _ string) bool {
		id, err := strconv.ParseUint(strings.TrimPrefix(key, "group:"), 10, 64)
		if err != nil {
			iterErr = err
			return false
		}
		ids = append(ids, uint(id))
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	groups := make([]*types.Group, 0, len(ids))
	for _, id := range ids {
		group, err := p.loadGroup(tx, id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func (p *BuntDBPersist) GroupsForUser(userId uint) ([]*types.Group, error) {
	groups := make([]*types.Group, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		all, err := p.allGroups(tx)
		if err != nil {
			return err
		}
		for _, g := range all {
			if g.HasMember(userId) {
				groups = append(groups, g)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (p *BuntDBPersist) AvailableGroups(userId uint) ([]*types.Group, error) {
	groups := make([]*types.Group, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		all, err := p.allGroups(tx)
		if err != nil {
			return err
		}
		for _, g := range all {
			if !g.HasMember(userId) && g.SpotsLeft() > 0 {
				groups = append(groups, g)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (p *BuntDBPersist) JoinGroup(groupId, userId uint) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		group := types.Group{}
		if err := getJSON(tx, groupKey(groupId), &group); err != nil {
			return err
		}
		if _, err := tx.Get(userKey(userId)); err == buntdb.ErrNotFound {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		ids, err := getMemberIds(tx, groupId)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if id == userId {
				return ErrAlreadyMember
			}
		}
		if len(ids) >= group.Capacity {
			return ErrFull
		}
		return setJSON(tx, membersKey(groupId), append(ids, userId))
	})
}

func (p *BuntDBPersist) LeaveGroup(groupId, userId uint) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(groupKey(groupId)); err == buntdb.ErrNotFound {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		ids, err := getMemberIds(tx, groupId)
		if err != nil {
			return err
		}
		kept := ids[:0]
		for _, id := range ids {
			if id != userId {
				kept = append(kept, id)
			}
		}
		if len(kept) == len(ids) {
			return ErrNotFound
		}
		return setJSON(tx, membersKey(groupId), kept)
	})
}

func (p *BuntDBPersist) IsMember(groupId, userId uint) (bool, error) {
	member := false
	err := p.db.View(func(tx *buntdb.Tx) error {
		ids, err := getMemberIds(tx, groupId)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if id == userId {
				member = true
				break
			}
		}
		return nil
	})
	return member, err
}

func (p *BuntDBPersist) AppendMessage(msg *types.Message) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(groupKey(msg.GroupId)); err == buntdb.ErrNotFound {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		author := types.User{}
		if err := getJSON(tx, userKey(msg.UserId), &author); err != nil {
			return err
		}
		id, err := nextSeq(tx, "message")
		if err != nil {
			return err
		}
		msg.Id = id
		msg.AuthorName = author.Name
		return setJSON(tx, messageKey(msg.GroupId, id), msg)
	})
}

func (p *BuntDBPersist) messagesForGroup(tx *buntdb.Tx, groupId uint) ([]*types.Message, error) {
	messages := make([]*types.Message, 0)
	var iterErr error
	prefix := "message:" + seqKey(groupId) + ":"
	err := tx.AscendKeys(prefix+"*", func(_, val string) bool {
		msg := types.Message{}
		if err := json.Unmarshal([]byte(val), &msg); err != nil {
			iterErr = err
			return false
		}
		messages = append(messages, &msg)
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	// key order already is insertion order, creation time only reorders
	// entries whose clock readings disagree with it
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].Id < messages[j].Id
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	for _, msg := range messages {
		author := types.User{}
		if err := getJSON(tx, userKey(msg.UserId), &author); err == nil {
			msg.AuthorName = author.Name
		}
	}
	return messages, nil
}

func (p *BuntDBPersist) MessagesForGroup(groupId uint) ([]*types.Message, error) {
	var messages []*types.Message
	err := p.db.View(func(tx *buntdb.Tx) error {
		var err error
		messages, err = p.messagesForGroup(tx, groupId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (p *BuntDBPersist) FilesForGroup(groupId uint) ([]types.FileEntry, error) {
	messages, err := p.MessagesForGroup(groupId)
	if err != nil {
		return nil, err
	}
	entries := make([]types.FileEntry, 0)
	for _, m := range messages {
		if m.Kind == types.MessageKindFile {
			entries = append(entries, m.AsFileEntry())
		}
	}
	return entries, nil
}

func (p *BuntDBPersist) GetMessage(id uint) (*types.Message, error) {
	var msg *types.Message
	err := p.db.View(func(tx *buntdb.Tx) error {
		suffix := ":" + seqKey(id)
		err := tx.AscendKeys("message:*", func(key, val string) bool {
			if !strings.HasSuffix(key, suffix) {
				return true
			}
			m := types.Message{}
			if json.Unmarshal([]byte(val), &m) == nil {
				msg = &m
			}
			return false
		})
		if err != nil {
			return err
		}
		if msg == nil {
			return ErrNotFound
		}
		author := types.User{}
		if err := getJSON(tx, userKey(msg.UserId), &author); err == nil {
			msg.AuthorName = author.Name
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (p *BuntDBPersist) CreateMeeting(meeting *types.Meeting) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(groupKey(meeting.GroupId)); err == buntdb.ErrNotFound {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		id, err := nextSeq(tx, "meeting")
		if err != nil {
			return err
		}
		meeting.Id = id
		return setJSON(tx, meetingKey(id), meeting)
	})
}

func (p *BuntDBPersist) MeetingsForUser(userId uint) ([]*types.Meeting, error) {
	meetings := make([]*types.Meeting, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		memberOf := make(map[uint]struct{})
		all, err := p.allGroups(tx)
		if err != nil {
			return err
		}
		for _, g := range all {
			if g.HasMember(userId) {
				memberOf[g.Id] = struct{}{}
			}
		}
		var iterErr error
		err = tx.Ascend("meetingsts", func(_, val string) bool {
			meeting := types.Meeting{}
			if err := json.Unmarshal([]byte(val), &meeting); err != nil {
				iterErr = err
				return false
			}
			if _, ok := memberOf[meeting.GroupId]; ok {
				meetings = append(meetings, &meeting)
			}
			return true
		})
		if err != nil {
			return err
		}
		return iterErr
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(meetings, func(i, j int) bool { return meetings[i].StartsAt.Before(meetings[j].StartsAt) })
	return meetings, nil
}

func (p *BuntDBPersist) FilePathsInUse() (map[string]struct{}, error) {
	inUse := make(map[string]struct{})
	err := p.db.View(func(tx *buntdb.Tx) error {
		var iterErr error
		err := tx.AscendKeys("message:*", func(_, val string) bool {
			msg := types.Message{}
			if err := json.Unmarshal([]byte(val), &msg); err != nil {
				iterErr = err
				return false
			}
			if msg.Kind == types.MessageKindFile && msg.FilePath != "" {
				inUse[msg.FilePath] = struct{}{}
			}
			return true
		})
		if err != nil {
			return err
		}
		if iterErr != nil {
			return iterErr
		}
		err = tx.AscendKeys("user:*", func(_, val string) bool {
			user := types.User{}
			if err := json.Unmarshal([]byte(val), &user); err != nil {
				iterErr = err
				return false
			}
			if user.AvatarPath != "" {
				inUse[user.AvatarPath] = struct{}{}
			}
			return true
		})
		if err != nil {
			return err
		}
		return iterErr
	})
	if err != nil {
		return nil, err
	}
	return inUse, nil
}

func (p *BuntDBPersist) Close() error {
	return p.db.Close()
}
