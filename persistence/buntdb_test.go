package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/campushub/studyhub/config"
	"github.com/campushub/studyhub/types"
)

func newTestBuntPersister(t *testing.T) Persister {
	t.Helper()
	cfg := config.Config{
		PersistenceConfig: config.PersistenceConfig{
			Type: "buntdb",
			DSN:  ":memory:",
		},
	}
	p, err := NewBuntPersister(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	if p == nil {
		t.Fatal("no persister")
	}
	return p
}

func TestBuntCreateUserDuplicateEmail(t *testing.T) {
	p := newTestBuntPersister(t)
	defer p.Close()

	mustCreateUser(t, p, "alice", "alice@example.com")
	err := p.CreateUser(&types.User{Name: "other alice", Email: "alice@example.com"})
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := p.GetUserByEmail("alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "alice", got.Name)
}

func TestBuntJoinGroupCapacity(t *testing.T) {
	p := newTestBuntPersister(t)
	defer p.Close()

	alice := mustCreateUser(t, p, "alice", "alice@example.com")
	bob := mustCreateUser(t, p, "bob", "bob@example.com")
	carol := mustCreateUser(t, p, "carol", "carol@example.com")
	group := mustCreateGroup(t, p, alice.Id, "study", 2)

	assert.NoError(t, p.JoinGroup(group.Id, bob.Id))
	assert.ErrorIs(t, p.JoinGroup(group.Id, bob.Id), ErrAlreadyMember)
	assert.ErrorIs(t, p.JoinGroup(group.Id, carol.Id), ErrFull)
	assert.ErrorIs(t, p.JoinGroup(4711, bob.Id), ErrNotFound)

	got, err := p.GetGroup(group.Id)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, len(got.Members))
	assert.Equal(t, 0, got.SpotsLeft())
}

func TestBuntMessageOrderingAndFiles(t *testing.T) {
	p := newTestBuntPersister(t)
	defer p.Close()

	alice := mustCreateUser(t, p, "alice", "alice@example.com")
	group := mustCreateGroup(t, p, alice.Id, "study", 2)

	when := time.Now()
	for _, body := range []string{"first", "second"} {
		msg := types.NewTextMessage(group.Id, alice.Id, body)
		msg.CreatedAt = when
		assert.NoError(t, p.AppendMessage(msg))
	}
	assert.NoError(t, p.AppendMessage(types.NewFileMessage(group.Id, alice.Id, "files/xyz.pdf", "notes.pdf")))

	messages, err := p.MessagesForGroup(group.Id)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 3, len(messages))
	assert.Equal(t, "first", messages[0].Body)
	assert.Equal(t, "second", messages[1].Body)
	assert.Equal(t, "alice", messages[0].AuthorName)

	entries, err := p.FilesForGroup(group.Id)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, len(entries))
	assert.Equal(t, "notes.pdf", entries[0].Title)

	got, err := p.GetMessage(messages[2].Id)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "files/xyz.pdf", got.FilePath)
}

func TestBuntMeetingsForUser(t *testing.T) {
	p := newTestBuntPersister(t)
	defer p.Close()

	alice := mustCreateUser(t, p, "alice", "alice@example.com")
	bob := mustCreateUser(t, p, "bob", "bob@example.com")
	mine := mustCreateGroup(t, p, alice.Id, "mine", 2)
	other := mustCreateGroup(t, p, bob.Id, "other", 2)

	now := time.Now()
	assert.NoError(t, p.CreateMeeting(&types.Meeting{GroupId: mine.Id, CreatorId: alice.Id, StartsAt: now.Add(time.Hour)}))
	assert.NoError(t, p.CreateMeeting(&types.Meeting{GroupId: mine.Id, CreatorId: alice.Id, StartsAt: now.Add(30 * time.Minute)}))
	assert.NoError(t, p.CreateMeeting(&types.Meeting{GroupId: other.Id, CreatorId: bob.Id, StartsAt: now.Add(10 * time.Minute)}))

	meetings, err := p.MeetingsForUser(alice.Id)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, len(meetings))
	assert.True(t, meetings[0].StartsAt.Before(meetings[1].StartsAt))
}
