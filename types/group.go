package types

import "time"

// A Group owns its message and meeting collections by reference. The
// Members association is kept in an explicit join table so that the
// capacity check and the insert can happen in one transaction.
type Group struct {
	Id        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Program   string    `json:"program"`
	Year      int       `json:"year"`
	Capacity  int       `json:"capacity"` // invariant: len(Members) <= Capacity
	CreatorId uint      `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
	Members   []User    `json:"members,omitempty" gorm:"many2many:group_members"`
}

type GroupMember struct {
	GroupId  uint      `json:"group_id" gorm:"primaryKey"`
	UserId   uint      `json:"user_id" gorm:"primaryKey"`
	JoinedAt time.Time `json:"joined_at"`
}

// SpotsLeft returns the number of free places, assuming Members is loaded.
func (g *Group) SpotsLeft() int {
	return g.Capacity - len(g.Members)
}

func (g *Group) HasMember(userId uint) bool {
	for _, m := range g.Members {
		if m.Id == userId {
			return true
		}
	}
	return false
}
