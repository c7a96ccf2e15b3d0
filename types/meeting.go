package types

import "time"

// Meeting is a proposed study session. It is immutable once created;
// past meetings are kept and filtered by the client.
type Meeting struct {
	Id        uint      `json:"id" gorm:"primaryKey"`
	GroupId   uint      `json:"group_id" gorm:"index"`
	CreatorId uint      `json:"creator_id"`
	StartsAt  time.Time `json:"starts_at"`
	Location  string    `json:"location"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}
