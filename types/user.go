package types

import "time"

type User struct {
	Id           uint          `json:"id" gorm:"primaryKey"`
	Name         string        `json:"name"`
	Email        string        `json:"email" gorm:"uniqueIndex"` // unique!
	PasswordHash string        `json:"-"`
	School       string        `json:"school"`
	Program      string        `json:"program"`
	Year         int           `json:"year"`
	AvatarPath   string        `json:"avatar_path"` // relative to the upload root
	Tags         JSONStringMap `json:"tags"`
	CreatedAt    time.Time     `json:"created_at"`
}
