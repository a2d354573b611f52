package model

import "time"

// Profile is a founder/talent listing. One per user.
type Profile struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Headline   string    `json:"headline"`
	Bio        string    `json:"bio"`
	Skills     []string  `json:"skills"`
	LookingFor string    `json:"looking_for"` // "cofounder", "talent", "project"
	Location   string    `json:"location"`
	Visible    bool      `json:"visible"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ProfileUpsertRequest struct {
	Headline   string   `json:"headline"`
	Bio        string   `json:"bio"`
	Skills     []string `json:"skills"`
	LookingFor string   `json:"looking_for"`
	Location   string   `json:"location"`
	Visible    *bool    `json:"visible,omitempty"`
}

type ProfileSearchQuery struct {
	Skill      string
	LookingFor string
	Location   string
	Limit      int
	Offset     int
}
