package model

import "time"

// Project is a startup listing looking for co-founders or talent.
type Project struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Pitch       string    `json:"pitch"`
	Stage       string    `json:"stage"` // "idea", "prototype", "launched", "revenue"
	OpenRoles   []string  `json:"open_roles"`
	WebsiteURL  *string   `json:"website_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ProjectUpsertRequest struct {
	Name       string   `json:"name"`
	Pitch      string   `json:"pitch"`
	Stage      string   `json:"stage"`
	OpenRoles  []string `json:"open_roles"`
	WebsiteURL *string  `json:"website_url,omitempty"`
}
