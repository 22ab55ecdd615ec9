package domain

import "time"

// Shop represents one merchant account, identified by its stable domain
// string (e.g. "acme.example").
type Shop struct {
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
