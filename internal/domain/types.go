package domain

import "time"

type SessionID string
type UserID string
type MessageID string

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

type Timestamp = time.Time

// Coordinates is a geographic point, attached to weather replies so the
// front end can drop a map pin.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Source is a web reference cited by a bot reply.
type Source struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Domain string `json:"domain"`
	Icon   string `json:"icon,omitempty"`
}
