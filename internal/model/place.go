package model

import "time"

// PlaceStatus tracks whether a saved place has been visited yet.
type PlaceStatus string

const (
	StatusPending PlaceStatus = "PENDING"
	StatusVisited PlaceStatus = "VISITED"
)

// Category is a user-assigned place category with its marker icon key.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

// UserRef identifies the group member who saved a place.
type UserRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SavedPlace is a place record owned by the place-storage collaborator.
// The engine treats it as read-mostly input; mutations flow back through
// the external API.
type SavedPlace struct {
	ID        int64       `json:"id"`
	Lat       float64     `json:"lat"`
	Lng       float64     `json:"lng"`
	Name      string      `json:"name"`
	Status    PlaceStatus `json:"status"`
	Category  *Category   `json:"category,omitempty"`
	Notes     string      `json:"notes,omitempty"`
	Address   string      `json:"address,omitempty"`
	VisitedAt *time.Time  `json:"visitedAt,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	CreatedBy *UserRef    `json:"createdBy,omitempty"`
}
