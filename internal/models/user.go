package models

import "time"

// User represents the owner of one or more monitoring rules. Credits are a
// decrementing usage counter; exhaustion triggers suspension of the owner's
// rules.
type User struct {
	ID        string    `json:"id"`
	Credits   int64     `json:"credits"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
