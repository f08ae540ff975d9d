package model

import "time"

const (
	HoldActive    = "ACTIVE"
	HoldExpired   = "EXPIRED"
	HoldConfirmed = "CONFIRMED"
)

// Hold is a time-bounded exclusive claim on Quantity seats of one section.
// It moves ACTIVE → EXPIRED (reaper or release) or ACTIVE → CONFIRMED
// (checkout) exactly once.
type Hold struct {
	HoldToken    string    `json:"holdToken"`
	EventID      string    `json:"eventId"`
	SectionID    string    `json:"sectionId"`
	VisitorToken string    `json:"-"`
	Quantity     int       `json:"quantity"`
	Status       string    `json:"status"`
	ExpiresAt    time.Time `json:"expiresAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HoldResult is returned by the hold and idempotent-retry paths.
type HoldResult struct {
	HoldToken  string     `json:"holdToken"`
	EventID    string     `json:"eventId"`
	SectionID  string     `json:"sectionId"`
	Quantity   int        `json:"quantity"`
	Seats      []HeldSeat `json:"seats"`
	TotalPrice int64      `json:"totalPrice"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	Duplicate  bool       `json:"duplicate"`
}
