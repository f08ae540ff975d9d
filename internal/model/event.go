package model

import "time"

// Sale lifecycle of an event.  Only SELLING events admit visitors from the
// ready set.
const (
	EventLocked  = "LOCKED"
	EventWaiting = "WAITING"
	EventSelling = "SELLING"
	EventEnded   = "ENDED"
)

// Event is a sellable occurrence with its sale window.
//
// Fields:
//
//	SaleStartTime – queue opens (LOCKED → WAITING).
//	SaleOpenAt    – admission begins (WAITING → SELLING).
//	SaleEndTime   – sale closes (SELLING → ENDED); nil means open ended.
type Event struct {
	EventID       string     `json:"eventId"`
	Name          string     `json:"eventName"`
	EventTime     time.Time  `json:"eventTime"`
	Venue         string     `json:"venue"`
	Location      string     `json:"location"`
	Status        string     `json:"status"`
	SaleStartTime *time.Time `json:"saleStartTime,omitempty"`
	SaleOpenAt    *time.Time `json:"saleOpenAt,omitempty"`
	SaleEndTime   *time.Time `json:"saleEndTime,omitempty"`
}

// StatusChange records one transition applied by the status job.
type StatusChange struct {
	EventID string `json:"eventId"`
	From    string `json:"from"`
	To      string `json:"to"`
}
