package model

import (
	"fmt"
	"time"
)

const (
	SeatFree = "FREE"
	SeatHeld = "HELD"
	SeatSold = "SOLD"
)

// Seat is one unit of inventory.  HoldToken is set while the seat is HELD
// and kept once it is SOLD so the sale can be traced back to its hold.
type Seat struct {
	EventID    string     `json:"eventId"`
	SectionID  string     `json:"sectionId"`
	RowID      string     `json:"rowId"`
	SeatNumber int        `json:"seatNumber"`
	Price      int64      `json:"price"`
	Status     string     `json:"status"`
	HoldToken  *string    `json:"-"`
	HoldExpiry *time.Time `json:"-"`
}

// SeatID is the composite identifier section-row-number.
func (s Seat) SeatID() string {
	return SeatID(s.SectionID, s.RowID, s.SeatNumber)
}

func SeatID(section, row string, number int) string {
	return fmt.Sprintf("%s-%s-%d", section, row, number)
}

// HeldSeat is the client view of a seat inside a hold or booking.
type HeldSeat struct {
	SeatID     string `json:"seatId"`
	SectionID  string `json:"sectionId"`
	RowID      string `json:"rowId"`
	SeatNumber int    `json:"seatNumber"`
	Price      int64  `json:"price"`
}

// SectionAvailability summarises the free inventory of one section.
type SectionAvailability struct {
	SectionID string `json:"sectionId"`
	FreeSeats int    `json:"freeSeats"`
	MinPrice  int64  `json:"minPrice"`
	MaxPrice  int64  `json:"maxPrice"`
}

// PriceOption is one purchasable total for a quantity in a section, with
// the number of distinct seat blocks that add up to it.
type PriceOption struct {
	Price      int64 `json:"price"`
	BlockCount int   `json:"blockCount"`
}

// SectionListing lists the totals a visitor can send as the hold price.
type SectionListing struct {
	SectionID    string        `json:"sectionId"`
	Available    bool          `json:"available"`
	PriceOptions []PriceOption `json:"priceOptions"`
}
