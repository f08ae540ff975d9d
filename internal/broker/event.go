// Package broker carries the RabbitMQ side of the service: best-effort push
// notifications to visitors and the durable booking.paid audit trail.
package broker

// Push message types.
const (
	PushAccessGranted = "ACCESS_GRANTED"
	PushEventStatus   = "EVENT_STATUS"
)

// PushMessage is delivered on the push exchange to visitor.<token> or
// event.<id>.  Timestamps are epoch milliseconds.
type PushMessage struct {
	Type         string `json:"type"`
	EventID      string `json:"eventId"`
	VisitorToken string `json:"visitorToken,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	Status       string `json:"status,omitempty"`
	PrevStatus   string `json:"prevStatus,omitempty"`
	At           int64  `json:"at"`
}

func VisitorTopic(visitorToken string) string { return "visitor." + visitorToken }
func EventTopic(eventID string) string        { return "event." + eventID }

// BookingPaidEvent is published once a booking's payment is confirmed.  It
// carries enough to write the audit line without querying the database.
type BookingPaidEvent struct {
	BookingID     string   `json:"booking_id"`
	EventID       string   `json:"event_id"`
	VisitorToken  string   `json:"visitor_token"`
	SeatIDs       []string `json:"seats"`
	TotalAmount   int64    `json:"total_amount"`
	TicketsIssued int      `json:"tickets_issued"`
	PaidAt        string   `json:"paid_at"`
}
