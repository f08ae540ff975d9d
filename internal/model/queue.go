package model

// Session statuses kept in the session:<visitor> hash.
const (
	SessionWaiting = "WAITING"
	SessionReady   = "READY"
	SessionServed  = "SERVED"
	SessionActive  = "ACTIVE"
)

// EnqueuedEvent is the queue.events record published on every new
// admission.  Timestamps are epoch milliseconds.
type EnqueuedEvent struct {
	EventID        string `json:"eventId"`
	VisitorToken   string `json:"visitorToken"`
	Sequence       int64  `json:"seq"`
	QueueTimestamp int64  `json:"queueTimestamp"`
}

// ServedEvent is the queue.served record published when a visitor is
// granted access.
type ServedEvent struct {
	EventID      string `json:"eventId"`
	VisitorToken string `json:"visitorToken"`
	AccessToken  string `json:"accessToken"`
	ServedAt     int64  `json:"servedAt"`
}
