package config

import "time"

// AdmissionConfig holds the queue and reaper timings.  Defaults match the
// production sale settings.
type AdmissionConfig struct {
	SessionTTL        time.Duration // queue session lifetime, refreshed by status polls
	AccessTTL         time.Duration // lifetime of an issued access credential
	BookingActiveTTL  time.Duration // lifetime of an active-booking slot
	MaxActiveBookings int           // concurrent booking slots per event
	ServeInterval     time.Duration // serve-next poll period
	ServeBatch        int           // grants attempted per event per poll
	GhostBatch        int           // members scanned per set per ghost cleanup pass

	HoldTTL            time.Duration
	HoldExpiryInterval time.Duration
	CleanupInterval    time.Duration
	CleanupWindow      time.Duration // events closed within this window are still cleaned
	StatusInterval     time.Duration
}

// LoadAdmissionConfig reads queue, hold and reaper timings, falling back to
// production defaults for anything unset.
func LoadAdmissionConfig() AdmissionConfig {
	c := AdmissionConfig{
		SessionTTL:        envDur("ADMISSION_SESSION_TTL", 300*time.Second),
		AccessTTL:         envDur("ADMISSION_ACCESS_TTL", 600*time.Second),
		BookingActiveTTL:  envDur("ADMISSION_BOOKING_ACTIVE_TTL", 600*time.Second),
		MaxActiveBookings: envInt("ADMISSION_MAX_ACTIVE", 20),
		ServeInterval:     envDur("ADMISSION_SERVE_INTERVAL", 300*time.Millisecond),
		ServeBatch:        envInt("ADMISSION_SERVE_BATCH", 1),
		GhostBatch:        envInt("ADMISSION_GHOST_BATCH", 200),

		HoldTTL:            envDur("HOLD_TTL", 420*time.Second),
		HoldExpiryInterval: envDur("REAPER_HOLD_INTERVAL", 5*time.Second),
		CleanupInterval:    envDur("REAPER_CLEANUP_INTERVAL", 3*time.Second),
		CleanupWindow:      envDur("REAPER_CLEANUP_WINDOW", 10*time.Second),
		StatusInterval:     envDur("REAPER_STATUS_INTERVAL", time.Second),
	}
	if c.MaxActiveBookings < 1 {
		c.MaxActiveBookings = 1
	}
	if c.ServeBatch < 1 {
		c.ServeBatch = 1
	}
	if c.GhostBatch < 1 {
		c.GhostBatch = 200
	}
	return c
}
