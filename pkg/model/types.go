// Package model defines the core domain types for calsync.
//
// Calsync keeps one logical user's calendar consistent across devices with
// a per-event last-write-wins register:
//
//   - Every event carries UpdatedAt, a wall-clock millisecond timestamp set
//     by the writing device. For a given id the store keeps the write with
//     the greatest UpdatedAt; on a tie the write processed second wins.
//
//   - Deletion never removes a record. It leaves a tombstone (Deleted=true)
//     stamped with the delete time, so devices pulling later learn about the
//     delete instead of silently keeping a stale copy.
package model

import "time"

// Event is a single calendar entry. Start is opaque to the server: devices
// agree on its format and the engine never parses it.
type Event struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Start           string `json:"start"`
	AllDay          bool   `json:"allDay"`
	ReminderMinutes *int   `json:"reminderMinutes"`
	UpdatedAt       int64  `json:"updatedAt"`
	Deleted         bool   `json:"deleted"`
}

// Tombstone returns a deletion marker for id stamped at ts.
func Tombstone(id string, ts int64) Event {
	return Event{ID: id, UpdatedAt: ts, Deleted: true}
}

// Snapshot is the full persisted event map keyed by event id.
type Snapshot map[string]Event

// Active returns the number of non-tombstoned events.
func (s Snapshot) Active() int {
	n := 0
	for _, e := range s {
		if !e.Deleted {
			n++
		}
	}
	return n
}

// Keys holds the client encryption material of a push subscription.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is a registered push endpoint. Endpoint is the identity key.
type Subscription struct {
	Endpoint  string    `json:"endpoint"`
	Keys      Keys      `json:"keys"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Stats summarizes the service for health reporting.
type Stats struct {
	Subscribers  int `json:"subscribers"`
	Events       int `json:"events"`
	ActiveEvents int `json:"activeEvents"`
}
