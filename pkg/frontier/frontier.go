// Package frontier tracks how far a device has pulled.
//
// A pull returns records strictly newer than a threshold, ordered by
// UpdatedAt. The frontier after a pull is the greatest UpdatedAt the
// device has seen; passing it as the next threshold yields exactly the
// records committed since, including tombstones.
package frontier

import "github.com/daviddao/calsync/pkg/model"

// Advance returns the threshold for the next pull after receiving batch
// against since. It never moves backwards.
func Advance(since int64, batch []model.Event) int64 {
	next := since
	for _, e := range batch {
		if e.UpdatedAt > next {
			next = e.UpdatedAt
		}
	}
	return next
}

// Status describes the state of a pulled batch relative to the store.
type Status struct {
	Since     int64 `json:"since"`
	Watermark int64 `json:"watermark"`
	Upserts   int   `json:"upserts"`
	Deletes   int   `json:"deletes"`
}

// ComputeStatus summarizes batch pulled against since.
func ComputeStatus(since int64, batch []model.Event) Status {
	st := Status{Since: since, Watermark: Advance(since, batch)}
	for _, e := range batch {
		if e.Deleted {
			st.Deletes++
		} else {
			st.Upserts++
		}
	}
	return st
}
