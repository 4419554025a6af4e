// Package push keeps the in-memory set of device push subscriptions and fans
// notifications out to them.
//
// Registrations live only in process memory and are lost on restart;
// devices re-register when they next open the app. The set is mutated by
// exactly two operations, Register (append or no-op) and PruneAndKeep
// (whole-set replace), both under one mutex.
package push

import (
	"errors"
	"sync"
	"time"

	"github.com/daviddao/calsync/pkg/model"
)

// ErrInvalidSubscription is returned when a subscription lacks its endpoint
// or either key.
var ErrInvalidSubscription = errors.New("push: subscription requires endpoint, keys.p256dh and keys.auth")

// Registry is the set of live subscriptions, unique by endpoint.
type Registry struct {
	mu   sync.Mutex
	subs []model.Subscription
	now  func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{now: time.Now}
}

// Register adds sub unless its endpoint is already known. It reports whether
// a new entry was added. userAgent and the current time are captured on the
// new entry; a duplicate keeps its original record.
func (r *Registry) Register(sub model.Subscription, userAgent string) (bool, error) {
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return false, ErrInvalidSubscription
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.Endpoint == sub.Endpoint {
			return false, nil
		}
	}
	sub.UserAgent = userAgent
	sub.CreatedAt = r.now().UTC()
	r.subs = append(r.subs, sub)
	return true, nil
}

// PruneAndKeep replaces the set with the subscriptions keep retains.
func (r *Registry) PruneAndKeep(keep func(model.Subscription) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := make([]model.Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		if keep(s) {
			kept = append(kept, s)
		}
	}
	r.subs = kept
}

// List returns a copy of the current subscriptions in registration order.
func (r *Registry) List() []model.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Subscription, len(r.subs))
	copy(out, r.subs)
	return out
}

// Len returns the number of subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
