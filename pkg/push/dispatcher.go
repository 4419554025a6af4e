package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/daviddao/calsync/pkg/model"
)

// Precondition failures reported by Broadcast before any delivery.
var (
	ErrNotConfigured = errors.New("push: VAPID credentials not configured")
	ErrNoSubscribers = errors.New("push: no subscribers")
)

// maxInFlight bounds concurrent deliveries within one broadcast.
const maxInFlight = 8

// Notification is the payload shown by the device.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
}

// TestNotification is the fixed payload of a test broadcast.
var TestNotification = Notification{
	Title: "calsync",
	Body:  "Test notification: push delivery is working.",
	URL:   "/",
}

// Result summarizes a broadcast round.
type Result struct {
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// Dispatcher fans a payload out to every registered subscription.
type Dispatcher struct {
	registry *Registry
	sender   Sender
	creds    Credentials
	log      *zap.Logger
}

// NewDispatcher returns a dispatcher delivering through sender.
func NewDispatcher(registry *Registry, sender Sender, creds Credentials, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{registry: registry, sender: sender, creds: creds, log: log.Named("push")}
}

// PublicKey returns the VAPID public key devices subscribe with.
func (d *Dispatcher) PublicKey() (string, error) {
	if !d.creds.Configured() {
		return "", ErrNotConfigured
	}
	return d.creds.PublicKey, nil
}

// Broadcast delivers payload to every subscription. Deliveries are
// independent. A subscription whose delivery fails with a gone status is
// dropped; every other subscription is kept.
func (d *Dispatcher) Broadcast(ctx context.Context, payload []byte) (Result, error) {
	if !d.creds.Configured() {
		return Result{}, ErrNotConfigured
	}
	subs := d.registry.List()
	if len(subs) == 0 {
		return Result{}, ErrNoSubscribers
	}

	errs := make([]error, len(subs))
	sem := make(chan struct{}, maxInFlight)
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, sub model.Subscription) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = d.sender.Send(ctx, sub, payload)
		}(i, sub)
	}
	wg.Wait()

	var res Result
	gone := make(map[string]bool)
	for i, err := range errs {
		if err == nil {
			res.Sent++
			continue
		}
		res.Failed++
		if IsGone(err) {
			gone[subs[i].Endpoint] = true
			d.log.Info("dropping expired subscription", zap.String("endpoint", subs[i].Endpoint), zap.Error(err))
			continue
		}
		d.log.Warn("push delivery failed", zap.String("endpoint", subs[i].Endpoint), zap.Error(err))
	}

	d.registry.PruneAndKeep(func(s model.Subscription) bool { return !gone[s.Endpoint] })
	res.Remaining = d.registry.Len()
	d.log.Info("broadcast complete",
		zap.Int("sent", res.Sent), zap.Int("failed", res.Failed), zap.Int("remaining", res.Remaining))
	return res, nil
}

// BroadcastNotification encodes n and broadcasts it.
func (d *Dispatcher) BroadcastNotification(ctx context.Context, n Notification) (Result, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return Result{}, err
	}
	return d.Broadcast(ctx, payload)
}
