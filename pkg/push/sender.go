package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/daviddao/calsync/pkg/model"
)

// Credentials are the VAPID key pair and contact used to sign deliveries.
type Credentials struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// Configured reports whether both keys are present.
func (c Credentials) Configured() bool {
	return c.PublicKey != "" && c.PrivateKey != ""
}

// Sender delivers one payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub model.Subscription, payload []byte) error
}

// DeliveryError is a non-2xx response from a push service.
type DeliveryError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("push delivery to %s: status %d", e.Endpoint, e.StatusCode)
}

// IsGone reports whether err means the endpoint will never accept another
// delivery (404 Not Found or 410 Gone).
func IsGone(err error) bool {
	var de *DeliveryError
	if !errors.As(err, &de) {
		return false
	}
	return de.StatusCode == http.StatusNotFound || de.StatusCode == http.StatusGone
}

// WebPushSender delivers through the Web Push protocol with VAPID signing.
type WebPushSender struct {
	creds  Credentials
	client *http.Client
	ttl    int
}

// NewWebPushSender returns a sender signing with creds.
func NewWebPushSender(creds Credentials) *WebPushSender {
	return &WebPushSender{
		creds:  creds,
		client: &http.Client{Timeout: 10 * time.Second},
		ttl:    60,
	}
}

// Send encrypts payload for sub and posts it to the push service.
func (s *WebPushSender) Send(ctx context.Context, sub model.Subscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.creds.Subject,
		VAPIDPublicKey:  s.creds.PublicKey,
		VAPIDPrivateKey: s.creds.PrivateKey,
		TTL:             s.ttl,
	})
	if err != nil {
		return fmt.Errorf("push delivery to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &DeliveryError{Endpoint: sub.Endpoint, StatusCode: resp.StatusCode, Body: string(body)}
}

// GenerateKeys returns a fresh VAPID key pair.
func GenerateKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate vapid keys: %w", err)
	}
	return publicKey, privateKey, nil
}
