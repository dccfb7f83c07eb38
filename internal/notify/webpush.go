package notify

import (
	"context"
	"encoding/json"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"github.com/hyeonsu-k/saju-matcher/internal/store"
)

// SubscriptionStore provides the push endpoints registered per user.
type SubscriptionStore interface {
	Subscriptions(ctx context.Context, userID uint64) ([]store.PushSubscription, error)
	DeleteSubscription(ctx context.Context, id uint64) error
}

// WebPush delivers match notifications over the Web Push protocol.
// Everything here is best-effort: failures are logged and swallowed.
type WebPush struct {
	store      SubscriptionStore
	publicKey  string
	privateKey string
	subscriber string
	logger     *zap.Logger
}

func NewWebPush(subs SubscriptionStore, publicKey, privateKey, subscriber string, log *zap.Logger) *WebPush {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebPush{
		store:      subs,
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		logger:     log,
	}
}

type payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// MatchReady pushes a "your match is ready" message to every endpoint the
// user registered. Returns true when at least one delivery succeeded.
// Gone endpoints are pruned along the way.
func (w *WebPush) MatchReady(ctx context.Context, userID uint64) bool {
	subs, err := w.store.Subscriptions(ctx, userID)
	if err != nil {
		w.logger.Warn("loading push subscriptions failed",
			zap.Uint64("user_id", userID),
			zap.Error(err),
		)
		return false
	}
	if len(subs) == 0 {
		return false
	}

	body, err := json.Marshal(payload{
		Title: "Your match is ready",
		Body:  "A new saju compatibility match has been found for you.",
		URL:   "/matches",
	})
	if err != nil {
		w.logger.Warn("marshaling push payload", zap.Error(err))
		return false
	}

	delivered := false
	for _, sub := range subs {
		resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dh,
				Auth:   sub.Auth,
			},
		}, &webpush.Options{
			Subscriber:      w.subscriber,
			VAPIDPublicKey:  w.publicKey,
			VAPIDPrivateKey: w.privateKey,
			TTL:             3600,
		})
		if err != nil {
			w.logger.Warn("push delivery failed",
				zap.Uint64("user_id", userID),
				zap.Error(err),
			)
			continue
		}

		switch resp.StatusCode {
		case http.StatusNotFound, http.StatusGone:
			// The browser dropped this subscription.
			if err := w.store.DeleteSubscription(ctx, sub.ID); err != nil {
				w.logger.Warn("pruning dead subscription failed",
					zap.Uint64("subscription_id", sub.ID),
					zap.Error(err),
				)
			}
		default:
			if resp.StatusCode < 300 {
				delivered = true
			} else {
				w.logger.Warn("push endpoint rejected notification",
					zap.Uint64("user_id", userID),
					zap.Int("status", resp.StatusCode),
				)
			}
		}
		resp.Body.Close()
	}

	return delivered
}
