// Package natsutil provides NATS JetStream configuration and helpers
package natsutil

import (
	"context"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// StreamConfigs defines the streams the tracker gateway publishes to.
var StreamConfigs = map[string]jetstream.StreamConfig{
	"TRACKER_REFRESH": {
		Name:              "TRACKER_REFRESH",
		Description:       "Per-kind refresh announcements from the tracker gateway",
		Subjects:          []string{"tracker.refreshed.>"},
		Retention:         jetstream.LimitsPolicy,
		MaxBytes:          256 * 1024 * 1024, // 256MB
		MaxAge:            24 * time.Hour,
		Storage:           jetstream.FileStorage,
		Replicas:          1,
		Discard:           jetstream.DiscardOld,
		MaxMsgsPerSubject: 100000,
	},
}

// SetupStreams creates all required streams
func SetupStreams(ctx context.Context, js jetstream.JetStream) error {
	for name, cfg := range StreamConfigs {
		_, err := js.Stream(ctx, name)
		if err == nil {
			continue // Stream exists
		}

		_, err = js.CreateStream(ctx, cfg)
		if err != nil {
			return err
		}
	}
	return nil
}
