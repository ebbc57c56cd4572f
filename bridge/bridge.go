// Package bridge carries the push/pull exchange over MQTT so trainers and the
// parameter server need not share memory.
package bridge

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/absmach/swamp/pkg/model"
	"github.com/absmach/swamp/pkg/mqtt"
	"github.com/absmach/swamp/pkg/queue"
	"github.com/absmach/swamp/pkg/register"
	"github.com/absmach/swamp/ps"
)

var (
	_ queue.Sender[[]byte] = (*UploadForwarder)(nil)
	_ register.Reader      = (*BestMirror)(nil)
)

// UploadForwarder publishes trainer pushes to the uploads topic. Send only
// queues the payload; a background goroutine waits for the broker, so a slow
// broker never stalls the trainer.
type UploadForwarder struct {
	pubsub  mqtt.PubSub
	topic   string
	pending *queue.Unbounded[[]byte]
	done    chan struct{}
	logger  *slog.Logger
}

func NewUploadForwarder(pubsub mqtt.PubSub, runID string, logger *slog.Logger) *UploadForwarder {
	if logger == nil {
		logger = slog.Default()
	}
	f := &UploadForwarder{
		pubsub:  pubsub,
		topic:   mqtt.UploadsTopic(runID),
		pending: queue.NewUnbounded[[]byte](),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go f.forward()

	return f
}

// Send returns queue.ErrClosed once the forwarder is closed.
func (f *UploadForwarder) Send(payload []byte) error {
	return f.pending.Send(payload)
}

// Close stops accepting pushes and waits until the queued ones were handed
// to the broker or ctx is done.
func (f *UploadForwarder) Close(ctx context.Context) error {
	f.pending.Close()
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *UploadForwarder) forward() {
	defer close(f.done)

	for {
		payload, err := f.pending.Receive(context.Background(), 0)
		if err != nil {
			return
		}
		if err := f.pubsub.Publish(context.Background(), f.topic, payload); err != nil {
			f.logger.Warn("Failed to forward candidate",
				slog.String("topic", f.topic),
				slog.Int("size", len(payload)),
				slog.Any("error", err),
			)
		}
	}
}

// ListenUploads feeds every message on the uploads topic into uploads, where
// the parameter server consumes it.
func ListenUploads(ctx context.Context, pubsub mqtt.PubSub, runID string, uploads queue.Sender[[]byte]) error {
	return pubsub.Subscribe(ctx, mqtt.UploadsTopic(runID), func(_ string, payload []byte) error {
		return uploads.Send(payload)
	})
}

type bestAnnouncer struct {
	pubsub mqtt.PubSub
	topic  string
}

// BestAnnouncer republishes every accepted model as the retained message of
// the best topic.
func BestAnnouncer(pubsub mqtt.PubSub, runID string) ps.PublishHook {
	return &bestAnnouncer{pubsub: pubsub, topic: mqtt.BestTopic(runID)}
}

func (a *bestAnnouncer) OnPublish(ctx context.Context, published model.State) error {
	payload, err := model.Encode(published)
	if err != nil {
		return err
	}

	return a.pubsub.PublishRetained(ctx, a.topic, payload)
}

// BestMirror is a trainer-side copy of the published best model, kept current
// from the best topic. It only moves forward in version.
type BestMirror struct {
	current atomic.Pointer[model.State]
	logger  *slog.Logger
}

func NewBestMirror(ctx context.Context, pubsub mqtt.PubSub, runID string, logger *slog.Logger) (*BestMirror, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &BestMirror{logger: logger}
	if err := pubsub.Subscribe(ctx, mqtt.BestTopic(runID), m.handle); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *BestMirror) Read() (model.State, bool) {
	s := m.current.Load()
	if s == nil {
		return model.State{}, false
	}

	return *s, true
}

func (m *BestMirror) handle(_ string, payload []byte) error {
	s, err := model.Decode(payload)
	if err != nil {
		return err
	}

	for {
		prev := m.current.Load()
		if prev != nil && prev.Version() >= s.Version() {
			m.logger.Debug("Ignoring stale best model",
				slog.Uint64("version", s.Version()),
				slog.Uint64("current", prev.Version()),
			)

			return nil
		}
		if m.current.CompareAndSwap(prev, &s) {
			return nil
		}
	}
}
