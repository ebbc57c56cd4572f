package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/absmach/swamp/pkg/mqtt"
	"github.com/absmach/swamp/pkg/queue"
	"github.com/absmach/swamp/pkg/register"
	"github.com/absmach/swamp/ps"
)

// Connector opens one broker session per client ID.
type Connector func(clientID string) (mqtt.PubSub, error)

func MQTTConnector(cfg mqtt.Config, runID string, logger *slog.Logger) Connector {
	return func(clientID string) (mqtt.PubSub, error) {
		return mqtt.NewPubSub(cfg, clientID, runID, logger)
	}
}

// Exchange routes pushes and the best model through the broker. The parameter
// server and every trainer get their own session.
type Exchange struct {
	connect Connector
	runID   string
	logger  *slog.Logger

	mu         sync.Mutex
	clients    []mqtt.PubSub
	forwarders []*UploadForwarder
}

func NewExchange(connect Connector, runID string, logger *slog.Logger) *Exchange {
	if logger == nil {
		logger = slog.Default()
	}

	return &Exchange{connect: connect, runID: runID, logger: logger}
}

func (e *Exchange) Serve(ctx context.Context, uploads queue.Sender[[]byte], _ register.Reader) ([]ps.PublishHook, error) {
	client, err := e.open("swamp-ps-" + e.runID)
	if err != nil {
		return nil, err
	}
	if err := ListenUploads(ctx, client, e.runID, uploads); err != nil {
		return nil, fmt.Errorf("subscribe to uploads: %w", err)
	}

	return []ps.PublishHook{BestAnnouncer(client, e.runID)}, nil
}

func (e *Exchange) Trainer(ctx context.Context, id string) (queue.Sender[[]byte], register.Reader, error) {
	client, err := e.open(fmt.Sprintf("swamp-%s-%s", e.runID, id))
	if err != nil {
		return nil, nil, err
	}
	mirror, err := NewBestMirror(ctx, client, e.runID, e.logger.With(slog.String("trainer", id)))
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe to best model: %w", err)
	}

	logger := e.logger.With(slog.String("trainer", id))
	forwarder := NewUploadForwarder(client, e.runID, logger)
	e.mu.Lock()
	e.forwarders = append(e.forwarders, forwarder)
	e.mu.Unlock()

	return forwarder, mirror, nil
}

// Close flushes queued pushes, then disconnects every session.
func (e *Exchange) Close(ctx context.Context) error {
	e.mu.Lock()
	clients, forwarders := e.clients, e.forwarders
	e.clients, e.forwarders = nil, nil
	e.mu.Unlock()

	var errs []error
	for _, f := range forwarders {
		if err := f.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range clients {
		if err := c.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (e *Exchange) open(clientID string) (mqtt.PubSub, error) {
	client, err := e.connect(clientID)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", clientID, err)
	}

	e.mu.Lock()
	e.clients = append(e.clients, client)
	e.mu.Unlock()

	return client, nil
}
