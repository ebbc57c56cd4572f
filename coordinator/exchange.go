package coordinator

import (
	"context"

	"github.com/absmach/swamp/pkg/queue"
	"github.com/absmach/swamp/pkg/register"
	"github.com/absmach/swamp/ps"
)

// Exchange connects trainers to the parameter server's upload queue and best
// model register.
type Exchange interface {
	// Serve attaches the parameter server side and returns any publish hooks
	// the transport needs.
	Serve(ctx context.Context, uploads queue.Sender[[]byte], best register.Reader) ([]ps.PublishHook, error)
	// Trainer returns the push and pull ends for one trainer.
	Trainer(ctx context.Context, id string) (queue.Sender[[]byte], register.Reader, error)
	Close(ctx context.Context) error
}

type localExchange struct {
	uploads queue.Sender[[]byte]
	best    register.Reader
}

// LocalExchange shares the queue and register in memory.
func LocalExchange() Exchange {
	return &localExchange{}
}

func (e *localExchange) Serve(_ context.Context, uploads queue.Sender[[]byte], best register.Reader) ([]ps.PublishHook, error) {
	e.uploads, e.best = uploads, best

	return nil, nil
}

func (e *localExchange) Trainer(context.Context, string) (queue.Sender[[]byte], register.Reader, error) {
	return e.uploads, e.best, nil
}

func (e *localExchange) Close(context.Context) error {
	return nil
}
