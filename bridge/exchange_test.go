package bridge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/absmach/swamp/bridge"
	"github.com/absmach/swamp/pkg/model"
	"github.com/absmach/swamp/pkg/mqtt"
	"github.com/absmach/swamp/pkg/mqtt/mocks"
	"github.com/absmach/swamp/pkg/queue"
	"github.com/absmach/swamp/pkg/register"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestExchange(t *testing.T) {
	ctx := context.Background()
	server := new(mocks.MockPubSub)
	client := new(mocks.MockPubSub)

	connected := map[string]*mocks.MockPubSub{}
	connect := func(id string) (mqtt.PubSub, error) {
		if id == "swamp-ps-"+runID {
			connected[id] = server

			return server, nil
		}
		connected[id] = client

		return client, nil
	}

	var uploadsHandler, bestHandler mqtt.Handler
	server.On("Subscribe", mock.Anything, mqtt.UploadsTopic(runID), mock.Anything).
		Run(func(args mock.Arguments) { uploadsHandler = args.Get(2).(mqtt.Handler) }).
		Return(nil)
	server.On("PublishRetained", mock.Anything, mqtt.BestTopic(runID), mock.Anything).
		Run(func(args mock.Arguments) {
			_ = bestHandler(mqtt.BestTopic(runID), args.Get(2).([]byte))
		}).
		Return(nil)
	client.On("Subscribe", mock.Anything, mqtt.BestTopic(runID), mock.Anything).
		Run(func(args mock.Arguments) { bestHandler = args.Get(2).(mqtt.Handler) }).
		Return(nil)
	client.On("Publish", mock.Anything, mqtt.UploadsTopic(runID), mock.Anything).
		Run(func(args mock.Arguments) {
			_ = uploadsHandler(mqtt.UploadsTopic(runID), args.Get(2).([]byte))
		}).
		Return(nil)
	server.On("Disconnect", mock.Anything).Return(nil)
	client.On("Disconnect", mock.Anything).Return(errors.New("already gone"))

	ex := bridge.NewExchange(connect, runID, nil)
	uploads := queue.NewUnbounded[[]byte]()
	hooks, err := ex.Serve(ctx, uploads, register.New())
	require.NoError(t, err)
	require.Len(t, hooks, 1)

	sender, reader, err := ex.Trainer(ctx, "trainer-0")
	require.NoError(t, err)
	assert.Contains(t, connected, "swamp-"+runID+"-trainer-0")

	// A push travels through the broker into the local queue.
	require.NoError(t, sender.Send([]byte("candidate")))
	got, err := uploads.Receive(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "candidate", string(got))

	// A publish reaches the trainer's mirror.
	_, ok := reader.Read()
	assert.False(t, ok)
	published := model.New("trainer-0", []byte{1}, nil, 0.3).WithVersion(1)
	require.NoError(t, hooks[0].OnPublish(ctx, published))
	best, ok := reader.Read()
	require.True(t, ok)
	assert.Equal(t, uint64(1), best.Version())

	assert.Error(t, ex.Close(ctx))
	assert.ErrorIs(t, sender.Send([]byte("late")), queue.ErrClosed)
	server.AssertExpectations(t)
	client.AssertExpectations(t)
}

func TestExchangeConnectError(t *testing.T) {
	ex := bridge.NewExchange(func(string) (mqtt.PubSub, error) {
		return nil, errors.New("connection refused")
	}, runID, nil)

	_, err := ex.Serve(context.Background(), queue.NewUnbounded[[]byte](), register.New())
	assert.Error(t, err)
	_, _, err = ex.Trainer(context.Background(), "trainer-0")
	assert.Error(t, err)
	assert.NoError(t, ex.Close(context.Background()))
}
