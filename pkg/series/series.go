// Package series records per-actor loss curves. Every actor appends only to its
// own series, so recorders never contend with each other.
package series

import (
	"context"
	"errors"
	"math"
	"time"
)

// PSActor names the parameter server's series.
const PSActor = "ps"

var ErrEmptyActor = errors.New("empty actor")

type Sample struct {
	Actor   string        `json:"actor"`
	Elapsed time.Duration `json:"elapsed"`
	Loss    float64       `json:"loss"`
	At      time.Time     `json:"at"`
}

type Sink interface {
	Append(ctx context.Context, s Sample) error
	// Series returns the samples of actor in append order.
	Series(ctx context.Context, actor string) ([]Sample, error)
	// Actors returns every actor that appended at least one sample, sorted.
	Actors(ctx context.Context) ([]string, error)
}

// PullActor names the series a trainer records pulled losses in.
func PullActor(trainerID string) string {
	return trainerID + "-pull"
}

// Recorder appends to one actor's series, stamping samples relative to start.
type Recorder struct {
	sink  Sink
	actor string
	start time.Time
}

func NewRecorder(sink Sink, actor string, start time.Time) *Recorder {
	return &Recorder{sink: sink, actor: actor, start: start}
}

func (r *Recorder) Record(ctx context.Context, loss float64) error {
	if r == nil || r.sink == nil {
		return nil
	}
	now := time.Now()

	return r.sink.Append(ctx, Sample{
		Actor:   r.actor,
		Elapsed: now.Sub(r.start),
		Loss:    round(loss),
		At:      now.UTC(),
	})
}

func (r *Recorder) Actor() string {
	return r.actor
}

// Lowest returns the smallest loss in samples, +Inf for an empty series.
func Lowest(samples []Sample) float64 {
	lowest := math.Inf(1)
	for _, s := range samples {
		if s.Loss < lowest {
			lowest = s.Loss
		}
	}

	return lowest
}

func round(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}

	return math.Round(v*1e6) / 1e6
}
