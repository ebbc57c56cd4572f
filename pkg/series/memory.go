package series

import (
	"context"
	"slices"
	"sync"
)

type actorSeries struct {
	mu      sync.Mutex
	samples []Sample
}

type memorySink struct {
	mu     sync.RWMutex
	actors map[string]*actorSeries
}

func NewMemorySink() Sink {
	return &memorySink{actors: make(map[string]*actorSeries)}
}

func (m *memorySink) Append(_ context.Context, s Sample) error {
	if s.Actor == "" {
		return ErrEmptyActor
	}

	as := m.series(s.Actor)
	as.mu.Lock()
	as.samples = append(as.samples, s)
	as.mu.Unlock()

	return nil
}

func (m *memorySink) Series(_ context.Context, actor string) ([]Sample, error) {
	if actor == "" {
		return nil, ErrEmptyActor
	}

	m.mu.RLock()
	as, ok := m.actors[actor]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	return slices.Clone(as.samples), nil
}

func (m *memorySink) Actors(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	actors := make([]string, 0, len(m.actors))
	for a := range m.actors {
		actors = append(actors, a)
	}
	slices.Sort(actors)

	return actors, nil
}

func (m *memorySink) series(actor string) *actorSeries {
	m.mu.RLock()
	as, ok := m.actors[actor]
	m.mu.RUnlock()
	if ok {
		return as
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if as, ok = m.actors[actor]; !ok {
		as = &actorSeries{}
		m.actors[actor] = as
	}

	return as
}
