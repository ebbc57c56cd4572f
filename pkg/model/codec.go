package model

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// EncodingVersion tags every encoded snapshot so decoders can reject payloads
// produced by an incompatible build.
const EncodingVersion = "swamp.model.v1"

var (
	ErrMalformed       = errors.New("malformed model payload")
	ErrEncodingVersion = errors.New("unsupported model encoding version")
)

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}

	return em
}

type wireState struct {
	Encoding       string    `cbor:"encoding"`
	TrainerID      string    `cbor:"trainer_id"`
	Params         []byte    `cbor:"params"`
	OptimizerState []byte    `cbor:"optimizer_state"`
	Loss           float64   `cbor:"loss"`
	Version        uint64    `cbor:"version"`
	CreatedAt      time.Time `cbor:"created_at"`
}

// Encode serializes s for the upload queue, MQTT transport and storage.
func Encode(s State) ([]byte, error) {
	data, err := encMode.Marshal(wireState{
		Encoding:       EncodingVersion,
		TrainerID:      s.trainerID,
		Params:         s.params,
		OptimizerState: s.optimizerState,
		Loss:           s.loss,
		Version:        s.version,
		CreatedAt:      s.createdAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode model state: %w", err)
	}

	return data, nil
}

// Decode parses a payload produced by Encode. Every failure wraps ErrMalformed.
func Decode(data []byte) (State, error) {
	if len(data) == 0 {
		return State{}, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	var w wireState
	if err := cbor.Unmarshal(data, &w); err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if w.Encoding != EncodingVersion {
		return State{}, fmt.Errorf("%w: %w: %q", ErrMalformed, ErrEncodingVersion, w.Encoding)
	}
	if math.IsNaN(w.Loss) {
		return State{}, fmt.Errorf("%w: loss is NaN", ErrMalformed)
	}

	return State{
		params:         w.Params,
		optimizerState: w.OptimizerState,
		loss:           w.Loss,
		version:        w.Version,
		trainerID:      w.TrainerID,
		createdAt:      w.CreatedAt,
	}, nil
}
