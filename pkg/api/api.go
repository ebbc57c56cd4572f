// Package api holds the HTTP encoding shared by swamp's status endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	pkgerrors "github.com/absmach/swamp/pkg/errors"
)

const (
	OffsetKey = "offset"
	LimitKey  = "limit"
	DefOffset = 0
	DefLimit  = 100

	ContentType = "application/json"

	MaxLimitSize = 1000
)

var ErrLimitSize = errors.New("limit exceeds maximum")

// ReadPage reads the offset and limit query parameters.
func ReadPage(r *http.Request) (offset, limit uint64, err error) {
	offset, err = apiutil.ReadNumQuery[uint64](r, OffsetKey, DefOffset)
	if err != nil {
		return 0, 0, errors.Join(apiutil.ErrValidation, err)
	}
	limit, err = apiutil.ReadNumQuery[uint64](r, LimitKey, DefLimit)
	if err != nil {
		return 0, 0, errors.Join(apiutil.ErrValidation, err)
	}
	if limit > MaxLimitSize {
		return 0, 0, errors.Join(apiutil.ErrValidation, ErrLimitSize)
	}

	return offset, limit, nil
}

func EncodeResponse(_ context.Context, w http.ResponseWriter, response any) error {
	w.Header().Set("Content-Type", ContentType)
	if ar, ok := response.(supermq.Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	}

	return json.NewEncoder(w).Encode(response)
}

type errorRes struct {
	Err string `json:"error"`
}

func EncodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(statusCode(err))

	if err := json.NewEncoder(w).Encode(errorRes{Err: err.Error()}); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, apiutil.ErrValidation),
		errors.Is(err, apiutil.ErrMissingID),
		errors.Is(err, ErrLimitSize),
		errors.Is(err, pkgerrors.ErrEmptyKey),
		errors.Is(err, pkgerrors.ErrInvalidData):
		return http.StatusBadRequest
	case errors.Is(err, pkgerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
