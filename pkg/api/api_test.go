package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/absmach/swamp/pkg/api"
	pkgerrors "github.com/absmach/swamp/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPage(t *testing.T) {
	cases := []struct {
		desc   string
		query  string
		offset uint64
		limit  uint64
		err    error
	}{
		{desc: "defaults", query: "", offset: api.DefOffset, limit: api.DefLimit},
		{desc: "explicit", query: "?offset=5&limit=20", offset: 5, limit: 20},
		{desc: "invalid offset", query: "?offset=x", err: apiutil.ErrValidation},
		{desc: "negative limit", query: "?limit=-1", err: apiutil.ErrValidation},
		{desc: "limit too large", query: "?limit=1001", err: api.ErrLimitSize},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/snapshots"+tc.query, nil)
			offset, limit, err := api.ReadPage(r)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.offset, offset)
			assert.Equal(t, tc.limit, limit)
		})
	}
}

func TestEncodeError(t *testing.T) {
	cases := []struct {
		desc   string
		err    error
		status int
	}{
		{desc: "validation", err: errors.Join(apiutil.ErrValidation, errors.New("bad")), status: http.StatusBadRequest},
		{desc: "missing id", err: apiutil.ErrMissingID, status: http.StatusBadRequest},
		{desc: "not found", err: pkgerrors.ErrNotFound, status: http.StatusNotFound},
		{desc: "deadline", err: context.DeadlineExceeded, status: http.StatusGatewayTimeout},
		{desc: "other", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			w := httptest.NewRecorder()
			api.EncodeError(context.Background(), tc.err, w)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, api.ContentType, w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), tc.err.Error())
		})
	}
}
