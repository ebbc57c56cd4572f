package api

import (
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/absmach/swamp/pkg/api"
)

type seriesReq struct {
	actor         string
	offset, limit uint64
}

func (r *seriesReq) validate() error {
	if r.actor == "" {
		return apiutil.ErrMissingID
	}
	if r.limit > api.MaxLimitSize {
		return api.ErrLimitSize
	}

	return nil
}

type listReq struct {
	offset, limit uint64
}

func (r *listReq) validate() error {
	if r.limit > api.MaxLimitSize {
		return api.ErrLimitSize
	}

	return nil
}
