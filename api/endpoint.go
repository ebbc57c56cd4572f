package api

import (
	"context"
	"errors"
	"math"

	pkgerrors "github.com/absmach/swamp/pkg/errors"
	"github.com/absmach/swamp/pkg/history"
	"github.com/absmach/swamp/pkg/series"
	"github.com/absmach/swamp/ps"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

func bestEndpoint(svc ps.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		s, ok := svc.Best(ctx)
		if !ok {
			return bestResponse{}, pkgerrors.ErrNotFound
		}

		return bestResponse{
			Version:   s.Version(),
			Loss:      s.Loss(),
			TrainerID: s.TrainerID(),
			CreatedAt: s.CreatedAt(),
		}, nil
	}
}

func actorsEndpoint(sink series.Sink) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		actors, err := sink.Actors(ctx)
		if err != nil {
			return actorsResponse{}, err
		}
		if actors == nil {
			actors = []string{}
		}

		return actorsResponse{Actors: actors}, nil
	}
}

func seriesEndpoint(sink series.Sink) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(seriesReq)
		if !ok {
			return seriesResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return seriesResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		samples, err := sink.Series(ctx, req.actor)
		if err != nil {
			return seriesResponse{}, err
		}
		if len(samples) == 0 {
			return seriesResponse{}, pkgerrors.ErrNotFound
		}

		total := uint64(len(samples))
		start := min(req.offset, total)
		end := min(start+req.limit, total)
		res := seriesResponse{
			Actor:   req.actor,
			Offset:  req.offset,
			Limit:   req.limit,
			Total:   total,
			Samples: samples[start:end],
		}
		if lowest := series.Lowest(samples); !math.IsInf(lowest, 0) {
			res.Lowest = &lowest
		}

		return res, nil
	}
}

func snapshotsEndpoint(repo history.SnapshotRepository, runID string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listReq)
		if !ok {
			return snapshotsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return snapshotsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, total, err := repo.List(ctx, runID, req.offset, req.limit)
		if err != nil {
			return snapshotsResponse{}, err
		}
		res := snapshotsResponse{
			Total:     total,
			Offset:    req.offset,
			Limit:     req.limit,
			Snapshots: make([]snapshotSummary, 0, len(page)),
		}
		for _, s := range page {
			res.Snapshots = append(res.Snapshots, snapshotSummary{
				Version:     s.Version,
				Loss:        s.Loss,
				TrainerID:   s.TrainerID,
				PublishedAt: s.PublishedAt,
				Size:        len(s.Payload),
			})
		}

		return res, nil
	}
}

func evalsEndpoint(repo history.EvalRepository, runID string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listReq)
		if !ok {
			return evalsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return evalsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		results, total, err := repo.List(ctx, runID, req.offset, req.limit)
		if err != nil {
			return evalsResponse{}, err
		}
		if results == nil {
			results = []history.EvalResult{}
		}

		return evalsResponse{
			Total:   total,
			Offset:  req.offset,
			Limit:   req.limit,
			Results: results,
		}, nil
	}
}
