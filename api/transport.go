package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/absmach/swamp/pkg/api"
	"github.com/absmach/swamp/pkg/history"
	"github.com/absmach/swamp/pkg/series"
	"github.com/absmach/swamp/ps"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const svcName = "swamp"

// Sources are what the status API reads. Snapshots and Evals are optional;
// their routes exist only when set.
type Sources struct {
	PS        ps.Service
	Sink      series.Sink
	Snapshots history.SnapshotRepository
	Evals     history.EvalRepository
	RunID     string
}

func MakeHandler(src Sources, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeError)),
	}

	mux.Get("/best", otelhttp.NewHandler(kithttp.NewServer(
		bestEndpoint(src.PS),
		kithttp.NopRequestDecoder,
		api.EncodeResponse,
		opts...,
	), "get-best").ServeHTTP)

	mux.Route("/series", func(r chi.Router) {
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			actorsEndpoint(src.Sink),
			kithttp.NopRequestDecoder,
			api.EncodeResponse,
			opts...,
		), "list-actors").ServeHTTP)
		r.Get("/{actor}", otelhttp.NewHandler(kithttp.NewServer(
			seriesEndpoint(src.Sink),
			decodeSeriesReq,
			api.EncodeResponse,
			opts...,
		), "get-series").ServeHTTP)
	})

	if src.Snapshots != nil {
		mux.Get("/snapshots", otelhttp.NewHandler(kithttp.NewServer(
			snapshotsEndpoint(src.Snapshots, src.RunID),
			decodeListReq,
			api.EncodeResponse,
			opts...,
		), "list-snapshots").ServeHTTP)
	}
	if src.Evals != nil {
		mux.Get("/evals", otelhttp.NewHandler(kithttp.NewServer(
			evalsEndpoint(src.Evals, src.RunID),
			decodeListReq,
			api.EncodeResponse,
			opts...,
		), "list-evals").ServeHTTP)
	}

	mux.Get("/health", supermq.Health(svcName, instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeSeriesReq(_ context.Context, r *http.Request) (any, error) {
	offset, limit, err := api.ReadPage(r)
	if err != nil {
		return nil, err
	}

	return seriesReq{
		actor:  chi.URLParam(r, "actor"),
		offset: offset,
		limit:  limit,
	}, nil
}

func decodeListReq(_ context.Context, r *http.Request) (any, error) {
	offset, limit, err := api.ReadPage(r)
	if err != nil {
		return nil, err
	}

	return listReq{offset: offset, limit: limit}, nil
}
