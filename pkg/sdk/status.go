package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	bestEndpoint      = "/best"
	seriesEndpoint    = "/series"
	snapshotsEndpoint = "/snapshots"
	evalsEndpoint     = "/evals"
	healthEndpoint    = "/health"
)

type Best struct {
	Version   uint64    `json:"version"`
	Loss      float64   `json:"loss"`
	TrainerID string    `json:"trainer_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Sample struct {
	Actor   string        `json:"actor"`
	Elapsed time.Duration `json:"elapsed"`
	Loss    float64       `json:"loss"`
	At      time.Time     `json:"at"`
}

type SeriesPage struct {
	PageMetadata
	Actor   string   `json:"actor"`
	Total   uint64   `json:"total"`
	Lowest  *float64 `json:"lowest,omitempty"`
	Samples []Sample `json:"samples"`
}

type Snapshot struct {
	Version     uint64    `json:"version"`
	Loss        float64   `json:"loss"`
	TrainerID   string    `json:"trainer_id"`
	PublishedAt time.Time `json:"published_at"`
	Size        int       `json:"size"`
}

type SnapshotPage struct {
	PageMetadata
	Total     uint64     `json:"total"`
	Snapshots []Snapshot `json:"snapshots"`
}

type EvalResult struct {
	Version     uint64        `json:"version"`
	Loss        float64       `json:"loss"`
	Batches     int           `json:"batches"`
	Samples     int           `json:"samples"`
	Elapsed     time.Duration `json:"elapsed"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
}

type EvalPage struct {
	PageMetadata
	Total   uint64       `json:"total"`
	Results []EvalResult `json:"results"`
}

func (sdk *swampSDK) Best() (Best, error) {
	body, err := sdk.processRequest(http.MethodGet, sdk.url+bestEndpoint, nil, http.StatusOK)
	if err != nil {
		return Best{}, err
	}

	var b Best
	if err := json.Unmarshal(body, &b); err != nil {
		return Best{}, err
	}

	return b, nil
}

func (sdk *swampSDK) Actors() ([]string, error) {
	body, err := sdk.processRequest(http.MethodGet, sdk.url+seriesEndpoint, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var res struct {
		Actors []string `json:"actors"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}

	return res.Actors, nil
}

func (sdk *swampSDK) Series(actor string, offset, limit uint64) (SeriesPage, error) {
	reqURL := sdk.url + seriesEndpoint + "/" + url.PathEscape(actor) + pageQuery(offset, limit)

	body, err := sdk.processRequest(http.MethodGet, reqURL, nil, http.StatusOK)
	if err != nil {
		return SeriesPage{}, err
	}

	var page SeriesPage
	if err := json.Unmarshal(body, &page); err != nil {
		return SeriesPage{}, err
	}

	return page, nil
}

func (sdk *swampSDK) Snapshots(offset, limit uint64) (SnapshotPage, error) {
	body, err := sdk.processRequest(http.MethodGet, sdk.url+snapshotsEndpoint+pageQuery(offset, limit), nil, http.StatusOK)
	if err != nil {
		return SnapshotPage{}, err
	}

	var page SnapshotPage
	if err := json.Unmarshal(body, &page); err != nil {
		return SnapshotPage{}, err
	}

	return page, nil
}

func (sdk *swampSDK) Evals(offset, limit uint64) (EvalPage, error) {
	body, err := sdk.processRequest(http.MethodGet, sdk.url+evalsEndpoint+pageQuery(offset, limit), nil, http.StatusOK)
	if err != nil {
		return EvalPage{}, err
	}

	var page EvalPage
	if err := json.Unmarshal(body, &page); err != nil {
		return EvalPage{}, err
	}

	return page, nil
}

func (sdk *swampSDK) Health() error {
	_, err := sdk.processRequest(http.MethodGet, sdk.url+healthEndpoint, nil, http.StatusOK)

	return err
}

func pageQuery(offset, limit uint64) string {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	if len(queries) == 0 {
		return ""
	}

	return "?" + strings.Join(queries, "&")
}
