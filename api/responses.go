package api

import (
	"net/http"
	"time"

	"github.com/absmach/supermq"
	"github.com/absmach/swamp/pkg/history"
	"github.com/absmach/swamp/pkg/series"
)

var (
	_ supermq.Response = (*bestResponse)(nil)
	_ supermq.Response = (*actorsResponse)(nil)
	_ supermq.Response = (*seriesResponse)(nil)
	_ supermq.Response = (*snapshotsResponse)(nil)
	_ supermq.Response = (*evalsResponse)(nil)
)

type bestResponse struct {
	Version   uint64    `json:"version"`
	Loss      float64   `json:"loss"`
	TrainerID string    `json:"trainer_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (r bestResponse) Code() int {
	return http.StatusOK
}

func (r bestResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r bestResponse) Empty() bool {
	return false
}

type actorsResponse struct {
	Actors []string `json:"actors"`
}

func (r actorsResponse) Code() int {
	return http.StatusOK
}

func (r actorsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r actorsResponse) Empty() bool {
	return false
}

type seriesResponse struct {
	Actor   string          `json:"actor"`
	Offset  uint64          `json:"offset"`
	Limit   uint64          `json:"limit"`
	Total   uint64          `json:"total"`
	Lowest  *float64        `json:"lowest,omitempty"`
	Samples []series.Sample `json:"samples"`
}

func (r seriesResponse) Code() int {
	return http.StatusOK
}

func (r seriesResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r seriesResponse) Empty() bool {
	return false
}

type snapshotsResponse struct {
	Total     uint64            `json:"total"`
	Offset    uint64            `json:"offset"`
	Limit     uint64            `json:"limit"`
	Snapshots []snapshotSummary `json:"snapshots"`
}

// snapshotSummary leaves out the encoded payload.
type snapshotSummary struct {
	Version     uint64    `json:"version"`
	Loss        float64   `json:"loss"`
	TrainerID   string    `json:"trainer_id"`
	PublishedAt time.Time `json:"published_at"`
	Size        int       `json:"size"`
}

func (r snapshotsResponse) Code() int {
	return http.StatusOK
}

func (r snapshotsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r snapshotsResponse) Empty() bool {
	return false
}

type evalsResponse struct {
	Total   uint64              `json:"total"`
	Offset  uint64              `json:"offset"`
	Limit   uint64              `json:"limit"`
	Results []history.EvalResult `json:"results"`
}

func (r evalsResponse) Code() int {
	return http.StatusOK
}

func (r evalsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r evalsResponse) Empty() bool {
	return false
}
