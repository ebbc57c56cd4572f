package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	pkgerrors "github.com/absmach/swamp/pkg/errors"
)

const CTJSON string = "application/json"

type PageMetadata struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

type SDK interface {
	// Best gets the published best model of the running job.
	//
	// example:
	//  best, _ := sdk.Best()
	//  fmt.Println(best.Version, best.Loss)
	Best() (Best, error)

	// Actors lists the actors that recorded a loss series.
	//
	// example:
	//  actors, _ := sdk.Actors()
	//  fmt.Println(actors)
	Actors() ([]string, error)

	// Series gets a page of one actor's loss series.
	//
	// example:
	//  page, _ := sdk.Series("ps", 0, 100)
	//  fmt.Println(page.Lowest)
	Series(actor string, offset, limit uint64) (SeriesPage, error)

	// Snapshots lists the stored published models without their payloads.
	Snapshots(offset, limit uint64) (SnapshotPage, error)

	// Evals lists stored evaluation results.
	Evals(offset, limit uint64) (EvalPage, error)

	// Health reports whether the status API is up.
	Health() error
}

type swampSDK struct {
	url    string
	client *http.Client
}

type Config struct {
	URL             string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &swampSDK{
		url: cfg.URL,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

type errorRes struct {
	Err string `json:"error"`
}

func (sdk *swampSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var e errorRes
		_ = json.Unmarshal(body, &e)
		if resp.StatusCode == http.StatusNotFound {
			return []byte{}, fmt.Errorf("%w: %s", pkgerrors.ErrNotFound, e.Err)
		}

		return []byte{}, fmt.Errorf("unexpected response code: %d %s", resp.StatusCode, e.Err)
	}

	return body, nil
}
