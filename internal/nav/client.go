// Package nav fetches published NAVs from the public MFAPI feed and drives
// the batch valuation refresh over stored holdings.
package nav

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the public mutual-fund price API.
const DefaultBaseURL = "https://api.mfapi.in/mf"

const fetchTimeout = 10 * time.Second

// Quote is the latest published NAV for a scheme.
type Quote struct {
	Value decimal.Decimal
	Date  time.Time
}

// Client is a read-only MFAPI consumer. The feed returns the full
// time-ordered NAV series per scheme; only the newest entry is used.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logrus.Logger
}

func NewClient(baseURL string, log *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: fetchTimeout},
		log:     log,
	}
}

type mfapiResponse struct {
	Data []struct {
		Date string `json:"date"`
		NAV  string `json:"nav"`
	} `json:"data"`
}

var quoteDateLayouts = []string{"02-01-2006", "02-Jan-2006"}

// LatestNAV fetches the newest published NAV for one scheme code. Failures
// are per-scheme: the caller tolerates them without aborting its batch.
func (c *Client) LatestNAV(ctx context.Context, schemeCode string) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+schemeCode, nil)
	if err != nil {
		return Quote{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("fetch nav for %s: %w", schemeCode, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("fetch nav for %s: HTTP %d", schemeCode, resp.StatusCode)
	}

	var body mfapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("decode nav payload for %s: %w", schemeCode, err)
	}
	if len(body.Data) == 0 {
		return Quote{}, fmt.Errorf("no nav data for %s", schemeCode)
	}

	latest := body.Data[0]
	value, err := decimal.NewFromString(latest.NAV)
	if err != nil {
		return Quote{}, fmt.Errorf("bad nav value %q for %s: %w", latest.NAV, schemeCode, err)
	}
	return Quote{Value: value, Date: parseQuoteDate(latest.Date)}, nil
}

func parseQuoteDate(raw string) time.Time {
	for _, layout := range quoteDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Now().UTC().Truncate(24 * time.Hour)
}
