package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/ndrandal/perpflow/internal/microstructure"
)

// RESTClient wraps the shared outbound REST permit pool (spec.md §5
// "rate-limited outbound REST has one shared permit pool") used by
// both the backfill kline fetcher and the open-interest poll.
// Implements backfill.Fetcher.
type RESTClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewRESTClient builds a client sharing one token-bucket limiter
// across every call, regardless of symbol.
func NewRESTClient(baseURL string, requestsPerSec float64, burst int) *RESTClient {
	return &RESTClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), burst),
	}
}

// FetchKlines implements backfill.Fetcher.
func (c *RESTClient) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]microstructure.Kline, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/fapi/v1/klines?symbol=%s&interval=%s&limit=%d", c.baseURL, symbol, interval, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream: klines request failed: %s", resp.Status)
	}

	var raw [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("upstream: klines decode error: %w", err)
	}

	out := make([]microstructure.Kline, 0, len(raw))
	for _, row := range raw {
		k, err := parseKlineRow(row)
		if err != nil {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

func parseKlineRow(row []json.RawMessage) (microstructure.Kline, error) {
	if len(row) < 6 {
		return microstructure.Kline{}, fmt.Errorf("upstream: short kline row (%d fields)", len(row))
	}
	openTime, err := parseInt64Field(row[0])
	if err != nil {
		return microstructure.Kline{}, err
	}
	open, err := parseFloatField(row[1])
	if err != nil {
		return microstructure.Kline{}, err
	}
	high, err := parseFloatField(row[2])
	if err != nil {
		return microstructure.Kline{}, err
	}
	low, err := parseFloatField(row[3])
	if err != nil {
		return microstructure.Kline{}, err
	}
	closePrice, err := parseFloatField(row[4])
	if err != nil {
		return microstructure.Kline{}, err
	}
	volume, err := parseFloatField(row[5])
	if err != nil {
		return microstructure.Kline{}, err
	}
	return microstructure.Kline{
		OpenTimeMs: openTime,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      closePrice,
		Volume:     volume,
	}, nil
}

// parseFloatField accepts either a JSON number or a quoted numeric
// string, matching how exchange REST APIs mix both styles across
// fields in the same kline row.
func parseFloatField(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}

func parseInt64Field(raw json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, 64)
}

// FetchOpenInterest polls the current open interest for symbol.
func (c *RESTClient) FetchOpenInterest(ctx context.Context, symbol string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	reqURL := fmt.Sprintf("%s/fapi/v1/openInterest?symbol=%s", c.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("upstream: open interest request failed: %s", resp.Status)
	}
	var body struct {
		OpenInterest string `json:"openInterest"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(body.OpenInterest, 64)
}
