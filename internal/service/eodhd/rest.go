package eodhd

import (
	"context"
	"fmt"
	"sort"
	"time"

	drepo "momentum/internal/domain/repository"
	"momentum/internal/service/ratelimit"
	xhttp "momentum/pkg/http"
)

// REST fetches historical candles from the EODHD HTTP API.
type REST struct {
	baseURL   string
	apiToken  string
	client    *xhttp.Client
	limiter   *ratelimit.Limiter
	ratePerS  float64
	burstSize float64
}

type RESTOption func(*REST)

func WithRateLimit(perSecond, burst float64) RESTOption {
	return func(r *REST) {
		r.ratePerS = perSecond
		r.burstSize = burst
	}
}

func WithHTTPClient(c *xhttp.Client) RESTOption {
	return func(r *REST) { r.client = c }
}

// NewREST creates a new EODHD historical provider.
func NewREST(baseURL, apiToken string, opts ...RESTOption) *REST {
	r := &REST{
		baseURL:   baseURL,
		apiToken:  apiToken,
		client:    xhttp.NewClient(xhttp.WithTimeout(15 * time.Second)),
		limiter:   ratelimit.New(),
		ratePerS:  5,
		burstSize: 10,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type intradayRow struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

type eodRow struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// FetchCandles returns up to limit bars for the symbol and timeframe,
// oldest first. 4h has no native endpoint; callers aggregate it from 1h.
func (r *REST) FetchCandles(ctx context.Context, symbol string, tf drepo.Timeframe, limit int) ([]drepo.ProviderBar, error) {
	if !r.limiter.Allow("eodhd_rest", r.burstSize, r.ratePerS) {
		return nil, fmt.Errorf("eodhd rate limit exceeded")
	}

	switch tf {
	case drepo.TF1m, drepo.TF5m, drepo.TF15m, drepo.TF1h:
		return r.fetchIntraday(ctx, symbol, tf, limit)
	case drepo.TF1d:
		return r.fetchDaily(ctx, symbol, limit)
	default:
		return nil, fmt.Errorf("eodhd: no native %s interval", tf)
	}
}

func (r *REST) fetchIntraday(ctx context.Context, symbol string, tf drepo.Timeframe, limit int) ([]drepo.ProviderBar, error) {
	from := time.Now().Add(-time.Duration(limit) * tf.Duration() * 2)

	var rows []intradayRow
	err := r.client.SendAndParse(ctx, &xhttp.RequestOptions{
		URL: fmt.Sprintf("%s/intraday/%s", r.baseURL, symbol),
		QueryParams: map[string][]string{
			"api_token": {r.apiToken},
			"interval":  {string(tf)},
			"fmt":       {"json"},
			"from":      {fmt.Sprintf("%d", from.Unix())},
		},
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("eodhd intraday %s %s: %w", symbol, tf, err)
	}

	bars := make([]drepo.ProviderBar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, drepo.ProviderBar{
			Time:   time.Unix(row.Timestamp, 0).UTC(),
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		})
	}
	return tailSorted(bars, limit), nil
}

func (r *REST) fetchDaily(ctx context.Context, symbol string, limit int) ([]drepo.ProviderBar, error) {
	from := time.Now().AddDate(0, 0, -limit*2)

	var rows []eodRow
	err := r.client.SendAndParse(ctx, &xhttp.RequestOptions{
		URL: fmt.Sprintf("%s/eod/%s", r.baseURL, symbol),
		QueryParams: map[string][]string{
			"api_token": {r.apiToken},
			"period":    {"d"},
			"fmt":       {"json"},
			"from":      {from.Format("2006-01-02")},
		},
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("eodhd eod %s: %w", symbol, err)
	}

	bars := make([]drepo.ProviderBar, 0, len(rows))
	for _, row := range rows {
		t, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			continue
		}
		bars = append(bars, drepo.ProviderBar{
			Time:   t.UTC(),
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		})
	}
	return tailSorted(bars, limit), nil
}

// tailSorted sorts bars oldest first and keeps the newest limit rows.
func tailSorted(bars []drepo.ProviderBar, limit int) []drepo.ProviderBar {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars
}
