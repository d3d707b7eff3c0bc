package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrNoData means the provider answered but has no usable quote for the
// ticker (delisted, empty history, market holiday). It is distinct from
// transport or decoding failures, which come back as ordinary errors.
// Both are treated as "price unavailable this cycle" by callers.
var ErrNoData = errors.New("no price data")

// PriceSource fetches close prices for a ticker from a market-data provider
type PriceSource interface {
	// CurrentPrice returns the latest close price
	CurrentPrice(ctx context.Context, ticker string) (float64, error)
	// HistoricalPrice returns the close on the given date, falling back to
	// the latest available close at or before it
	HistoricalPrice(ctx context.Context, ticker string, on time.Time) (float64, error)
	// AllTimeHigh returns the maximum close over the full price history
	AllTimeHigh(ctx context.Context, ticker string) (float64, error)
}

// YahooSource fetches prices from the Yahoo Finance chart API
type YahooSource struct {
	client  *http.Client
	baseURL string
}

// NewYahooSource creates a Yahoo-backed price source with a bounded request timeout
func NewYahooSource() *YahooSource {
	return &YahooSource{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: "https://query2.finance.yahoo.com",
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

// CurrentPrice returns the latest close for the ticker
func (s *YahooSource) CurrentPrice(ctx context.Context, ticker string) (float64, error) {
	result, err := s.fetchChart(ctx, ticker, "interval=1d&range=5d")
	if err != nil {
		return 0, err
	}

	if result.Meta.RegularMarketPrice > 0 {
		return result.Meta.RegularMarketPrice, nil
	}

	if price, ok := lastClose(result.closes()); ok {
		return price, nil
	}
	return 0, ErrNoData
}

// HistoricalPrice returns the close at or before the given date
func (s *YahooSource) HistoricalPrice(ctx context.Context, ticker string, on time.Time) (float64, error) {
	// A two week window covers weekends and longer exchange closures
	// before the requested date
	query := fmt.Sprintf("interval=1d&period1=%d&period2=%d",
		on.AddDate(0, 0, -14).Unix(), on.Unix())

	result, err := s.fetchChart(ctx, ticker, query)
	if err != nil {
		return 0, err
	}

	if price, ok := lastClose(result.closes()); ok {
		return price, nil
	}
	return 0, ErrNoData
}

// AllTimeHigh returns the maximum close over the ticker's full history
func (s *YahooSource) AllTimeHigh(ctx context.Context, ticker string) (float64, error) {
	result, err := s.fetchChart(ctx, ticker, "interval=1mo&range=max")
	if err != nil {
		return 0, err
	}

	max := 0.0
	for _, close := range result.closes() {
		if close != nil && *close > max {
			max = *close
		}
	}
	if max <= 0 {
		return 0, ErrNoData
	}
	return max, nil
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
	}
	Quote struct {
		Close []*float64
	}
}

func (r *chartResult) closes() []*float64 {
	return r.Quote.Close
}

func (s *YahooSource) fetchChart(ctx context.Context, ticker, query string) (*chartResult, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", s.baseURL, url.PathEscape(ticker), query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create chart request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch chart for %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", ticker, ErrNoData)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart for %s: status %d", ticker, resp.StatusCode)
	}

	var payload chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode chart for %s: %w", ticker, err)
	}

	if len(payload.Chart.Result) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, ErrNoData)
	}

	entry := payload.Chart.Result[0]
	result := &chartResult{}
	result.Meta.Symbol = entry.Meta.Symbol
	result.Meta.RegularMarketPrice = entry.Meta.RegularMarketPrice
	if len(entry.Indicators.Quote) > 0 {
		result.Quote.Close = entry.Indicators.Quote[0].Close
	}
	return result, nil
}

func lastClose(closes []*float64) (float64, bool) {
	for i := len(closes) - 1; i >= 0; i-- {
		if closes[i] != nil && *closes[i] > 0 {
			return *closes[i], true
		}
	}
	return 0, false
}
