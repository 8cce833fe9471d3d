package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	orderbookv1 "github.com/Hermit005-io/lob-simulator/internal/domain/orderbook/v1"
	"github.com/Hermit005-io/lob-simulator/pkg/logger"
)

// BaseURL is the Kraken public REST endpoint.
const BaseURL = "https://api.kraken.com/0/public"

// Client fetches bootstrap market data from the Kraken public API. It is
// only used at startup, outside the simulation loop.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a Kraken REST client with a bounded request timeout.
func NewClient(log *logger.Logger) *Client {
	return &Client{
		baseURL: BaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: log,
	}
}

type depthResponse struct {
	Error  []string                   `json:"error"`
	Result map[string]depthResultPair `json:"result"`
}

type depthResultPair struct {
	Bids [][]json.RawMessage `json:"bids"`
	Asks [][]json.RawMessage `json:"asks"`
}

// FetchOrderBook fetches the current order book snapshot for a pair. Kraken
// returns both sides best-first, which is exactly the order Seed expects.
func (c *Client) FetchOrderBook(ctx context.Context, pair string, depth int) (*orderbookv1.Snapshot, error) {
	params := url.Values{}
	params.Set("pair", pair)
	params.Set("count", strconv.Itoa(depth))

	var resp depthResponse
	if err := c.get(ctx, "/Depth", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("kraken depth: %v", resp.Error)
	}

	for _, result := range resp.Result {
		bids, err := parseLevels(result.Bids)
		if err != nil {
			return nil, fmt.Errorf("parse bids: %w", err)
		}
		asks, err := parseLevels(result.Asks)
		if err != nil {
			return nil, fmt.Errorf("parse asks: %w", err)
		}

		c.logger.Info("Fetched order book snapshot",
			logger.Field{Key: "pair", Value: pair},
			logger.Field{Key: "bidLevels", Value: len(bids)},
			logger.Field{Key: "askLevels", Value: len(asks)},
		)

		return &orderbookv1.Snapshot{
			Pair:      pair,
			Bids:      bids,
			Asks:      asks,
			Timestamp: time.Now().UnixNano(),
		}, nil
	}

	return nil, fmt.Errorf("kraken depth: empty result for pair %s", pair)
}

type tradesResponse struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

// FetchRecentTrades fetches the most recent public trades for a pair, oldest
// first. Kraken returns up to 1000; limit keeps the newest ones.
func (c *Client) FetchRecentTrades(ctx context.Context, pair string, limit int) ([]orderbookv1.MarketTrade, error) {
	params := url.Values{}
	params.Set("pair", pair)

	var resp tradesResponse
	if err := c.get(ctx, "/Trades", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("kraken trades: %v", resp.Error)
	}

	for key, raw := range resp.Result {
		if key == "last" {
			continue
		}

		var rows [][]json.RawMessage
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("parse trades: %w", err)
		}

		trades, err := parseTrades(rows)
		if err != nil {
			return nil, err
		}
		if limit > 0 && len(trades) > limit {
			trades = trades[len(trades)-limit:]
		}

		c.logger.Info("Fetched recent trades",
			logger.Field{Key: "pair", Value: pair},
			logger.Field{Key: "trades", Value: len(trades)},
		)
		return trades, nil
	}

	return nil, fmt.Errorf("kraken trades: empty result for pair %s", pair)
}

// parseTrades converts Kraken's [price, volume, time, side, ...] rows. The
// timestamp is a fractional unix second; side is "b" or "s".
func parseTrades(rows [][]json.RawMessage) ([]orderbookv1.MarketTrade, error) {
	trades := make([]orderbookv1.MarketTrade, 0, len(rows))
	for _, row := range rows {
		if len(row) < 4 {
			return nil, fmt.Errorf("trade row has %d fields, want at least 4", len(row))
		}

		price, err := rawDecimal(row[0])
		if err != nil {
			return nil, err
		}
		quantity, err := rawDecimal(row[1])
		if err != nil {
			return nil, err
		}

		var ts float64
		if err := json.Unmarshal(row[2], &ts); err != nil {
			return nil, fmt.Errorf("unexpected trade timestamp %s", string(row[2]))
		}

		var sideCode string
		if err := json.Unmarshal(row[3], &sideCode); err != nil {
			return nil, fmt.Errorf("unexpected trade side %s", string(row[3]))
		}
		side := orderbookv1.SideSell
		if sideCode == "b" {
			side = orderbookv1.SideBuy
		}

		trades = append(trades, orderbookv1.MarketTrade{
			Time:     time.Unix(0, int64(ts*float64(time.Second))).UTC(),
			Price:    price,
			Quantity: quantity,
			Side:     side,
		})
	}
	return trades, nil
}

type tickerResponse struct {
	Error  []string                    `json:"error"`
	Result map[string]tickerResultPair `json:"result"`
}

type tickerResultPair struct {
	Bid    []string `json:"b"`
	Ask    []string `json:"a"`
	Last   []string `json:"c"`
	Volume []string `json:"v"`
}

// TickerStats is the subset of the 24h ticker used for reporting.
type TickerStats struct {
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Last      decimal.Decimal
	Volume24h decimal.Decimal
}

// FetchTicker fetches 24h ticker statistics for a pair.
func (c *Client) FetchTicker(ctx context.Context, pair string) (*TickerStats, error) {
	params := url.Values{}
	params.Set("pair", pair)

	var resp tickerResponse
	if err := c.get(ctx, "/Ticker", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("kraken ticker: %v", resp.Error)
	}

	for _, result := range resp.Result {
		stats := &TickerStats{}
		var err error
		if stats.Bid, err = firstDecimal(result.Bid); err != nil {
			return nil, err
		}
		if stats.Ask, err = firstDecimal(result.Ask); err != nil {
			return nil, err
		}
		if stats.Last, err = firstDecimal(result.Last); err != nil {
			return nil, err
		}
		if len(result.Volume) > 1 {
			if stats.Volume24h, err = decimal.NewFromString(result.Volume[1]); err != nil {
				return nil, err
			}
		}
		return stats, nil
	}

	return nil, fmt.Errorf("kraken ticker: empty result for pair %s", pair)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kraken request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kraken request %s: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// parseLevels converts Kraken's [price, volume, timestamp] rows. Price and
// volume arrive as JSON strings, which keeps them exact through decimal.
func parseLevels(rows [][]json.RawMessage) ([]orderbookv1.SnapshotLevel, error) {
	levels := make([]orderbookv1.SnapshotLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("level row has %d fields, want at least 2", len(row))
		}
		price, err := rawDecimal(row[0])
		if err != nil {
			return nil, err
		}
		quantity, err := rawDecimal(row[1])
		if err != nil {
			return nil, err
		}
		levels = append(levels, orderbookv1.SnapshotLevel{Price: price, Quantity: quantity})
	}
	return levels, nil
}

func rawDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// some fields arrive as bare numbers
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return decimal.Zero, fmt.Errorf("unexpected level field %s", string(raw))
		}
		return decimal.NewFromFloat(f), nil
	}
	return decimal.NewFromString(s)
}

func firstDecimal(values []string) (decimal.Decimal, error) {
	if len(values) == 0 {
		return decimal.Zero, fmt.Errorf("empty ticker field")
	}
	return decimal.NewFromString(values[0])
}
