package kraken

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderbookv1 "github.com/Hermit005-io/lob-simulator/internal/domain/orderbook/v1"
	"github.com/Hermit005-io/lob-simulator/pkg/logger"
)

func newStubClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log, err := logger.NewLogger(logger.WithLoggingLevel(logger.ErrorLevel))
	require.NoError(t, err)

	return &Client{
		baseURL:    srv.URL,
		httpClient: srv.Client(),
		logger:     log,
	}
}

func TestClient_FetchOrderBook(t *testing.T) {
	client := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Depth", r.URL.Path)
		assert.Equal(t, "XBTUSD", r.URL.Query().Get("pair"))
		w.Write([]byte(`{
			"error": [],
			"result": {
				"XXBTZUSD": {
					"bids": [["68000.1", "0.5", 1700000000], ["67999.9", "1.25", 1700000001]],
					"asks": [["68000.3", "0.75", 1700000002]]
				}
			}
		}`))
	})

	snap, err := client.FetchOrderBook(context.Background(), "XBTUSD", 50)
	require.NoError(t, err)

	require.Len(t, snap.Bids, 2)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, "68000.1", snap.Bids[0].Price.String())
	assert.Equal(t, "1.25", snap.Bids[1].Quantity.String())
	assert.Equal(t, "68000.3", snap.Asks[0].Price.String())
	assert.Positive(t, snap.Timestamp)
}

func TestClient_FetchRecentTrades(t *testing.T) {
	t.Run("Parses rows and maps sides", func(t *testing.T) {
		client := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/Trades", r.URL.Path)
			w.Write([]byte(`{
				"error": [],
				"result": {
					"XXBTZUSD": [
						["68000.1", "0.5", 1700000000.1234, "b", "m", "", 1],
						["68000.2", "0.25", 1700000001.5, "s", "l", "", 2]
					],
					"last": "1700000001500000000"
				}
			}`))
		})

		trades, err := client.FetchRecentTrades(context.Background(), "XBTUSD", 0)
		require.NoError(t, err)

		require.Len(t, trades, 2)
		assert.Equal(t, orderbookv1.SideBuy, trades[0].Side)
		assert.Equal(t, "68000.1", trades[0].Price.String())
		assert.Equal(t, "0.5", trades[0].Quantity.String())
		assert.Equal(t, orderbookv1.SideSell, trades[1].Side)
		assert.WithinDuration(t,
			time.Unix(1700000001, 500000000).UTC(), trades[1].Time, time.Millisecond)
	})

	t.Run("Limit keeps the newest trades", func(t *testing.T) {
		client := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{
				"error": [],
				"result": {
					"XXBTZUSD": [
						["100.0", "1", 1700000000.0, "b", "m", "", 1],
						["100.1", "1", 1700000001.0, "b", "m", "", 2],
						["100.2", "1", 1700000002.0, "s", "m", "", 3]
					],
					"last": "1700000002000000000"
				}
			}`))
		})

		trades, err := client.FetchRecentTrades(context.Background(), "XBTUSD", 2)
		require.NoError(t, err)

		require.Len(t, trades, 2)
		assert.Equal(t, "100.1", trades[0].Price.String())
		assert.Equal(t, "100.2", trades[1].Price.String())
	})

	t.Run("API error surfaces", func(t *testing.T) {
		client := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error": ["EQuery:Unknown asset pair"], "result": {}}`))
		})

		_, err := client.FetchRecentTrades(context.Background(), "NOPE", 0)
		assert.Error(t, err)
	})
}
