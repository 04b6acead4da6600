package tastytrade

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(server.URL, StaticToken("test-token"))
	client.now = func() time.Time {
		return time.Date(2026, 8, 3, 14, 30, 0, 0, time.UTC)
	}
	return client
}

func TestListAvailableExpirations(t *testing.T) {
	t.Run("groups contracts by expiration", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/option-chains/SPY", r.URL.Path)
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

			fmt.Fprint(w, `{"data":{"items":[
				{"symbol":"SPY 260904C00630000","expiration-date":"2026-09-04","strike-price":"630.0","option-type":"C"},
				{"symbol":"SPY 260904P00630000","expiration-date":"2026-09-04","strike-price":"630.0","option-type":"P"},
				{"symbol":"SPY 260904C00635000","expiration-date":"2026-09-04","strike-price":"635.0","option-type":"C"},
				{"symbol":"SPY 260911C00630000","expiration-date":"2026-09-11","strike-price":"630.0","option-type":"C"},
				{"symbol":"SPY 260101C00630000","expiration-date":"2026-01-02","strike-price":"630.0","option-type":"C"}
			]}}`)
		})

		candidates, err := client.ListAvailableExpirations(context.Background(), "SPY")
		require.NoError(t, err)
		require.Len(t, candidates, 2, "past expirations must be dropped")

		assert.Equal(t, 32, candidates[0].DaysToExpiration)
		assert.Equal(t, 3, candidates[0].OptionCount)
		assert.Equal(t, "2026-09-04", candidates[0].ExpirationDate.Format("2006-01-02"))

		assert.Equal(t, 39, candidates[1].DaysToExpiration)
		assert.Equal(t, 1, candidates[1].OptionCount)
	})

	t.Run("skips malformed expiration dates", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"data":{"items":[
				{"symbol":"SPY bad","expiration-date":"09/04/2026","strike-price":"630.0","option-type":"C"},
				{"symbol":"SPY ok","expiration-date":"2026-09-04","strike-price":"630.0","option-type":"C"}
			]}}`)
		})

		candidates, err := client.ListAvailableExpirations(context.Background(), "SPY")
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, 32, candidates[0].DaysToExpiration)
	})

	t.Run("non-200 response is an error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"code":"unauthorized"}}`, http.StatusUnauthorized)
		})

		_, err := client.ListAvailableExpirations(context.Background(), "SPY")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid status code")
	})

	t.Run("empty ticker rejected locally", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("no request expected")
		})

		_, err := client.ListAvailableExpirations(context.Background(), "")
		require.Error(t, err)
	})
}

func TestGetQuotes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/market-data/by-type", r.URL.Path)
		assert.Equal(t, "SPY,QQQ", r.URL.Query().Get("equity"))

		fmt.Fprint(w, `{"data":{"items":[
			{"symbol":"SPY","last":"628.50","bid":"628.45","ask":"628.55","day-high-price":"631.20","day-low-price":"626.10","prev-close":"625.00","volume":"41250000"},
			{"symbol":"QQQ","last":"560.25","bid":"560.20","ask":"560.30","day-high-price":"562.00","day-low-price":"558.75","prev-close":"561.00","volume":"28100000"}
		]}}`)
	})

	quotes, err := client.GetQuotes(context.Background(), []string{"SPY", "QQQ"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	spy := quotes["SPY"]
	assert.Equal(t, 628.50, spy.Price)
	assert.Equal(t, int64(41250000), spy.Volume)
	assert.InDelta(t, 0.56, spy.ChangePercent, 0.01)

	qqq := quotes["QQQ"]
	assert.InDelta(t, -0.1337, qqq.ChangePercent, 0.001)
}

func TestStaticToken(t *testing.T) {
	_, err := StaticToken("").Token(context.Background())
	assert.Error(t, err)

	token, err := StaticToken("abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}
