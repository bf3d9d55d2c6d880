package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/lottery-bot/internal/features/lottery"
)

var _ lottery.Recorder = (*Metrics)(nil)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCounters(t *testing.T) {
	m := New()

	m.EntryRecorded("payment")
	m.EntryRecorded("payment")
	m.EntryRecorded("ad")
	m.AdWatched()
	m.ReferralApplied(3)
	m.LotteryClosed("daily", 5, 1)

	out := scrape(t, m)
	assert.Contains(t, out, `lottery_bot_entries_total{source="payment"} 2`)
	assert.Contains(t, out, `lottery_bot_entries_total{source="ad"} 1`)
	assert.Contains(t, out, "lottery_bot_ads_watched_total 1")
	assert.Contains(t, out, "lottery_bot_referrals_applied_total 1")
	assert.Contains(t, out, "lottery_bot_referral_entries_total 3")
	assert.Contains(t, out, `lottery_bot_draws_total{kind="daily"} 1`)
	assert.Contains(t, out, `lottery_bot_draw_participants_count{kind="daily"} 1`)
	assert.Contains(t, out, "go_goroutines")
}

func TestRouter(t *testing.T) {
	m := New()
	srv := httptest.NewServer(m.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/metrics", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
