package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/test7679/gold-rate-alert/internal/config"
	"github.com/test7679/gold-rate-alert/internal/extract"
	"github.com/test7679/gold-rate-alert/internal/fetcher"
	"github.com/test7679/gold-rate-alert/internal/rates"
	"github.com/test7679/gold-rate-alert/internal/storage"
)

const ratesHTML = `<html><body><ul class="dropdown">
<li><a href="#">Gold Price 24KT/1g ₹11250</a></li>
<li><a href="#">Gold Price 22KT/1g ₹10310</a></li>
<li><a href="#">Silver Price ₹150</a></li>
</ul></body></html>`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Source: config.SourceConfig{
			URL:               "https://www.khazanajewellery.com/",
			NavigationTimeout: time.Second,
			ItemSelectors:     []string{"li a"},
			DebugDir:          dir,
		},
		Telegram: config.TelegramConfig{Timeout: time.Second},
		Notify: config.NotifyConfig{
			Title:      "KHAZANA METAL RATES",
			Timezone:   "UTC",
			TimeFormat: "02-01-2006 03:04 PM",
		},
		State: config.StateConfig{Backend: config.BackendFile, Path: filepath.Join(dir, "last_rate.json")},
	}
}

func newTestApp(cfg *config.Config) (*App, *bytes.Buffer) {
	a := NewApp(cfg, zerolog.Nop())
	var out bytes.Buffer
	a.SetOutput(&out)
	return a, &out
}

func writeDump(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCheckRequiresCredentials(t *testing.T) {
	a, _ := newTestApp(testConfig(t))
	err := a.Check(context.Background())
	require.ErrorIs(t, err, config.ErrMissingCredential)
}

func TestCheckReportsStoreFailure(t *testing.T) {
	var calls atomic.Int32
	texts := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		text, _ := body["text"].(string)
		texts <- text
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Telegram.BotToken = "123:abc"
	cfg.Telegram.ChatID = "-1001"
	cfg.Telegram.APIBase = srv.URL
	cfg.State.Backend = "redis"

	a, _ := newTestApp(cfg)
	err := a.Check(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "open state store")
	require.EqualValues(t, 1, calls.Load())
	require.Contains(t, <-texts, "Rate check failed.")
}

func newBot(t *testing.T) (*httptest.Server, chan string) {
	t.Helper()
	texts := make(chan string, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		text, _ := body["text"].(string)
		texts <- text
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, texts
}

func TestCheckNotifiesOnceThenStaysQuiet(t *testing.T) {
	srv, texts := newBot(t)
	cfg := testConfig(t)
	cfg.Telegram.BotToken = "123:abc"
	cfg.Telegram.ChatID = "-1001"
	cfg.Telegram.APIBase = srv.URL

	a, _ := newTestApp(cfg)
	a.pageFetcher = &fetcher.File{Path: writeDump(t, ratesHTML), URL: cfg.Source.URL}

	require.NoError(t, a.Check(context.Background()))
	require.Len(t, texts, 1)
	text := <-texts
	require.Contains(t, text, "KHAZANA METAL RATES")
	require.Contains(t, text, "• 24KT: ₹11250/g")
	require.Contains(t, text, "• Silver: ₹150/g")

	rec, err := storage.NewFileStore(cfg.State.Path).Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	v, _ := rec.Rates.Get(rates.Gold22)
	require.Equal(t, "10310", v)

	require.NoError(t, a.Check(context.Background()))
	require.Empty(t, texts)
}

func TestCheckReportsMissingRates(t *testing.T) {
	srv, texts := newBot(t)
	cfg := testConfig(t)
	cfg.Telegram.BotToken = "123:abc"
	cfg.Telegram.ChatID = "-1001"
	cfg.Telegram.APIBase = srv.URL

	a, _ := newTestApp(cfg)
	a.pageFetcher = &fetcher.File{Path: writeDump(t, "<html><body>Welcome</body></html>"), URL: cfg.Source.URL}

	err := a.Check(context.Background())
	require.ErrorIs(t, err, extract.ErrNoRates)
	require.Len(t, texts, 1)
	require.Contains(t, <-texts, "No rates detected.")

	_, statErr := os.Stat(cfg.State.Path)
	require.True(t, os.IsNotExist(statErr))
}

func TestExtractFromFile(t *testing.T) {
	a, out := newTestApp(testConfig(t))
	err := a.Extract(context.Background(), ExtractOptions{File: writeDump(t, ratesHTML)})
	require.NoError(t, err)

	printed := out.String()
	require.Contains(t, printed, "11250")
	require.Contains(t, printed, "10310")
	require.Contains(t, printed, "150")
	require.Contains(t, printed, extract.StrategyStructured)

	_, statErr := os.Stat(a.Config.State.Path)
	require.True(t, os.IsNotExist(statErr))
}

func TestExtractNoRates(t *testing.T) {
	a, _ := newTestApp(testConfig(t))
	err := a.Extract(context.Background(), ExtractOptions{File: writeDump(t, "<html><body>Welcome</body></html>")})
	require.ErrorIs(t, err, extract.ErrNoRates)
}

func TestShowEmptyState(t *testing.T) {
	a, out := newTestApp(testConfig(t))
	require.NoError(t, a.Show(context.Background(), ShowOptions{Limit: 5}))
	require.Contains(t, out.String(), "no rate notified yet")
}

func TestShowPersistedRecord(t *testing.T) {
	cfg := testConfig(t)
	store := storage.NewFileStore(cfg.State.Path)
	require.NoError(t, store.Save(context.Background(), storage.Record{
		Rates:      rates.FromMap(map[rates.Key]string{rates.Gold24: "11250", rates.Gold18: "8440"}),
		Strategy:   extract.StrategyTextScan,
		NotifiedAt: time.Date(2026, 10, 18, 4, 0, 0, 0, time.UTC),
	}))

	a, out := newTestApp(cfg)
	require.NoError(t, a.Show(context.Background(), ShowOptions{Limit: 5}))
	printed := out.String()
	require.Contains(t, printed, "2026-10-18T04:00:00Z")
	require.Contains(t, printed, "11250")
	require.Contains(t, printed, "8440")
	require.Contains(t, printed, extract.StrategyTextScan)
}

func TestShowLegacyState(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.State.Path, []byte("Gold Price 24KT/1g ₹11250"), 0o644))

	a, out := newTestApp(cfg)
	require.NoError(t, a.Show(context.Background(), ShowOptions{Limit: 5}))
	require.Contains(t, out.String(), "legacy state: Gold Price 24KT/1g ₹11250")
}
