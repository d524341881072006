package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/test7679/gold-rate-alert/internal/alerting"
	"github.com/test7679/gold-rate-alert/internal/detector"
	"github.com/test7679/gold-rate-alert/internal/extract"
	"github.com/test7679/gold-rate-alert/internal/fetcher"
	"github.com/test7679/gold-rate-alert/internal/rates"
	"github.com/test7679/gold-rate-alert/internal/storage"
)

const sourceURL = "https://www.khazanajewellery.com/"

type stubFetcher struct {
	page *fetcher.Page
	err  error
}

func (f *stubFetcher) Fetch(ctx context.Context) (*fetcher.Page, error) {
	return f.page, f.err
}

type memoryStore struct {
	rec     *storage.Record
	saves   int
	loadErr error
	saveErr error
}

func (m *memoryStore) Load(ctx context.Context) (*storage.Record, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.rec, nil
}

func (m *memoryStore) Save(ctx context.Context, rec storage.Record) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.rec = &rec
	return nil
}

type lockingStore struct {
	memoryStore
	held     bool
	released bool
}

func (l *lockingStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	if l.held {
		return nil, false, nil
	}
	return func() { l.released = true }, true, nil
}

type recordingNotifier struct {
	notes []alerting.Notification
	err   error
}

func (n *recordingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	n.notes = append(n.notes, note)
	return n.err
}

func ratesPage() *fetcher.Page {
	text := "Gold Price 24KT/1g ₹11250\nGold Price 22KT/1g ₹10310\nGold Price 18KT/1g ₹8440"
	return fetcher.NewPage(sourceURL, "", text, nil)
}

func newTestService(pf fetcher.PageFetcher, store storage.SnapshotStore, n alerting.Notifier, opts Options) *Service {
	opts.SourceURL = sourceURL
	svc := New(opts, pf, extract.New(nil), store, n, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 10, 18, 4, 0, 0, 0, time.UTC) }
	return svc
}

func TestCheckFirstRunNotifiesAndPersists(t *testing.T) {
	store := &memoryStore{}
	n := &recordingNotifier{}
	svc := newTestService(&stubFetcher{page: ratesPage()}, store, n, Options{})

	res, err := svc.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, detector.FirstRun, res.Outcome)
	require.True(t, res.Notified)
	require.NotEmpty(t, res.RunID)

	require.Len(t, n.notes, 1)
	require.Equal(t, alerting.KindRates, n.notes[0].Kind)
	require.Nil(t, n.notes[0].Previous)
	require.Equal(t, 3, n.notes[0].Rates.Len())

	require.Equal(t, 1, store.saves)
	require.Equal(t, res.RunID, store.rec.RunID)
	require.Equal(t, extract.StrategyTextScan, store.rec.Strategy)
	require.True(t, store.rec.Rates.Equal(res.Snapshot))
}

func TestCheckUnchangedIsSilent(t *testing.T) {
	prev := rates.FromMap(map[rates.Key]string{rates.Gold24: "11250", rates.Gold22: "10310", rates.Gold18: "8440"})
	store := &memoryStore{rec: &storage.Record{Rates: prev}}
	n := &recordingNotifier{}
	svc := newTestService(&stubFetcher{page: ratesPage()}, store, n, Options{})

	res, err := svc.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, detector.Unchanged, res.Outcome)
	require.False(t, res.Notified)
	require.Empty(t, n.notes)
	require.Zero(t, store.saves)
}

func TestCheckChangedCarriesPrevious(t *testing.T) {
	prev := rates.FromMap(map[rates.Key]string{rates.Gold24: "11200", rates.Gold22: "10310"})
	store := &memoryStore{rec: &storage.Record{Rates: prev}}
	n := &recordingNotifier{}
	svc := newTestService(&stubFetcher{page: ratesPage()}, store, n, Options{})

	res, err := svc.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, detector.Changed, res.Outcome)
	require.Len(t, n.notes, 1)
	require.NotNil(t, n.notes[0].Previous)
	require.True(t, n.notes[0].Previous.Equal(prev))

	got, ok := store.rec.Rates.Get(rates.Gold24)
	require.True(t, ok)
	require.Equal(t, "11250", got)
}

func TestCheckDeliveryFailureKeepsState(t *testing.T) {
	prev := rates.FromMap(map[rates.Key]string{rates.Gold24: "11200"})
	store := &memoryStore{rec: &storage.Record{Rates: prev}}
	n := &recordingNotifier{err: &alerting.DeliveryError{Status: 500}}
	svc := newTestService(&stubFetcher{page: ratesPage()}, store, n, Options{})

	_, err := svc.Check(context.Background())
	var de *alerting.DeliveryError
	require.ErrorAs(t, err, &de)
	require.Zero(t, store.saves)
	require.True(t, store.rec.Rates.Equal(prev))
}

func TestCheckNoRatesDumpsPage(t *testing.T) {
	dir := t.TempDir()
	store := &memoryStore{}
	n := &recordingNotifier{}
	page := fetcher.NewPage(sourceURL, "<html><body>Welcome</body></html>", "Welcome", nil)
	svc := newTestService(&stubFetcher{page: page}, store, n, Options{DebugDir: dir})

	_, err := svc.Check(context.Background())
	require.ErrorIs(t, err, extract.ErrNoRates)
	require.Empty(t, n.notes)
	require.Zero(t, store.saves)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestRunReportsFailure(t *testing.T) {
	store := &memoryStore{}
	n := &recordingNotifier{}
	fetchErr := &fetcher.FetchError{URL: sourceURL, Stage: fetcher.StageNavigate, Err: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	svc := newTestService(&stubFetcher{err: fetchErr}, store, n, Options{})

	_, err := svc.Run(context.Background())
	require.ErrorAs(t, err, new(*fetcher.FetchError))
	require.Len(t, n.notes, 1)
	require.Equal(t, alerting.KindFailure, n.notes[0].Kind)
	require.ErrorIs(t, n.notes[0].Err, fetchErr)
	require.Zero(t, store.saves)
}

func TestRunReportsNoRates(t *testing.T) {
	store := &memoryStore{}
	n := &recordingNotifier{}
	page := fetcher.NewPage(sourceURL, "<html><body>Store locator</body></html>", "", nil)
	svc := newTestService(&stubFetcher{page: page}, store, n, Options{})

	_, err := svc.Run(context.Background())
	require.ErrorIs(t, err, extract.ErrNoRates)
	require.Len(t, n.notes, 1)
	require.Equal(t, alerting.KindFailure, n.notes[0].Kind)
	require.ErrorIs(t, n.notes[0].Err, extract.ErrNoRates)
	require.Zero(t, store.saves)
}

func TestRunJoinsUndeliveredFailureReport(t *testing.T) {
	deliveryErr := &alerting.DeliveryError{Status: 401, Description: "Unauthorized"}
	n := &recordingNotifier{err: deliveryErr}
	svc := newTestService(&stubFetcher{err: errors.New("boom")}, &memoryStore{}, n, Options{})

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, deliveryErr)
	require.Contains(t, err.Error(), "boom")
}

func TestRunSucceedsWithoutFailureReport(t *testing.T) {
	n := &recordingNotifier{}
	svc := newTestService(&stubFetcher{page: ratesPage()}, &memoryStore{}, n, Options{})

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, n.notes, 1)
	require.Equal(t, alerting.KindRates, n.notes[0].Kind)
}

func TestCheckSkipsWhenLockHeld(t *testing.T) {
	store := &lockingStore{held: true}
	n := &recordingNotifier{}
	svc := newTestService(&stubFetcher{page: ratesPage()}, store, n, Options{LockKey: 42})

	res, err := svc.Check(context.Background())
	require.NoError(t, err)
	require.True(t, res.Skipped)
	require.Empty(t, n.notes)
}

func TestCheckReleasesLock(t *testing.T) {
	store := &lockingStore{}
	svc := newTestService(&stubFetcher{page: ratesPage()}, store, &recordingNotifier{}, Options{LockKey: 42})

	_, err := svc.Check(context.Background())
	require.NoError(t, err)
	require.True(t, store.released)
	require.Equal(t, 1, store.saves)
}

func TestReportFailureSurvivesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := &ctxNotifier{}
	err := NotifyFailure(ctx, n, errors.New("interrupted"), sourceURL, time.Now())
	require.NoError(t, err)
	require.NoError(t, n.ctxErr)
}

type ctxNotifier struct{ ctxErr error }

func (n *ctxNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	n.ctxErr = ctx.Err()
	return nil
}
