package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/paradixe-xz/evaInstance-sub001/internal/elevenlabs"
)

// fakeAPI serves a fixed item set with optional per-item detail failures.
type fakeAPI struct {
	items       []elevenlabs.ListItem
	failDetail  map[string]error
	listCursors []string
	listStart   []int64
	listEnd     []int64
}

func (f *fakeAPI) ListConversations(_ context.Context, cursor, _ string, startUnix, endUnix int64) (*elevenlabs.Page, error) {
	f.listCursors = append(f.listCursors, cursor)
	f.listStart = append(f.listStart, startUnix)
	f.listEnd = append(f.listEnd, endUnix)
	return &elevenlabs.Page{Items: f.items, HasMore: false}, nil
}

func (f *fakeAPI) GetConversation(_ context.Context, id string) (*elevenlabs.Detail, error) {
	if err := f.failDetail[id]; err != nil {
		return nil, err
	}
	return &elevenlabs.Detail{
		ConversationID: id,
		UserID:         "user_" + id,
		Transcript:     json.RawMessage(`[{"role":"agent","message":"hola"}]`),
		Analysis:       &elevenlabs.Analysis{CallSuccessful: "success"},
	}, nil
}

// memStore collects upserts keyed by id.
type memStore struct {
	records map[string]ConversationRecord
	failIDs map[string]error
	upserts int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]ConversationRecord)}
}

func (m *memStore) UpsertConversation(_ context.Context, rec ConversationRecord) error {
	if err := m.failIDs[rec.ID]; err != nil {
		return err
	}
	m.upserts++
	m.records[rec.ID] = rec
	return nil
}

// recordingNotifier captures the notification sequence.
type recordingNotifier struct {
	started   int
	progress  []int
	completed int
}

func (n *recordingNotifier) SyncStarted(_, _ string, _ int)      { n.started++ }
func (n *recordingNotifier) SyncProgress(_ string, p, _ int)     { n.progress = append(n.progress, p) }
func (n *recordingNotifier) SyncCompleted(_ string, _ *Report)   { n.completed++ }

func newTestOrchestrator(api *fakeAPI, store *memStore, opts Options) *Orchestrator {
	w := NewWalker(api, testLogger())
	w.sleep = func(context.Context, time.Duration) error { return nil }
	return NewOrchestrator(w, api, store, opts, testLogger())
}

func listOf(n int) []elevenlabs.ListItem {
	out := make([]elevenlabs.ListItem, n)
	for i := range out {
		out[i] = elevenlabs.ListItem{ConversationID: fmt.Sprintf("conv_%d", i+1), AgentID: "agent_a"}
	}
	return out
}

func TestSyncAll_HappyPath(t *testing.T) {
	api := &fakeAPI{items: listOf(3)}
	store := newMemStore()

	report, err := newTestOrchestrator(api, store, Options{}).SyncAll(context.Background(), "agent_a", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Total != 3 || report.Synced != 3 || len(report.Errors) != 0 {
		t.Errorf("report = %+v", report)
	}
	if report.RunID == "" {
		t.Error("expected a run id")
	}
	if len(store.records) != 3 {
		t.Errorf("expected 3 stored records, got %d", len(store.records))
	}
}

func TestSyncAll_PartialFailureIsolation(t *testing.T) {
	api := &fakeAPI{
		items:      listOf(10),
		failDetail: map[string]error{"conv_5": errors.New("api error 500")},
	}
	store := newMemStore()

	report, err := newTestOrchestrator(api, store, Options{}).SyncAll(context.Background(), "agent_a", 0, 0)
	if err != nil {
		t.Fatalf("per-item failure must not fail the run: %v", err)
	}
	if report.Total != 10 || report.Synced != 9 {
		t.Errorf("report = total %d synced %d, want 10/9", report.Total, report.Synced)
	}
	if len(report.Errors) != 1 || report.Errors[0].ConversationID != "conv_5" || report.Errors[0].Stage != "detail" {
		t.Errorf("errors = %+v", report.Errors)
	}
	if _, ok := store.records["conv_5"]; ok {
		t.Error("failed item must not be persisted")
	}
	for _, id := range []string{"conv_1", "conv_4", "conv_6", "conv_10"} {
		if _, ok := store.records[id]; !ok {
			t.Errorf("item %s should have been persisted", id)
		}
	}
}

func TestSyncAll_PersistFailureRecorded(t *testing.T) {
	api := &fakeAPI{items: listOf(3)}
	store := newMemStore()
	store.failIDs = map[string]error{"conv_2": errors.New("connection refused")}

	report, err := newTestOrchestrator(api, store, Options{}).SyncAll(context.Background(), "agent_a", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Synced != 2 || len(report.Errors) != 1 || report.Errors[0].Stage != "persist" {
		t.Errorf("report = %+v", report)
	}
}

func TestSyncAll_Idempotent(t *testing.T) {
	api := &fakeAPI{items: listOf(2)}
	store := newMemStore()
	o := newTestOrchestrator(api, store, Options{})

	first, err := o.SyncAll(context.Background(), "agent_a", 0, 0)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	snapshot := make(map[string]ConversationRecord, len(store.records))
	for k, v := range store.records {
		snapshot[k] = v
	}

	second, err := o.SyncAll(context.Background(), "agent_a", 0, 0)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if first.Synced != second.Synced {
		t.Errorf("sync counts differ: %d vs %d", first.Synced, second.Synced)
	}
	if len(store.records) != 2 {
		t.Fatalf("re-sync must not duplicate records, got %d", len(store.records))
	}
	for id, rec := range store.records {
		before, _ := json.Marshal(snapshot[id])
		after, _ := json.Marshal(rec)
		if string(before) != string(after) {
			t.Errorf("record %s changed across identical syncs", id)
		}
	}
}

// failingFirstLister aborts the list walk immediately.
type failingFirstLister struct{ fakeAPI }

func (f *failingFirstLister) ListConversations(context.Context, string, string, int64, int64) (*elevenlabs.Page, error) {
	return nil, errors.New("api error 500: upstream down")
}

func TestSyncAll_FirstPageFailureIsFatal(t *testing.T) {
	api := &failingFirstLister{}
	store := newMemStore()
	w := NewWalker(api, testLogger())
	w.sleep = func(context.Context, time.Duration) error { return nil }
	o := NewOrchestrator(w, api, store, Options{}, testLogger())

	report, err := o.SyncAll(context.Background(), "agent_a", 0, 0)
	if err == nil {
		t.Fatal("expected a fatal error when nothing was accumulated")
	}
	if report != nil {
		t.Errorf("expected nil report, got %+v", report)
	}
}

// partialLister yields one good page then a non-transient failure.
type partialLister struct {
	fakeAPI
	calls int
}

func (p *partialLister) ListConversations(ctx context.Context, cursor, agentID string, s, e int64) (*elevenlabs.Page, error) {
	p.calls++
	if p.calls == 1 {
		return &elevenlabs.Page{Items: listOf(2), HasMore: true, NextCursor: "c2"}, nil
	}
	return nil, errors.New("api error 500")
}

func TestSyncAll_PartialWalkDegrades(t *testing.T) {
	api := &partialLister{}
	store := newMemStore()
	w := NewWalker(api, testLogger())
	w.sleep = func(context.Context, time.Duration) error { return nil }
	o := NewOrchestrator(w, &api.fakeAPI, store, Options{}, testLogger())

	report, err := o.SyncAll(context.Background(), "agent_a", 0, 0)
	if err != nil {
		t.Fatalf("partial walk must degrade, not fail: %v", err)
	}
	if !report.Truncated {
		t.Error("report must record the shortfall")
	}
	if report.Total != 2 || report.Synced != 2 {
		t.Errorf("report = %+v", report)
	}
	hasListError := false
	for _, e := range report.Errors {
		if e.Stage == "list" {
			hasListError = true
		}
	}
	if !hasListError {
		t.Error("expected a list-stage error entry for the shortfall")
	}
}

func TestSyncAll_WindowPriority(t *testing.T) {
	fixedNow := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	configured := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).Unix()
	explicit := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC).Unix()

	tests := []struct {
		name      string
		opts      Options
		arg       int64
		wantStart int64
	}{
		{"explicit beats configured and last-days", Options{DefaultStartUnix: configured, LastDays: 3}, explicit, explicit},
		{"configured beats last-days", Options{DefaultStartUnix: configured, LastDays: 3}, 0, configured},
		{"last-days when nothing else", Options{LastDays: 3}, 0, fixedNow.AddDate(0, 0, -3).Unix()},
		{"unbounded by default", Options{}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{items: listOf(1)}
			o := newTestOrchestrator(api, newMemStore(), tt.opts)
			o.now = func() time.Time { return fixedNow }

			if _, err := o.SyncAll(context.Background(), "agent_a", tt.arg, 0); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if api.listStart[0] != tt.wantStart {
				t.Errorf("call_start_after_unix = %d, want %d", api.listStart[0], tt.wantStart)
			}
		})
	}
}

func TestSyncAll_IncrementalWindowFromState(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	state, err := LoadState(statePath)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	last := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	state.MarkRun("run_0", "agent_a", last, 5, true)

	api := &fakeAPI{items: listOf(1)}
	o := newTestOrchestrator(api, newMemStore(), Options{Incremental: true}).WithState(state)

	if _, err := o.SyncAll(context.Background(), "agent_a", 0, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.listStart[0] != last.Unix() {
		t.Errorf("incremental start = %d, want %d", api.listStart[0], last.Unix())
	}
}

// windowedAPI filters its item set by the requested lower bound, the way
// the real list endpoint applies call_start_after_unix.
type windowedAPI struct {
	fakeAPI
	startTimes map[string]int64
}

func (w *windowedAPI) ListConversations(_ context.Context, _, _ string, startUnix, endUnix int64) (*elevenlabs.Page, error) {
	w.listStart = append(w.listStart, startUnix)
	w.listEnd = append(w.listEnd, endUnix)
	var visible []elevenlabs.ListItem
	for _, it := range w.items {
		if startUnix == 0 || w.startTimes[it.ConversationID] >= startUnix {
			visible = append(visible, it)
		}
	}
	return &elevenlabs.Page{Items: visible, HasMore: false}, nil
}

func TestSyncAll_DirtyRunHoldsIncrementalWatermark(t *testing.T) {
	state, err := LoadState(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("load state: %v", err)
	}

	callStart := time.Date(2026, 8, 18, 10, 0, 0, 0, time.UTC)
	api := &windowedAPI{
		fakeAPI: fakeAPI{
			items:      listOf(3),
			failDetail: map[string]error{"conv_2": errors.New("api error 500")},
		},
		startTimes: map[string]int64{
			"conv_1": callStart.Unix(),
			"conv_2": callStart.Unix(),
			"conv_3": callStart.Unix(),
		},
	}
	store := newMemStore()

	w := NewWalker(api, testLogger())
	w.sleep = func(context.Context, time.Duration) error { return nil }
	o := NewOrchestrator(w, api, store, Options{Incremental: true}, testLogger()).WithState(state)
	runNow := callStart.Add(time.Hour)
	o.now = func() time.Time { return runNow }

	report, err := o.SyncAll(context.Background(), "agent_a", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Synced != 2 || len(report.Errors) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if !state.LastSync("agent_a").IsZero() {
		t.Fatal("a run with failures must not advance the incremental watermark")
	}

	// The remote recovers; the held watermark must re-list the failed item
	// instead of windowing it out.
	api.failDetail = nil
	if _, err := o.SyncAll(context.Background(), "agent_a", 0, 0); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := api.listStart[1]; got != 0 {
		t.Errorf("second window start = %d, want 0 (held watermark)", got)
	}
	if _, ok := store.records["conv_2"]; !ok {
		t.Error("the previously failed conversation must be persisted on the retry run")
	}
	if !state.LastSync("agent_a").Equal(runNow) {
		t.Errorf("clean run must advance the watermark to %v, got %v", runNow, state.LastSync("agent_a"))
	}
}

// anomalousLister claims more pages without a continuation cursor.
type anomalousLister struct{ fakeAPI }

func (a *anomalousLister) ListConversations(context.Context, string, string, int64, int64) (*elevenlabs.Page, error) {
	return &elevenlabs.Page{Items: listOf(2), HasMore: true, NextCursor: ""}, nil
}

func TestSyncAll_PaginationAnomalySurfacesInReport(t *testing.T) {
	api := &anomalousLister{}
	store := newMemStore()
	w := NewWalker(api, testLogger())
	w.sleep = func(context.Context, time.Duration) error { return nil }
	o := NewOrchestrator(w, &api.fakeAPI, store, Options{}, testLogger())

	report, err := o.SyncAll(context.Background(), "agent_a", 0, 0)
	if err != nil {
		t.Fatalf("the anomaly must not fail the run: %v", err)
	}
	if report.Synced != 2 {
		t.Errorf("synced = %d, want 2", report.Synced)
	}
	if !report.Truncated {
		t.Error("report must flag the possibly incomplete list")
	}
	hasAnomalyError := false
	for _, e := range report.Errors {
		if e.Stage == "list" {
			hasAnomalyError = true
		}
	}
	if !hasAnomalyError {
		t.Error("expected a list-stage error entry for the anomaly")
	}
}

func TestSyncAll_ProgressNotifications(t *testing.T) {
	api := &fakeAPI{items: listOf(7)}
	n := &recordingNotifier{}
	o := newTestOrchestrator(api, newMemStore(), Options{ProgressEvery: 3}).WithNotifier(n)

	if _, err := o.SyncAll(context.Background(), "agent_a", 0, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.started != 1 || n.completed != 1 {
		t.Errorf("started=%d completed=%d, want 1/1", n.started, n.completed)
	}
	want := []int{3, 6}
	if len(n.progress) != len(want) {
		t.Fatalf("progress notifications = %v, want %v", n.progress, want)
	}
	for i := range want {
		if n.progress[i] != want[i] {
			t.Errorf("progress[%d] = %d, want %d", i, n.progress[i], want[i])
		}
	}
}

func TestSyncAll_CancellationReturnsPartialReport(t *testing.T) {
	api := &fakeAPI{items: listOf(5)}
	store := newMemStore()

	ctx, cancel := context.WithCancel(context.Background())
	// Cancel after the second upsert.
	cancelAfter := 2
	store.records = make(map[string]ConversationRecord)
	wrapped := &cancellingStore{inner: store, cancel: cancel, after: cancelAfter}

	w := NewWalker(api, testLogger())
	w.sleep = func(context.Context, time.Duration) error { return nil }
	o := NewOrchestrator(w, api, wrapped, Options{}, testLogger())

	report, err := o.SyncAll(ctx, "agent_a", 0, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if report == nil {
		t.Fatal("partial report must be returned on cancellation")
	}
	if report.Synced != cancelAfter {
		t.Errorf("synced = %d, want %d", report.Synced, cancelAfter)
	}
}

type cancellingStore struct {
	inner  *memStore
	cancel context.CancelFunc
	after  int
	count  int
}

func (c *cancellingStore) UpsertConversation(ctx context.Context, rec ConversationRecord) error {
	if err := c.inner.UpsertConversation(ctx, rec); err != nil {
		return err
	}
	c.count++
	if c.count == c.after {
		c.cancel()
	}
	return nil
}
