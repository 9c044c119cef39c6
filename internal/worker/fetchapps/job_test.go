package fetchapps

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/snowpulse/internal/fetch"
	"github.com/hitoshi/snowpulse/internal/markdown"
	"github.com/hitoshi/snowpulse/internal/model"
	"github.com/hitoshi/snowpulse/internal/repository"
	"github.com/hitoshi/snowpulse/internal/store"
)

type mockAppRepo struct {
	repository.StoreAppRepository

	bySourceID map[string]*model.StoreApp
	created    []*model.StoreApp
	updated    []*model.StoreApp
}

func newMockAppRepo(apps ...*model.StoreApp) *mockAppRepo {
	m := &mockAppRepo{bySourceID: map[string]*model.StoreApp{}}
	for _, app := range apps {
		m.bySourceID[app.SourceAppID] = app
	}
	return m
}

func (m *mockAppRepo) FindBySourceAppID(ctx context.Context, sourceAppID string) (*model.StoreApp, error) {
	return m.bySourceID[sourceAppID], nil
}

func (m *mockAppRepo) Create(ctx context.Context, app *model.StoreApp) error {
	m.created = append(m.created, app)
	return nil
}

func (m *mockAppRepo) Update(ctx context.Context, app *model.StoreApp) error {
	m.updated = append(m.updated, app)
	return nil
}

type recordingScheduler struct {
	names  []string
	delays []time.Duration
}

func (s *recordingScheduler) Schedule(name string, delay time.Duration, args map[string]string) {
	s.names = append(s.names, name)
	s.delays = append(s.delays, delay)
}

type nopCollector struct{}

func (nopCollector) RecordFetchSuccess(sourceID string)            {}
func (nopCollector) RecordFetchFailure(sourceID, reason string)    {}
func (nopCollector) RecordHTTPStatus(status int)                   {}
func (nopCollector) RecordItemsCreated(count int)                  {}
func (nopCollector) RecordEnrichment(outcome string)               {}
func (nopCollector) RecordExternalCall(service string)             {}
func (nopCollector) RecordJobDuration(job string, d time.Duration) {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newStoreServer(t *testing.T) *store.Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/sn_appstore_store.do", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "JSESSIONID=test-session; Path=/")
		w.Write([]byte(`<html><script>var g_ck = 'token-abc';</script></html>`))
	})
	mux.HandleFunc("/appStore.do", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		var payload struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal([]byte(r.PostFormValue("sysparm_data")), &payload); err != nil {
			t.Fatalf("sysparm_data is not JSON: %v", err)
		}

		switch payload.Action {
		case "store.Search.GetLatestListing":
			w.Write([]byte(`{"result":[{"source_app_id":"app-1","title":"App One","version":"2.0"}]}`))
		case "store.Application.GetById":
			w.Write([]byte(`{"result":{
				"source_app_id":"app-1","title":"App One","version":"2.0",
				"price_type":"free","purchaseCount":42
			}}`))
		default:
			t.Errorf("unexpected action %q", payload.Action)
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	httpClient := fetch.New(server.Client(), "test-agent/1.0", 1<<20)
	return store.NewClientWithURLs(httpClient, server.URL+"/sn_appstore_store.do", server.URL+"/appStore.do")
}

func newTestJob(apps *mockAppRepo, client *store.Client, sched *recordingScheduler) *Job {
	return New(apps, client, markdown.NewConverter(), sched, nopCollector{}, testLogger(), Config{
		DetailDelay: time.Millisecond,
		Interval:    12 * time.Hour,
	})
}

func TestRunSyncsListing(t *testing.T) {
	apps := newMockAppRepo()
	sched := &recordingScheduler{}

	job := newTestJob(apps, newStoreServer(t), sched)
	if err := job.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(apps.created) != 1 {
		t.Fatalf("created = %d, want 1", len(apps.created))
	}
	app := apps.created[0]
	if app.SourceAppID != "app-1" {
		t.Errorf("SourceAppID = %q, want app-1", app.SourceAppID)
	}
	if app.PurchaseCount != 42 {
		t.Errorf("PurchaseCount = %d, want 42", app.PurchaseCount)
	}
	if app.LastFetchedAt == nil {
		t.Error("LastFetchedAt should be set")
	}

	// purchase_trendには実行日のスナップショットが入る
	today := time.Now().Format("2006-01-02")
	if !strings.Contains(app.PurchaseTrend, today) {
		t.Errorf("PurchaseTrend = %q, should contain %s", app.PurchaseTrend, today)
	}

	if len(sched.names) != 1 || sched.names[0] != JobName {
		t.Errorf("scheduled = %v, want [%s]", sched.names, JobName)
	}
	if sched.delays[0] != 12*time.Hour {
		t.Errorf("delay = %v, want 12h", sched.delays[0])
	}
}

func TestRunAppendsTrendToExistingApp(t *testing.T) {
	existing := &model.StoreApp{
		ID:            "db-1",
		SourceAppID:   "app-1",
		PurchaseTrend: `{"2026-08-01":{"count":40,"price":"Free","version":"1.9"}}`,
	}
	apps := newMockAppRepo(existing)
	sched := &recordingScheduler{}

	job := newTestJob(apps, newStoreServer(t), sched)
	if err := job.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(apps.created) != 0 {
		t.Errorf("created = %d, want 0", len(apps.created))
	}
	if len(apps.updated) != 1 {
		t.Fatalf("updated = %d, want 1", len(apps.updated))
	}
	app := apps.updated[0]
	if app.ID != "db-1" {
		t.Errorf("ID = %q, want db-1 (既存レコードを引き継ぐ)", app.ID)
	}

	var trend map[string]model.TrendPoint
	if err := json.Unmarshal([]byte(app.PurchaseTrend), &trend); err != nil {
		t.Fatalf("PurchaseTrend is not JSON: %v", err)
	}
	if len(trend) != 2 {
		t.Errorf("trend days = %d, want 2 (既存分＋当日分)", len(trend))
	}
	if trend["2026-08-01"].Count != 40 {
		t.Errorf("past point = %+v, should be preserved", trend["2026-08-01"])
	}
}

func TestRunSingleAppDoesNotReschedule(t *testing.T) {
	apps := newMockAppRepo()
	sched := &recordingScheduler{}

	job := newTestJob(apps, newStoreServer(t), sched)
	args := map[string]string{"app_id": "app-1"}
	if err := job.Run(context.Background(), args); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(apps.created) != 1 {
		t.Errorf("created = %d, want 1", len(apps.created))
	}
	if len(sched.names) != 0 {
		t.Errorf("scheduled = %v, want none (個別実行)", sched.names)
	}
}
