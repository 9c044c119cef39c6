package enrichpartners

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/snowpulse/internal/fetch"
	"github.com/hitoshi/snowpulse/internal/model"
	"github.com/hitoshi/snowpulse/internal/repository"
	"github.com/hitoshi/snowpulse/internal/sitemap"
)

const partnerSitemap = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>https://partner.example/servicenow-integration-services</loc></url>
<url><loc>https://partner.example/servicenow</loc></url>
<url><loc>https://partner.example/servicenow/products/incident-management</loc></url>
<url><loc>https://partner.example/blog/first-post</loc></url>
</urlset>`

const partnerHomepage = `<html><head>
<meta property="og:image" content="https://cdn.partner.example/logo.png" />
<link rel="alternate" type="application/rss+xml" href="/blog/feed.xml">
</head><body></body></html>`

type mockCompanyRepo struct {
	repository.CompanyRepository

	partners []*model.Company
	applied  [][]*repository.EnrichmentUpdate
}

func (m *mockCompanyRepo) ListActivePartners(ctx context.Context) ([]*model.Company, error) {
	return m.partners, nil
}

func (m *mockCompanyRepo) ApplyEnrichment(ctx context.Context, updates []*repository.EnrichmentUpdate) error {
	m.applied = append(m.applied, updates)
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

type nopGuard struct{}

func (nopGuard) ValidateURL(rawURL string) error { return nil }

func (nopGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
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

func newTestJob(companies *mockCompanyRepo, sched *recordingScheduler, server *httptest.Server) *Job {
	fetcher := fetch.New(server.Client(), "test-agent/1.0", 10*1024*1024)
	return New(companies, fetcher, nopGuard{}, sitemap.NewAnalyzer(), sched, nopCollector{}, testLogger(), Config{
		BatchSize:  10,
		BatchPause: time.Millisecond,
		Interval:   24 * time.Hour,
	})
}

func TestRunEnrichesPartnerWithSitemap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(partnerSitemap))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(partnerHomepage))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	companies := &mockCompanyRepo{partners: []*model.Company{
		{ID: "c-1", Name: "Acme Corp", Website: server.URL},
	}}
	sched := &recordingScheduler{}

	job := newTestJob(companies, sched, server)
	if err := job.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(companies.applied) != 1 || len(companies.applied[0]) != 1 {
		t.Fatalf("applied = %v, want 1 batch with 1 update", companies.applied)
	}
	update := companies.applied[0][0]

	if update.CompanyID != "c-1" {
		t.Errorf("CompanyID = %q", update.CompanyID)
	}
	if !update.HasSitemap {
		t.Error("HasSitemap = false, want true")
	}
	// 最短のServiceNow関連URLがランディングページとして選ばれる
	if update.ServicenowPageURL != "https://partner.example/servicenow" {
		t.Errorf("ServicenowPageURL = %q", update.ServicenowPageURL)
	}
	if len(update.Products) != 1 || update.Products[0] != "Incident Management" {
		t.Errorf("Products = %v", update.Products)
	}
	if update.ImageURL != "https://cdn.partner.example/logo.png" {
		t.Errorf("ImageURL = %q", update.ImageURL)
	}
	if update.RSSFeedURL != server.URL+"/blog/feed.xml" {
		t.Errorf("RSSFeedURL = %q", update.RSSFeedURL)
	}

	if len(sched.names) != 1 || sched.names[0] != JobName {
		t.Errorf("scheduled = %v, want [%s]", sched.names, JobName)
	}
	if sched.delays[0] != 24*time.Hour {
		t.Errorf("delay = %v, want 24h", sched.delays[0])
	}
}

func TestRunSkipsPartnerWithoutSitemap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(partnerHomepage))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	companies := &mockCompanyRepo{partners: []*model.Company{
		{ID: "c-1", Name: "Acme Corp", Website: server.URL},
	}}
	sched := &recordingScheduler{}

	job := newTestJob(companies, sched, server)
	if err := job.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// sitemap.xmlが無いサイトは更新されない
	if len(companies.applied) != 0 {
		t.Errorf("applied = %v, want none", companies.applied)
	}
	if len(sched.names) != 1 || sched.names[0] != JobName {
		t.Errorf("scheduled = %v, want reschedule only", sched.names)
	}
}

func TestRunFallsBackToFaviconLogo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(partnerSitemap))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><head></head><body></body></html>"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	companies := &mockCompanyRepo{partners: []*model.Company{
		{ID: "c-1", Name: "Acme Corp", Website: server.URL},
	}}
	sched := &recordingScheduler{}

	job := newTestJob(companies, sched, server)
	if err := job.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(companies.applied) != 1 || len(companies.applied[0]) != 1 {
		t.Fatalf("applied = %v, want 1 update", companies.applied)
	}
	update := companies.applied[0][0]
	if !strings.HasPrefix(update.ImageURL, "https://www.google.com/s2/favicons?domain=") {
		t.Errorf("ImageURL = %q, want favicon fallback", update.ImageURL)
	}
}

func TestRunFindsFeedUnderBlogPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(partnerSitemap))
	})
	mux.HandleFunc("/blog/feed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
	})
	// トップページは<link>宣言なし
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><head></head><body></body></html>"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	companies := &mockCompanyRepo{partners: []*model.Company{
		{ID: "c-1", Name: "Acme Corp", Website: server.URL},
	}}
	sched := &recordingScheduler{}

	job := newTestJob(companies, sched, server)
	if err := job.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(companies.applied) != 1 || len(companies.applied[0]) != 1 {
		t.Fatalf("applied = %v, want 1 update", companies.applied)
	}
	update := companies.applied[0][0]
	// サイトマップのブログURLから導出したパスが先に試される
	if update.RSSFeedURL != server.URL+"/blog/feed" {
		t.Errorf("RSSFeedURL = %q, want %q", update.RSSFeedURL, server.URL+"/blog/feed")
	}
}

func TestBlogBasePath(t *testing.T) {
	tests := []struct {
		urls []string
		want string
	}{
		{urls: []string{"https://partner.example/blog/first-post"}, want: "/blog"},
		{urls: []string{"https://partner.example/news/2026/platform-update"}, want: "/news/2026"},
		{urls: []string{"https://partner.example/insights/"}, want: ""},
		{urls: nil, want: ""},
	}
	for _, tt := range tests {
		if got := blogBasePath(tt.urls); got != tt.want {
			t.Errorf("blogBasePath(%v) = %q, want %q", tt.urls, got, tt.want)
		}
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://acme.example/about", "https://acme.example", false},
		{"acme.example", "https://acme.example", false},
		{"http://acme.example", "http://acme.example", false},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := normalizeBaseURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("normalizeBaseURL(%q) error = nil, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("normalizeBaseURL(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("normalizeBaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
