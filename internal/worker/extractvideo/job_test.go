package extractvideo

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/hitoshi/snowpulse/internal/ai"
	"github.com/hitoshi/snowpulse/internal/model"
	"github.com/hitoshi/snowpulse/internal/participant"
	"github.com/hitoshi/snowpulse/internal/repository"
	"github.com/hitoshi/snowpulse/internal/transcript"
)

const sampleVTT = `WEBVTT

00:00:01.000 --> 00:00:04.000
Welcome everyone, I'm Bill McDermott, CEO of ServiceNow.

00:00:05.000 --> 00:00:08.000
And I'm Jane Doe from Acme Corp.
`

type fakeRunner struct {
	content string
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	base := args[len(args)-2]
	return os.WriteFile(base+".en.vtt", []byte(r.content), 0o644)
}

type mockParticipantRepo struct {
	repository.ParticipantRepository

	byExact  map[string]*model.Participant
	created  []*model.Participant
	updated  []*model.Participant
	sessions [][2]string
}

func newMockParticipantRepo() *mockParticipantRepo {
	return &mockParticipantRepo{byExact: map[string]*model.Participant{}}
}

func (m *mockParticipantRepo) FindByNameExact(ctx context.Context, name string) (*model.Participant, error) {
	return m.byExact[name], nil
}

func (m *mockParticipantRepo) FindByNormalizedName(ctx context.Context, normalized string) (*model.Participant, error) {
	return nil, nil
}

func (m *mockParticipantRepo) FindByAlias(ctx context.Context, name string) (*model.Participant, error) {
	return nil, nil
}

func (m *mockParticipantRepo) Create(ctx context.Context, p *model.Participant) error {
	p.ID = fmt.Sprintf("p-%d", len(m.created)+1)
	m.created = append(m.created, p)
	m.byExact[p.Name] = p
	return nil
}

func (m *mockParticipantRepo) Update(ctx context.Context, p *model.Participant) error {
	m.updated = append(m.updated, p)
	return nil
}

func (m *mockParticipantRepo) LinkSession(ctx context.Context, sessionID, participantID string) error {
	m.sessions = append(m.sessions, [2]string{sessionID, participantID})
	return nil
}

type nopCollector struct{}

func (nopCollector) RecordFetchSuccess(sourceID string)            {}
func (nopCollector) RecordFetchFailure(sourceID, reason string)    {}
func (nopCollector) RecordHTTPStatus(status int)                   {}
func (nopCollector) RecordItemsCreated(count int)                  {}
func (nopCollector) RecordEnrichment(outcome string)               {}
func (nopCollector) RecordExternalCall(service string)             {}
func (nopCollector) RecordJobDuration(job string, d time.Duration) {}

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q}}]}`, content)
	}))
}

func newTestJob(t *testing.T, repo *mockParticipantRepo, extractResponse string) *Job {
	t.Helper()

	fetcher := transcript.NewFetcherWithRunner(&fakeRunner{content: sampleVTT}, t.TempDir())

	server := chatServer(t, extractResponse)
	t.Cleanup(server.Close)
	chat := ai.NewChatClientWithHTTP(server.URL, "test-key", server.Client())
	extractor := ai.NewExtractor(chat, "gpt-4o-mini", 100000)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(repo, participant.NewResolver(repo), fetcher, extractor, nopCollector{}, logger)
}

func TestRunCreatesParticipants(t *testing.T) {
	repo := newMockParticipantRepo()
	job := newTestJob(t, repo,
		`[{"name":"Bill McDermott","title":"CEO","company":"ServiceNow"},{"name":"Jane Doe","title":null,"company":"Acme Corp"}]`)

	err := job.Run(context.Background(), map[string]string{"video_url": "https://example.com/v"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(repo.created) != 2 {
		t.Fatalf("created = %d, want 2", len(repo.created))
	}
	first := repo.created[0]
	if first.Name != "Bill Mc Dermott" {
		t.Errorf("Name = %q", first.Name)
	}
	if first.Title != "CEO" || first.CompanyName != "ServiceNow" {
		t.Errorf("Title = %q, CompanyName = %q", first.Title, first.CompanyName)
	}
	if len(repo.sessions) != 0 {
		t.Errorf("sessions = %v, want empty", repo.sessions)
	}
}

func TestRunUpdatesExistingParticipant(t *testing.T) {
	repo := newMockParticipantRepo()
	repo.byExact["Jane Doe"] = &model.Participant{ID: "p-existing", Name: "Jane Doe"}
	job := newTestJob(t, repo,
		`[{"name":"Jane Doe","title":"VP of Product","company":"Acme Corp"}]`)

	err := job.Run(context.Background(), map[string]string{
		"video_url":  "https://example.com/v",
		"session_id": "sess-1",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(repo.created) != 0 {
		t.Fatalf("created = %d, want 0", len(repo.created))
	}
	if len(repo.updated) != 1 {
		t.Fatalf("updated = %d, want 1", len(repo.updated))
	}
	got := repo.updated[0]
	if got.Title != "VP of Product" || got.CompanyName != "Acme Corp" {
		t.Errorf("Title = %q, CompanyName = %q", got.Title, got.CompanyName)
	}
	if len(repo.sessions) != 1 || repo.sessions[0] != [2]string{"sess-1", "p-existing"} {
		t.Errorf("sessions = %v", repo.sessions)
	}
}

func TestRunRequiresVideoURL(t *testing.T) {
	job := newTestJob(t, newMockParticipantRepo(), `[]`)

	if err := job.Run(context.Background(), nil); err == nil {
		t.Fatal("Run() error = nil, want error")
	}
}
