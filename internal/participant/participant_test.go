package participant

import (
	"context"
	"strings"
	"testing"

	"github.com/lib/pq"

	"github.com/hitoshi/snowpulse/internal/model"
	"github.com/hitoshi/snowpulse/internal/repository"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"キャメルケース展開", "JaceNow", "jace now"},
		{"敬称の除去", "John Smith, Jr.", "john smith"},
		{"肩書きの除去", "Jane Doe, CEO", "jane doe"},
		{"スペース圧縮と小文字化", "  Bill   McDermott  ", "bill mc dermott"},
		{"空入力", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeName(tt.in); got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTitleCase(t *testing.T) {
	if got := TitleCase("jace benson"); got != "Jace Benson" {
		t.Errorf("TitleCase() = %q, want %q", got, "Jace Benson")
	}
}

// mockParticipantRepo はParticipantRepositoryのテスト用実装。
type mockParticipantRepo struct {
	repository.ParticipantRepository

	byExact      map[string]*model.Participant
	byNormalized map[string]*model.Participant
	byAlias      map[string]*model.Participant
	createErr    error
	created      []*model.Participant
}

func (m *mockParticipantRepo) FindByNameExact(ctx context.Context, name string) (*model.Participant, error) {
	return m.byExact[strings.ToLower(name)], nil
}

func (m *mockParticipantRepo) FindByNormalizedName(ctx context.Context, normalized string) (*model.Participant, error) {
	return m.byNormalized[normalized], nil
}

func (m *mockParticipantRepo) FindByAlias(ctx context.Context, name string) (*model.Participant, error) {
	return m.byAlias[strings.ToLower(name)], nil
}

func (m *mockParticipantRepo) Create(ctx context.Context, p *model.Participant) error {
	if m.createErr != nil {
		return m.createErr
	}
	p.ID = "created-id"
	m.created = append(m.created, p)
	return nil
}

func TestResolveTriesVariantsInOrder(t *testing.T) {
	aliased := &model.Participant{ID: "p1", Name: "Jace Benson"}
	repo := &mockParticipantRepo{
		byExact:      map[string]*model.Participant{},
		byNormalized: map[string]*model.Participant{},
		byAlias:      map[string]*model.Participant{"jacenow": aliased},
	}

	r := NewResolver(repo)
	got, err := r.Resolve(context.Background(), "JaceNow")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != aliased {
		t.Errorf("Resolve() = %+v, want alias match", got)
	}
}

func TestFindOrCreateNormalizesNewName(t *testing.T) {
	repo := &mockParticipantRepo{
		byExact:      map[string]*model.Participant{},
		byNormalized: map[string]*model.Participant{},
		byAlias:      map[string]*model.Participant{},
	}

	r := NewResolver(repo)
	p, created, err := r.FindOrCreate(context.Background(), "bill mcdermott", func(p *model.Participant) {
		p.Title = "CEO"
	})
	if err != nil {
		t.Fatalf("FindOrCreate() error = %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
	if p.Name != "Bill Mcdermott" {
		t.Errorf("Name = %q, want title-cased", p.Name)
	}
	if p.Title != "CEO" {
		t.Errorf("Title = %q, init func not applied", p.Title)
	}
}

// racingParticipantRepo は最初の解決では見つからず、作成が一意制約に
// 衝突した後の再解決で競合相手のレコードを返すリポジトリ。
type racingParticipantRepo struct {
	mockParticipantRepo
	winner     *model.Participant
	raceLost   bool
	exactCalls int
}

func (m *racingParticipantRepo) FindByNameExact(ctx context.Context, name string) (*model.Participant, error) {
	m.exactCalls++
	if m.raceLost {
		return m.winner, nil
	}
	return nil, nil
}

func (m *racingParticipantRepo) Create(ctx context.Context, p *model.Participant) error {
	m.raceLost = true
	return &pq.Error{Code: "23505"}
}

func TestFindOrCreateReresolvesOnUniqueViolation(t *testing.T) {
	winner := &model.Participant{ID: "p9", Name: "Jane Doe"}
	repo := &racingParticipantRepo{
		mockParticipantRepo: mockParticipantRepo{
			byExact:      map[string]*model.Participant{},
			byNormalized: map[string]*model.Participant{},
			byAlias:      map[string]*model.Participant{},
		},
		winner: winner,
	}

	r := NewResolver(repo)
	p, created, err := r.FindOrCreate(context.Background(), "Jane Doe", nil)
	if err != nil {
		t.Fatalf("FindOrCreate() error = %v", err)
	}
	if created {
		t.Error("created = true, want false after race re-resolve")
	}
	if p != winner {
		t.Errorf("FindOrCreate() = %+v, want race winner", p)
	}
}

func TestMatchCompany(t *testing.T) {
	companies := []*model.Company{
		{ID: "c1", Name: "Deloitte Consulting LLP"},
		{ID: "c2", Name: "IBM"},
		{ID: "c3", Name: "ServiceNow"},
	}

	tests := []struct {
		name   string
		hint   string
		wantID string
	}{
		{"完全一致", "servicenow", "c3"},
		{"前方一致", "Deloitte", "c1"},
		{"逆前方一致", "IBM Corporation", "c2"},
		{"不一致", "Acme Corp", ""},
		{"空ヒント", "  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchCompany(companies, tt.hint)
			if tt.wantID == "" {
				if got != nil {
					t.Errorf("MatchCompany() = %+v, want nil", got)
				}
				return
			}
			if got == nil || got.ID != tt.wantID {
				t.Errorf("MatchCompany() = %+v, want ID %s", got, tt.wantID)
			}
		})
	}
}

func TestFindDuplicateGroups(t *testing.T) {
	participants := []*model.Participant{
		{ID: "p1", Name: "Jace Benson"},
		{ID: "p2", Name: "JaceBenson"},
		{ID: "p3", Name: "Unique Person"},
		{ID: "p4", Name: "jace benson"},
	}

	groups := FindDuplicateGroups(participants)
	if len(groups) != 1 {
		t.Fatalf("len(groups) = %d, want 1: %+v", len(groups), groups)
	}
	if groups[0].NormalizedName != "jace benson" {
		t.Errorf("NormalizedName = %q", groups[0].NormalizedName)
	}
	if len(groups[0].Participants) != 3 {
		t.Errorf("group size = %d, want 3", len(groups[0].Participants))
	}
	// グループ内は名前順
	if groups[0].Participants[0].Name != "JaceBenson" {
		t.Errorf("group not sorted by name: %+v", groups[0].Participants)
	}
}

func TestBuildMerge(t *testing.T) {
	target := &model.Participant{
		ID:      "t1",
		Name:    "Jace Benson",
		Title:   "Developer",
		Aliases: []string{"jace"},
	}
	source := &model.Participant{
		ID:          "s1",
		Name:        "JaceNow",
		Title:       "Developer Advocate",
		CompanyName: "ServiceNow",
		CompanyID:   "c1",
		UserID:      "u1",
		Aliases:     []string{"jacenow dev"},
	}

	m, err := BuildMerge(target, source, map[string]string{
		"title":      ChoiceSource,
		"company_id": ChoiceSource,
	})
	if err != nil {
		t.Fatalf("BuildMerge() error = %v", err)
	}

	if m.SourceNameChosen {
		t.Error("SourceNameChosen = true, want false")
	}
	if m.Target.Name != "Jace Benson" {
		t.Errorf("Name = %q, want target name kept", m.Target.Name)
	}
	if m.Target.Title != "Developer Advocate" {
		t.Errorf("Title = %q, want source title", m.Target.Title)
	}
	if m.Target.CompanyID != "c1" {
		t.Errorf("CompanyID = %q, want c1", m.Target.CompanyID)
	}
	if m.Target.UserID != "u1" {
		t.Errorf("UserID = %q, want filled from source", m.Target.UserID)
	}

	// 別名にはソースの別名とマージ前の名前が合成される
	for _, want := range []string{"jace", "jacenow dev", "JaceNow"} {
		if !m.Target.HasAlias(want) {
			t.Errorf("alias %q missing: %v", want, m.Target.Aliases)
		}
	}
}

func TestBuildMergeSourceNameChosen(t *testing.T) {
	target := &model.Participant{ID: "t1", Name: "Jace Benson"}
	source := &model.Participant{ID: "s1", Name: "Jace B. Benson"}

	m, err := BuildMerge(target, source, map[string]string{"name": ChoiceSource})
	if err != nil {
		t.Fatalf("BuildMerge() error = %v", err)
	}
	if !m.SourceNameChosen {
		t.Error("SourceNameChosen = false, want true")
	}
	if m.Target.Name != "Jace B. Benson" {
		t.Errorf("Name = %q, want source name", m.Target.Name)
	}
}

func TestBuildMergeSelfMerge(t *testing.T) {
	p := &model.Participant{ID: "p1", Name: "Someone"}
	if _, err := BuildMerge(p, p, nil); err == nil {
		t.Error("BuildMerge() = nil error, want self-merge error")
	}
}
