package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/koompi/nimmit-assistant/pkg/brief"
	"github.com/koompi/nimmit-assistant/pkg/models"
	"github.com/koompi/nimmit-assistant/pkg/store"
	"github.com/koompi/nimmit-assistant/pkg/testutil"
)

type fakeSource struct {
	jobs     []models.Job
	sessions []models.BriefingSession
	prefs    []models.ClientPreference
	err      error
	prefErr  error
}

func (f *fakeSource) ListClientJobs(context.Context, string, int) ([]models.Job, error) {
	return f.jobs, f.err
}

func (f *fakeSource) ListCompletedBriefs(context.Context, string, int) ([]models.BriefingSession, error) {
	return f.sessions, nil
}

func (f *fakeSource) ListPreferences(context.Context, string) ([]models.ClientPreference, error) {
	return f.prefs, f.prefErr
}

func TestStoreRetriever_AnySourceErrorFails(t *testing.T) {
	jobs := []models.Job{{Title: "Logo design", UpdatedAt: testutil.FixedNow}}
	tests := []struct {
		name string
		src  *fakeSource
		want string
	}{
		{"jobs", &fakeSource{err: errors.New("jobs offline")}, "list client jobs"},
		{"preferences", &fakeSource{jobs: jobs, prefErr: errors.New("prefs offline")}, "list preferences"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := NewStoreRetriever(tt.src, 5).Retrieve(context.Background(), "c", "logo")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Retrieve() = %v, %v; want error mentioning %q", items, err, tt.want)
			}
		})
	}
}

func TestStoreRetriever_RanksByOverlapThenRecency(t *testing.T) {
	base := testutil.FixedNow
	src := &fakeSource{
		jobs: []models.Job{
			{Title: "Wedding photos", Description: "edit 200 photos", Category: "design", UpdatedAt: base},
			{Title: "Logo design", Description: "logo for a coffee shop", Category: "design", UpdatedAt: base.Add(-48 * time.Hour)},
			{Title: "Logo refresh", Description: "new logo colours", Category: "design", UpdatedAt: base.Add(-time.Hour)},
		},
		prefs: []models.ClientPreference{{Key: "language", Value: "Khmer", UpdatedAt: base}},
	}

	items, err := NewStoreRetriever(src, 5).Retrieve(context.Background(), "c", "I need a new logo")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	if len(items) != 3 {
		t.Fatalf("got %d items, want 3: %+v", len(items), items)
	}
	if !strings.Contains(items[0].Content, "Logo refresh") {
		t.Errorf("items[0] = %q, want the logo refresh job (matches both terms)", items[0].Content)
	}
	if !strings.Contains(items[1].Content, "Logo design") {
		t.Errorf("items[1] = %q, want the older logo job", items[1].Content)
	}
	if items[2].Source != SourcePreference {
		t.Errorf("items[2].Source = %q, want preference kept by floor score", items[2].Source)
	}
}

func TestStoreRetriever_MaxItems(t *testing.T) {
	src := &fakeSource{}
	for i := 0; i < 10; i++ {
		src.jobs = append(src.jobs, models.Job{Title: "translation job", UpdatedAt: testutil.FixedNow})
	}
	items, err := NewStoreRetriever(src, 3).Retrieve(context.Background(), "c", "translation")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(items) != 3 {
		t.Errorf("got %d items, want 3", len(items))
	}
}

func TestStoreRetriever_IncludesEarlierBriefs(t *testing.T) {
	src := &fakeSource{
		sessions: []models.BriefingSession{
			{ExtractedBrief: &brief.Brief{Title: "Menu", Category: "translation", Description: "translate menu to English"}},
			{ExtractedBrief: nil},
		},
	}
	items, err := NewStoreRetriever(src, 5).Retrieve(context.Background(), "c", "translate another menu")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(items) != 1 || items[0].Source != SourceBrief {
		t.Fatalf("items = %+v, want one brief", items)
	}
}

func TestFetch_SwallowsErrors(t *testing.T) {
	r := NewStoreRetriever(&fakeSource{err: errors.New("db down")}, 5)
	items := Fetch(context.Background(), r, "c", "logo", nil)
	if items == nil || len(items) != 0 {
		t.Errorf("Fetch() = %v, want empty non-nil slice", items)
	}
	if got := Fetch(context.Background(), nil, "c", "logo", nil); got != nil {
		t.Errorf("Fetch(nil) = %v, want nil", got)
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name    string
		items   []Item
		preview int
		want    string
	}{
		{name: "empty", items: nil, preview: 10, want: ""},
		{
			name:    "short items untouched",
			items:   []Item{{Content: "one"}, {Content: "two"}},
			preview: 10,
			want:    "- one\n- two",
		},
		{
			name:    "truncated rune safe",
			items:   []Item{{Content: "សួស្តីពិភពលោក"}},
			preview: 4,
			want:    "- សួស…",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summarize(tt.items, tt.preview); got != tt.want {
				t.Errorf("Summarize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStoreRetriever_WithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)

	if _, err := s.CreateJob(ctx, storeJob("c-1", "Translate brochure")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := s.CreateJob(ctx, storeJob("c-2", "Translate contract")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	items, err := NewStoreRetriever(s, 5).Retrieve(ctx, "c-1", "translate a brochure")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(items) != 1 || !strings.Contains(items[0].Content, "brochure") {
		t.Errorf("items = %+v, want only c-1's brochure job", items)
	}
}

func storeJob(clientID, title string) store.NewJob {
	return store.NewJob{ClientID: clientID, Title: title, Category: "translation", Status: models.JobCompleted}
}
