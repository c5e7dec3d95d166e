// Package retrieval gathers background snippets about a client to ground
// the briefing conversation: past jobs, earlier briefs and saved
// preferences.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/koompi/nimmit-assistant/pkg/brief"
	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
	"github.com/koompi/nimmit-assistant/pkg/models"
)

// Item sources.
const (
	SourceJob        = "job"
	SourceBrief      = "brief"
	SourcePreference = "preference"
)

// DefaultMaxItems is used when a StoreRetriever has no limit configured.
const DefaultMaxItems = 5

// preferenceFloor keeps preferences in the result when nothing else matches.
const preferenceFloor = 0.1

// candidateLimit bounds how many rows of each kind are considered.
const candidateLimit = 50

// Item is one context snippet.
type Item struct {
	Source  string    `json:"source"`
	Content string    `json:"content"`
	Score   float64   `json:"score"`
	At      time.Time `json:"at"`
}

// Retriever returns snippets relevant to query for a client.
type Retriever interface {
	Retrieve(ctx context.Context, clientID, query string) ([]Item, error)
}

// Source is the read access a StoreRetriever needs.
type Source interface {
	ListClientJobs(ctx context.Context, clientID string, limit int) ([]models.Job, error)
	ListCompletedBriefs(ctx context.Context, clientID string, limit int) ([]models.BriefingSession, error)
	ListPreferences(ctx context.Context, clientID string) ([]models.ClientPreference, error)
}

// StoreRetriever ranks a client's history by term overlap with the query.
type StoreRetriever struct {
	source   Source
	maxItems int
}

// NewStoreRetriever creates a retriever over source keeping at most maxItems.
func NewStoreRetriever(source Source, maxItems int) *StoreRetriever {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &StoreRetriever{source: source, maxItems: maxItems}
}

// Retrieve returns the client's most relevant snippets, best first.
func (r *StoreRetriever) Retrieve(ctx context.Context, clientID, query string) ([]Item, error) {
	candidates, err := r.candidates(ctx, clientID)
	if err != nil {
		return nil, err
	}

	terms := tokenize(query)
	var items []Item
	for _, c := range candidates {
		c.Score = overlap(terms, tokenize(c.Content))
		if c.Source == SourcePreference && c.Score < preferenceFloor {
			c.Score = preferenceFloor
		}
		if c.Score > 0 {
			items = append(items, c)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].At.After(items[j].At)
	})

	if len(items) > r.maxItems {
		items = items[:r.maxItems]
	}
	return items, nil
}

// candidates loads the three kinds of history concurrently. Items keep a
// fixed source order so ranking ties break the same way on every call.
func (r *StoreRetriever) candidates(ctx context.Context, clientID string) ([]Item, error) {
	var jobs, briefs, prefs []Item

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := r.source.ListClientJobs(gctx, clientID, candidateLimit)
		if err != nil {
			return nimerrors.Wrap(err, "list client jobs")
		}
		for _, j := range rows {
			jobs = append(jobs, Item{Source: SourceJob, Content: describeJob(j), At: j.UpdatedAt})
		}
		return nil
	})
	g.Go(func() error {
		rows, err := r.source.ListCompletedBriefs(gctx, clientID, candidateLimit)
		if err != nil {
			return nimerrors.Wrap(err, "list completed briefs")
		}
		for _, s := range rows {
			if s.ExtractedBrief == nil {
				continue
			}
			briefs = append(briefs, Item{Source: SourceBrief, Content: describeBrief(s.ExtractedBrief), At: s.UpdatedAt})
		}
		return nil
	})
	g.Go(func() error {
		rows, err := r.source.ListPreferences(gctx, clientID)
		if err != nil {
			return nimerrors.Wrap(err, "list preferences")
		}
		for _, p := range rows {
			prefs = append(prefs, Item{
				Source:  SourcePreference,
				Content: fmt.Sprintf("Preference %s: %s", strings.ReplaceAll(p.Key, "_", " "), p.Value),
				At:      p.UpdatedAt,
			})
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(jobs)+len(briefs)+len(prefs))
	items = append(items, jobs...)
	items = append(items, briefs...)
	return append(items, prefs...), nil
}

func describeBrief(b *brief.Brief) string {
	if b.Title != "" {
		return fmt.Sprintf("Earlier brief %q (%s): %s", b.Title, b.Category, b.Description)
	}
	return fmt.Sprintf("Earlier brief (%s): %s", b.Category, b.Description)
}

func describeJob(j models.Job) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Past job %q", j.Title)
	if j.Category != "" {
		fmt.Fprintf(&sb, " (%s)", j.Category)
	}
	if j.Status != "" {
		fmt.Fprintf(&sb, " [%s]", strings.ReplaceAll(string(j.Status), "_", " "))
	}
	if j.Description != "" {
		sb.WriteString(": ")
		sb.WriteString(j.Description)
	}
	return sb.String()
}

// Fetch runs r and never fails: errors are logged and yield no items.
func Fetch(ctx context.Context, r Retriever, clientID, query string, logger *slog.Logger) []Item {
	if r == nil {
		return nil
	}
	items, err := r.Retrieve(ctx, clientID, query)
	if err != nil {
		if logger != nil {
			logger.Warn("context retrieval failed", "client", clientID, "error", err)
		}
		return []Item{}
	}
	return items
}

// Summarize renders items as one bullet per line, each cut to previewLen
// runes.
func Summarize(items []Item, previewLen int) string {
	if len(items) == 0 {
		return ""
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, "- "+truncate(it.Content, previewLen))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if maxLen <= 0 || len(runes) <= maxLen {
		return s
	}
	if maxLen == 1 {
		return "…"
	}
	return strings.TrimRightFunc(string(runes[:maxLen-1]), unicode.IsSpace) + "…"
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"can": {}, "do": {}, "for": {}, "from": {}, "have": {}, "i": {}, "in": {}, "is": {},
	"it": {}, "me": {}, "my": {}, "need": {}, "of": {}, "on": {}, "or": {}, "our": {},
	"please": {}, "so": {}, "that": {}, "the": {}, "this": {}, "to": {}, "we": {},
	"want": {}, "with": {}, "would": {}, "you": {}, "your": {},
}

// tokenize returns the distinct lower-cased word tokens of s, stopwords removed.
func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		terms[f] = struct{}{}
	}
	return terms
}

// overlap is the fraction of query terms present in doc.
func overlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
