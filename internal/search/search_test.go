package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/justestif/go-castor/internal/catalog"
	"github.com/justestif/go-castor/internal/credential"
	"github.com/justestif/go-castor/internal/debounce"
)

type call struct {
	token string
	query string
}

// fakeSearcher answers from a table keyed by credential value and query.
type fakeSearcher struct {
	mu      sync.Mutex
	results map[call][]catalog.Track
	errs    map[call]error
	calls   []call
	block   chan struct{}
}

func (f *fakeSearcher) SearchTracks(ctx context.Context, cred credential.Credential, query string, limit int) ([]catalog.Track, error) {
	c := call{token: cred.Value, query: query}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := f.errs[c]; err != nil {
		return nil, err
	}
	return f.results[c], nil
}

func (f *fakeSearcher) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fakeAuthorizer struct {
	resolved    string
	resolveErr  error
	fallback    string
	fallbackErr error
}

func (f *fakeAuthorizer) Resolve(context.Context) (credential.Credential, error) {
	if f.resolveErr != nil {
		return credential.Credential{}, f.resolveErr
	}
	return credential.Issue(f.resolved, time.Hour, time.Now(), "exchange"), nil
}

func (f *fakeAuthorizer) Fallback(context.Context) (credential.Credential, error) {
	if f.fallbackErr != nil {
		return credential.Credential{}, f.fallbackErr
	}
	return credential.Issue(f.fallback, time.Hour, time.Now(), "last_resort"), nil
}

func tracks(ids ...string) []catalog.Track {
	out := make([]catalog.Track, len(ids))
	for i, id := range ids {
		out[i] = catalog.Track{ID: id, Title: id}
	}
	return out
}

func TestPipeline_Tiers(t *testing.T) {
	boom := errors.New("catalog unavailable")

	tests := []struct {
		name      string
		auth      *fakeAuthorizer
		results   map[call][]catalog.Track
		errs      map[call]error
		query     string
		wantTier  Tier
		wantIDs   []string
		wantCalls []call
	}{
		{
			name:      "authenticated hit",
			auth:      &fakeAuthorizer{resolved: "user", fallback: "public"},
			results:   map[call][]catalog.Track{{"user", "bad bunny"}: tracks("a", "b")},
			query:     "bad bunny",
			wantTier:  TierAuthenticated,
			wantIDs:   []string{"a", "b"},
			wantCalls: []call{{"user", "bad bunny"}},
		},
		{
			name:     "authenticated error falls to public",
			auth:     &fakeAuthorizer{resolved: "user", fallback: "public"},
			errs:     map[call]error{{"user", "q"}: boom},
			results:  map[call][]catalog.Track{{"public", "q"}: tracks("p")},
			query:    "q",
			wantTier: TierPublic,
			wantIDs:  []string{"p"},
		},
		{
			name:     "empty results fall to popular",
			auth:     &fakeAuthorizer{resolved: "user", fallback: "public"},
			results:  map[call][]catalog.Track{{"user", DefaultPopularQuery}: tracks("top")},
			query:    "zzzzzz",
			wantTier: TierPopular,
			wantIDs:  []string{"top"},
			wantCalls: []call{
				{"user", "zzzzzz"},
				{"public", "zzzzzz"},
				{"user", DefaultPopularQuery},
			},
		},
		{
			name:     "popular with public credential",
			auth:     &fakeAuthorizer{resolveErr: credential.ErrNoCredentialAvailable, fallback: "public"},
			results:  map[call][]catalog.Track{{"public", DefaultPopularQuery}: tracks("top")},
			query:    "nothing",
			wantTier: TierPopular,
			wantIDs:  []string{"top"},
		},
		{
			name:      "blank query goes straight to popular",
			auth:      &fakeAuthorizer{resolved: "user", fallback: "public"},
			results:   map[call][]catalog.Track{{"user", DefaultPopularQuery}: tracks("top")},
			query:     "   ",
			wantTier:  TierPopular,
			wantIDs:   []string{"top"},
			wantCalls: []call{{"user", DefaultPopularQuery}},
		},
		{
			name:  "resolved is the public credential",
			auth:  &fakeAuthorizer{resolved: "public", fallback: "public"},
			query: "q",
			wantCalls: []call{
				{"public", "q"},
				{"public", DefaultPopularQuery},
			},
			wantTier: TierNone,
		},
		{
			name: "total outage is empty, not an error",
			auth: &fakeAuthorizer{
				resolveErr:  credential.ErrNoCredentialAvailable,
				fallbackErr: credential.ErrNoCredentialAvailable,
			},
			query:    "anything",
			wantTier: TierNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &fakeSearcher{results: tt.results, errs: tt.errs}
			p := New(searcher, tt.auth)

			out, err := p.Search(context.Background(), debounce.Query{Text: tt.query, Sequence: 7})
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if out.Sequence != 7 {
				t.Errorf("Sequence = %d, want 7", out.Sequence)
			}
			if out.Tier != tt.wantTier {
				t.Errorf("Tier = %q, want %q", out.Tier, tt.wantTier)
			}
			if out.Tracks == nil {
				t.Error("Tracks is nil, want empty slice")
			}
			if len(out.Tracks) != len(tt.wantIDs) {
				t.Fatalf("got %d tracks, want %d", len(out.Tracks), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if out.Tracks[i].ID != id {
					t.Errorf("Tracks[%d] = %q, want %q", i, out.Tracks[i].ID, id)
				}
			}

			if tt.wantCalls != nil {
				got := searcher.recorded()
				if len(got) != len(tt.wantCalls) {
					t.Fatalf("calls = %v, want %v", got, tt.wantCalls)
				}
				for i := range got {
					if got[i] != tt.wantCalls[i] {
						t.Errorf("call %d = %v, want %v", i, got[i], tt.wantCalls[i])
					}
				}
			}
		})
	}
}

func TestPipeline_CancelledContext(t *testing.T) {
	searcher := &fakeSearcher{block: make(chan struct{})}
	p := New(searcher, &fakeAuthorizer{resolved: "user", fallback: "public"})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := p.Search(ctx, debounce.Query{Text: "q", Sequence: 1})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Search() error = %v, want context.Canceled", err)
	}
}

func TestPipeline_TierTimeout(t *testing.T) {
	searcher := &fakeSearcher{block: make(chan struct{})}
	p := New(searcher, &fakeAuthorizer{resolved: "user", fallback: "public"}, WithTierTimeout(10*time.Millisecond))

	start := time.Now()
	out, err := p.Search(context.Background(), debounce.Query{Text: "q", Sequence: 1})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if out.Tier != TierNone {
		t.Errorf("Tier = %q, want none", out.Tier)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Search() took %v, tier timeout not applied", elapsed)
	}
}

func TestResults_Gate(t *testing.T) {
	var r Results

	if _, ok := r.Current(); ok {
		t.Fatal("Current() on empty Results returned ok")
	}

	if !r.Apply(Outcome{Sequence: 1, Tracks: tracks("one")}) {
		t.Fatal("Apply(1) rejected")
	}

	r.Announce(3)
	if r.Apply(Outcome{Sequence: 2, Tracks: tracks("two")}) {
		t.Error("Apply(2) accepted after Announce(3)")
	}
	if cur, _ := r.Current(); cur.Sequence != 1 {
		t.Errorf("Current().Sequence = %d, want 1", cur.Sequence)
	}

	if !r.Apply(Outcome{Sequence: 3, Tracks: tracks("three")}) {
		t.Error("Apply(3) rejected")
	}
	if r.Apply(Outcome{Sequence: 1}) {
		t.Error("Apply(1) accepted after 3 applied")
	}

	r.Announce(2)
	if !r.Apply(Outcome{Sequence: 4}) {
		t.Error("Apply(4) rejected")
	}
}

// stallingSearcher holds one query until release is closed, ignoring
// cancellation the way a slow upstream that never checks ctx would.
type stallingSearcher struct {
	stall   string
	started chan struct{}
	release chan struct{}
}

func (s *stallingSearcher) SearchTracks(_ context.Context, _ credential.Credential, query string, _ int) ([]catalog.Track, error) {
	if query == s.stall {
		close(s.started)
		<-s.release
	}
	return tracks(query), nil
}

func TestPipeline_RunDropsStaleResults(t *testing.T) {
	searcher := &stallingSearcher{
		stall:   "slow",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	p := New(searcher, &fakeAuthorizer{resolved: "user", fallback: "public"})

	queries := make(chan debounce.Query)
	var results Results

	var mu sync.Mutex
	var applied []uint64
	appliedCh := make(chan uint64, 2)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(context.Background(), queries, &results, func(o Outcome) {
			mu.Lock()
			applied = append(applied, o.Sequence)
			mu.Unlock()
			appliedCh <- o.Sequence
		})
	}()

	queries <- debounce.Query{Text: "slow", Sequence: 1}
	select {
	case <-searcher.started:
	case <-time.After(2 * time.Second):
		t.Fatal("slow search never started")
	}

	queries <- debounce.Query{Text: "fast", Sequence: 2}
	select {
	case seq := <-appliedCh:
		if seq != 2 {
			t.Fatalf("first applied sequence = %d, want 2", seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fast search never applied")
	}

	// The slow search now completes with tracks despite its cancelled context.
	close(searcher.release)
	close(queries)
	<-done

	cur, ok := results.Current()
	if !ok || cur.Sequence != 2 || cur.Tracks[0].ID != "fast" {
		t.Errorf("Current() = %+v, want sequence 2 with fast", cur)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(applied) != 1 || applied[0] != 2 {
		t.Errorf("applied = %v, want [2]", applied)
	}
}
