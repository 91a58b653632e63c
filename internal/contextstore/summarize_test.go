package contextstore

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arborlabs/arbor/internal/gateway"
	"github.com/arborlabs/arbor/internal/store"
)

type fakeCompleter struct {
	mu      sync.Mutex
	calls   int
	lastReq gateway.Request
	reply   string
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, req gateway.Request) (*gateway.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	return &gateway.Result{Content: f.reply, FinishReason: "stop"}, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func summarizerStore(t *testing.T, st *store.Stores, fc *fakeCompleter) *Store {
	t.Helper()
	return New(Config{
		SummaryModel:    "summarizer-model",
		SummaryProvider: "test",
		SummaryLookback: 6 * time.Hour,
		SummaryChunk:    time.Hour,
	}, st, fc)
}

func seedHistory(t *testing.T, st *store.Stores, channelID string, at time.Time) {
	t.Helper()
	rows := []store.Message{
		{MessageID: "s1", UserID: "u1", Content: "Alice: how do trains work?", CreatedAt: at},
		{MessageID: "s2", UserID: "bot", IsAssistant: true, PersonaName: "Sage",
			Content: "They run on rails.", CreatedAt: at.Add(time.Minute)},
	}
	for _, r := range rows {
		r.ChannelID = channelID
		if err := st.Messages.Upsert(context.Background(), r); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
}

func TestSummarizeCondensesClosedChunks(t *testing.T) {
	st := testStores(t)
	fc := &fakeCompleter{reply: "Alice learned how trains work."}
	cs := summarizerStore(t, st, fc)
	ctx := context.Background()

	seedHistory(t, st, "ch1", time.Now().UTC().Add(-90*time.Minute))

	written, err := cs.Summarize(ctx, "ch1", false)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if written != 1 {
		t.Fatalf("wrote %d summaries, want 1", written)
	}
	if fc.callCount() != 1 {
		t.Fatalf("completer called %d times, want 1", fc.callCount())
	}

	summaries, err := st.Summaries.List(ctx, "ch1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	got := summaries[0]
	if got.Text != "Alice learned how trains work." {
		t.Errorf("text = %q", got.Text)
	}
	if !got.EndTS.After(got.StartTS) {
		t.Errorf("window [%v, %v) is not forward", got.StartTS, got.EndTS)
	}

	// The transcript sent upstream names the persona, not a generic speaker.
	fc.mu.Lock()
	transcript := fc.lastReq.Messages[len(fc.lastReq.Messages)-1].Content
	fc.mu.Unlock()
	if !strings.Contains(transcript, "Sage: They run on rails.") {
		t.Errorf("transcript = %q", transcript)
	}
}

func TestSummarizeChunksNeverOverlap(t *testing.T) {
	st := testStores(t)
	fc := &fakeCompleter{reply: "summary text"}
	cs := summarizerStore(t, st, fc)
	ctx := context.Background()

	seedHistory(t, st, "ch1", time.Now().UTC().Add(-4*time.Hour-30*time.Minute))

	if _, err := cs.Summarize(ctx, "ch1", true); err != nil {
		t.Fatalf("first Summarize: %v", err)
	}
	// Later history behind the existing summary boundary.
	extra := store.Message{
		MessageID: "s3", ChannelID: "ch1", UserID: "u1",
		Content: "Alice: and planes?", CreatedAt: time.Now().UTC().Add(-90 * time.Minute),
	}
	if err := st.Messages.Upsert(ctx, extra); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := cs.Summarize(ctx, "ch1", true); err != nil {
		t.Fatalf("second Summarize: %v", err)
	}

	summaries, err := st.Summaries.List(ctx, "ch1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	for i := 1; i < len(summaries); i++ {
		prev, cur := summaries[i-1], summaries[i]
		if cur.StartTS.Before(prev.EndTS) {
			t.Errorf("summary %d starts %v before previous end %v", i, cur.StartTS, prev.EndTS)
		}
	}
}

func TestSummarizeIncludesChunkBoundaryMessage(t *testing.T) {
	st := testStores(t)
	fc := &fakeCompleter{reply: "summary text"}
	cs := summarizerStore(t, st, fc)
	ctx := context.Background()

	// An existing summary pins the chunk grid to a known origin.
	prevEnd := time.Now().UTC().Truncate(time.Second).Add(-3 * time.Hour)
	if err := st.Summaries.Insert(ctx, store.Summary{
		ChannelID: "ch1", StartTS: prevEnd.Add(-time.Hour), EndTS: prevEnd, Text: "earlier",
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	// The only new message sits exactly on the next chunk's end boundary.
	boundary := store.Message{
		MessageID: "s5", ChannelID: "ch1", UserID: "u1",
		Content: "Alice: right on the hour", CreatedAt: prevEnd.Add(time.Hour),
	}
	if err := st.Messages.Upsert(ctx, boundary); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	written, err := cs.Summarize(ctx, "ch1", true)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if written != 1 {
		t.Fatalf("wrote %d summaries, want 1", written)
	}
	if fc.callCount() != 1 {
		t.Fatalf("completer called %d times, want 1", fc.callCount())
	}

	summaries, err := st.Summaries.List(ctx, "ch1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	got := summaries[1]
	if !got.StartTS.Equal(prevEnd) || !got.EndTS.Equal(prevEnd.Add(time.Hour)) {
		t.Errorf("window [%v, %v], want [%v, %v]",
			got.StartTS, got.EndTS, prevEnd, prevEnd.Add(time.Hour))
	}
}

func TestSummarizeCooldown(t *testing.T) {
	st := testStores(t)
	fc := &fakeCompleter{reply: "summary text"}
	cs := summarizerStore(t, st, fc)
	ctx := context.Background()

	seedHistory(t, st, "ch1", time.Now().UTC().Add(-90*time.Minute))

	if _, err := cs.Summarize(ctx, "ch1", false); err != nil {
		t.Fatalf("first Summarize: %v", err)
	}
	calls := fc.callCount()

	// New history behind the summary boundary.
	extra := store.Message{
		MessageID: "s9", ChannelID: "ch1", UserID: "u1",
		Content: "Alice: one more thing", CreatedAt: time.Now().UTC().Add(-30 * time.Minute),
	}
	if err := st.Messages.Upsert(ctx, extra); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Within the cooldown nothing runs, even with new history.
	written, err := cs.Summarize(ctx, "ch1", false)
	if err != nil {
		t.Fatalf("second Summarize: %v", err)
	}
	if written != 0 {
		t.Errorf("cooldown wrote %d summaries, want 0", written)
	}
	if fc.callCount() != calls {
		t.Errorf("cooldown did not suppress: %d calls, want %d", fc.callCount(), calls)
	}

	// force bypasses the cooldown.
	written, err = cs.Summarize(ctx, "ch1", true)
	if err != nil {
		t.Fatalf("forced Summarize: %v", err)
	}
	if written == 0 {
		t.Error("force wrote no summaries")
	}
	if fc.callCount() <= calls {
		t.Errorf("force did not run: still %d calls", fc.callCount())
	}
}

func TestSummarizeDisabledWithoutModel(t *testing.T) {
	st := testStores(t)
	fc := &fakeCompleter{reply: "should not run"}
	cs := New(Config{}, st, fc)
	ctx := context.Background()

	seedHistory(t, st, "ch1", time.Now().UTC().Add(-2*time.Hour))
	written, err := cs.Summarize(ctx, "ch1", true)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if written != 0 {
		t.Errorf("wrote %d summaries, want 0", written)
	}
	if fc.callCount() != 0 {
		t.Errorf("completer called %d times, want 0", fc.callCount())
	}
}
