package contextstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/arborlabs/arbor/internal/gateway"
	"github.com/arborlabs/arbor/internal/store"
	"github.com/arborlabs/arbor/internal/store/sqlite"
)

func testStores(t *testing.T) *store.Stores {
	t.Helper()
	st, err := sqlite.NewStores(":memory:")
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func userTurn(msgID, content string) Turn {
	return Turn{
		MessageID:  msgID,
		ChannelID:  "ch1",
		UserID:     "u1",
		AuthorName: "Alice",
		Content:    content,
	}
}

func TestAppendPrefixesUserTurns(t *testing.T) {
	st := testStores(t)
	cs := New(Config{}, st, nil)
	ctx := context.Background()

	if err := cs.Append(ctx, userTurn("m1", "hello")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	msgs, err := cs.Read(ctx, "ch1", ReadOptions{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Role != gateway.RoleUser || msgs[0].Content != "Alice: hello" {
		t.Errorf("got %+v", msgs[0])
	}
}

func TestAppendSkipsEmptyContent(t *testing.T) {
	st := testStores(t)
	cs := New(Config{}, st, nil)
	ctx := context.Background()

	if err := cs.Append(ctx, userTurn("m1", "   \n")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	rows, err := st.Messages.Window(ctx, "ch1", 10, "")
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("stored %d rows, want 0", len(rows))
	}
}

func TestAppendSuppressesDuplicateUserTurn(t *testing.T) {
	st := testStores(t)
	cs := New(Config{}, st, nil)
	ctx := context.Background()

	if err := cs.Append(ctx, userTurn("m1", "same thing")); err != nil {
		t.Fatalf("first Append: %v", err)
	}
	// Different message id, identical content from the same author.
	if err := cs.Append(ctx, userTurn("m2", "same thing")); err != nil {
		t.Fatalf("second Append: %v", err)
	}
	rows, err := st.Messages.Window(ctx, "ch1", 10, "")
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("stored %d rows, want 1", len(rows))
	}
}

func TestStreamingUpsertKeepsLatestContent(t *testing.T) {
	st := testStores(t)
	cs := New(Config{}, st, nil)
	ctx := context.Background()

	turn := Turn{MessageID: "r1", ChannelID: "ch1", UserID: "bot", IsAssistant: true, Content: "Partial"}
	if err := cs.Append(ctx, turn); err != nil {
		t.Fatalf("Append: %v", err)
	}
	turn.Content = "Partial answer, now complete."
	turn.PersonaName = "Sage"
	turn.Emotion = "joy"
	if err := cs.Append(ctx, turn); err != nil {
		t.Fatalf("second Append: %v", err)
	}

	rows, err := st.Messages.Window(ctx, "ch1", 10, "")
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("stored %d rows, want 1", len(rows))
	}
	if rows[0].Content != "Partial answer, now complete." {
		t.Errorf("content = %q", rows[0].Content)
	}
	if rows[0].PersonaName != "Sage" || rows[0].Emotion != "joy" {
		t.Errorf("persona/emotion = %q/%q", rows[0].PersonaName, rows[0].Emotion)
	}
}

func TestReadWindowLimitAndExclude(t *testing.T) {
	st := testStores(t)
	cs := New(Config{}, st, nil)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i, content := range []string{"one", "two", "three", "four"} {
		err := st.Messages.Upsert(ctx, store.Message{
			MessageID: content,
			ChannelID: "ch1",
			UserID:    "u1",
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	msgs, err := cs.Read(ctx, "ch1", ReadOptions{Limit: 2})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "three" || msgs[1].Content != "four" {
		t.Errorf("limited read = %+v", msgs)
	}

	msgs, err = cs.Read(ctx, "ch1", ReadOptions{Limit: 2, ExcludeMessageID: "four"})
	if err != nil {
		t.Fatalf("Read with exclude: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "two" || msgs[1].Content != "three" {
		t.Errorf("excluded read = %+v", msgs)
	}
}

func TestReadDeduplicatesKeepingEarliest(t *testing.T) {
	st := testStores(t)
	cs := New(Config{}, st, nil)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	rows := []store.Message{
		{MessageID: "a", Content: "Alice: hi", CreatedAt: base},
		{MessageID: "b", Content: "Bob: different", CreatedAt: base.Add(time.Second)},
		{MessageID: "c", Content: "Alice: hi", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, r := range rows {
		r.ChannelID = "ch1"
		r.UserID = "u1"
		if err := st.Messages.Upsert(ctx, r); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	msgs, err := cs.Read(ctx, "ch1", ReadOptions{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2: %+v", len(msgs), msgs)
	}
	if msgs[0].Content != "Alice: hi" || msgs[1].Content != "Bob: different" {
		t.Errorf("order = %+v", msgs)
	}
}

func TestReadPrependsSummary(t *testing.T) {
	st := testStores(t)
	cs := New(Config{}, st, nil)
	ctx := context.Background()

	err := st.Summaries.Insert(ctx, store.Summary{
		ChannelID: "ch1",
		StartTS:   time.Now().Add(-2 * time.Hour),
		EndTS:     time.Now().Add(-time.Hour),
		Text:      "Alice asked about trains.",
	})
	if err != nil {
		t.Fatalf("Insert summary: %v", err)
	}
	if err := cs.Append(ctx, userTurn("m1", "and buses?")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	msgs, err := cs.Read(ctx, "ch1", ReadOptions{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != gateway.RoleSystem || !strings.HasPrefix(msgs[0].Content, "Summary of earlier conversation: ") {
		t.Errorf("leading entry = %+v", msgs[0])
	}
	if !strings.Contains(msgs[0].Content, "Alice asked about trains.") {
		t.Errorf("summary text missing: %q", msgs[0].Content)
	}
}

func TestReadEnforcesAlternationForStrictModels(t *testing.T) {
	st := testStores(t)
	cs := New(Config{}, st, nil)
	ctx := context.Background()

	if err := cs.Append(ctx, userTurn("m1", "first question")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	second := userTurn("m2", "second question")
	second.AuthorName = "Bob"
	if err := cs.Append(ctx, second); err != nil {
		t.Fatalf("Append: %v", err)
	}

	msgs, err := cs.Read(ctx, "ch1", ReadOptions{ModelID: "anthropic/claude-3.5-sonnet:beta"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3 (placeholder inserted): %+v", len(msgs), msgs)
	}
	if msgs[1].Role != gateway.RoleAssistant || msgs[1].Content != "..." {
		t.Errorf("placeholder = %+v", msgs[1])
	}

	// A non-strict model gets the raw sequence.
	msgs, err = cs.Read(ctx, "ch1", ReadOptions{ModelID: "gpt-4o"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("got %d messages, want 2: %+v", len(msgs), msgs)
	}
}

func TestWindowOverride(t *testing.T) {
	st := testStores(t)
	cs := New(Config{}, st, nil)
	ctx := context.Background()

	if got, err := cs.Window(ctx, "ch1"); err != nil || got != DefaultWindow {
		t.Fatalf("Window = %d, %v; want %d", got, err, DefaultWindow)
	}
	if err := cs.SetWindow(ctx, "ch1", 3); err != nil {
		t.Fatalf("SetWindow: %v", err)
	}
	if got, _ := cs.Window(ctx, "ch1"); got != 3 {
		t.Errorf("Window after override = %d, want 3", got)
	}
	if err := cs.ResetWindow(ctx, "ch1"); err != nil {
		t.Fatalf("ResetWindow: %v", err)
	}
	if got, _ := cs.Window(ctx, "ch1"); got != DefaultWindow {
		t.Errorf("Window after reset = %d, want %d", got, DefaultWindow)
	}

	if err := cs.SetWindow(ctx, "ch1", 0); err == nil {
		t.Error("SetWindow(0) should fail")
	}
	if err := cs.SetWindow(ctx, "ch1", MaxWindow+1); err == nil {
		t.Errorf("SetWindow(%d) should fail", MaxWindow+1)
	}
}

func TestClearAndClearBefore(t *testing.T) {
	st := testStores(t)
	cs := New(Config{}, st, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	old := store.Message{MessageID: "old", ChannelID: "ch1", UserID: "u1", Content: "old", CreatedAt: now.Add(-3 * time.Hour)}
	recent := store.Message{MessageID: "new", ChannelID: "ch1", UserID: "u1", Content: "new", CreatedAt: now}
	for _, m := range []store.Message{old, recent} {
		if err := st.Messages.Upsert(ctx, m); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	if err := cs.ClearBefore(ctx, "ch1", now.Add(-time.Hour)); err != nil {
		t.Fatalf("ClearBefore: %v", err)
	}
	rows, _ := st.Messages.Window(ctx, "ch1", 10, "")
	if len(rows) != 1 || rows[0].MessageID != "new" {
		t.Fatalf("after ClearBefore rows = %+v", rows)
	}

	if err := cs.Clear(ctx, "ch1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	rows, _ = st.Messages.Window(ctx, "ch1", 10, "")
	if len(rows) != 0 {
		t.Errorf("after Clear rows = %+v", rows)
	}
}

func TestEnforceAlternation(t *testing.T) {
	in := []gateway.Message{
		{Role: gateway.RoleSystem, Content: "sys"},
		{Role: gateway.RoleUser, Content: "a"},
		{Role: gateway.RoleUser, Content: "b"},
		{Role: gateway.RoleAssistant, Content: "c"},
		{Role: gateway.RoleAssistant, Content: "d"},
	}
	out := enforceAlternation(in)
	roles := make([]string, len(out))
	for i, m := range out {
		roles[i] = m.Role
	}
	want := []string{
		gateway.RoleSystem,
		gateway.RoleUser, gateway.RoleAssistant, gateway.RoleUser,
		gateway.RoleAssistant, gateway.RoleUser, gateway.RoleAssistant,
	}
	if len(roles) != len(want) {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("roles = %v, want %v", roles, want)
		}
	}
}

func TestTTLCache(t *testing.T) {
	c := newTTLCache(50 * time.Millisecond)
	rows := []store.Message{{MessageID: "m1"}}

	key := cacheKey("ch1", 10, "")
	c.put(key, rows)
	if got, ok := c.get(key); !ok || len(got) != 1 {
		t.Fatalf("get after put = %v, %v", got, ok)
	}

	c.put(cacheKey("ch2", 10, ""), rows)
	c.invalidateChannel("ch1")
	if _, ok := c.get(key); ok {
		t.Error("entry survived invalidation")
	}
	if _, ok := c.get(cacheKey("ch2", 10, "")); !ok {
		t.Error("other channel entry was dropped")
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok := c.get(cacheKey("ch2", 10, "")); ok {
		t.Error("entry survived past TTL")
	}
}
