package handlers

import (
	"strings"
	"testing"
	"time"
)

func testSpecs() []Handler {
	return []Handler{
		{Name: "GPT4o", Model: "gpt-4o", Provider: "openrouter", SupportsVision: true},
		{Name: "Hermes", Model: "model-h", Provider: "openrouter", TriggerWords: []string{"hermes"}},
		{Name: "Sydney", Model: "model-s", Provider: "openpipe", TriggerWords: []string{"sydney", "syd"}},
	}
}

func TestNewRegistryValidation(t *testing.T) {
	if _, err := NewRegistry(nil, "GPT4o"); err == nil {
		t.Error("empty registry should fail")
	}
	if _, err := NewRegistry(testSpecs(), "Nonexistent"); err == nil {
		t.Error("unknown default should fail")
	}
	dup := append(testSpecs(), Handler{Name: "gpt4o", Model: "m", Provider: "openrouter"})
	if _, err := NewRegistry(dup, "GPT4o"); err == nil {
		t.Error("case-insensitive duplicate should fail")
	}
}

func TestRegistryLookupAndResolve(t *testing.T) {
	reg, err := NewRegistry(testSpecs(), "GPT4o")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if h, ok := reg.Lookup("hermes"); !ok || h.Name != "Hermes" {
		t.Errorf("Lookup(hermes) = %+v, %v", h, ok)
	}
	if _, ok := reg.Lookup("herm"); ok {
		t.Error("Lookup should not partial-match")
	}

	// Resolve tolerates sloppy classifier output in both directions.
	if h, ok := reg.Resolve("Sydney"); !ok || h.Name != "Sydney" {
		t.Errorf("Resolve exact = %+v, %v", h, ok)
	}
	if h, ok := reg.Resolve("syd"); !ok || h.Name != "Sydney" {
		t.Errorf("Resolve substring = %+v, %v", h, ok)
	}
	if h, ok := reg.Resolve("the Hermes handler"); ok && h.Name != "Hermes" {
		t.Errorf("Resolve superset = %+v", h)
	}
	if _, ok := reg.Resolve("zzz"); ok {
		t.Error("Resolve(zzz) should miss")
	}
	if _, ok := reg.Resolve(""); ok {
		t.Error("Resolve empty should miss")
	}

	if reg.Default().Name != "GPT4o" {
		t.Errorf("Default = %s", reg.Default().Name)
	}
	if got := reg.All(); len(got) != 3 || got[0].Name != "GPT4o" {
		t.Errorf("All = %+v", got)
	}
}

func TestRegistryByTrigger(t *testing.T) {
	reg, err := NewRegistry(testSpecs(), "GPT4o")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	tests := []struct {
		content string
		want    string
		ok      bool
	}{
		{"hey sydney, how are you?", "Sydney", true},
		{"ask Hermes about it", "Hermes", true},
		{"SYD!", "Sydney", true},
		{"no trigger here", "", false},
		// Whole-word matching: embedded trigger text does not fire.
		{"hermeses are not a word", "", false},
	}
	for _, tt := range tests {
		h, ok := reg.ByTrigger(tt.content)
		if ok != tt.ok {
			t.Errorf("ByTrigger(%q) ok = %v, want %v", tt.content, ok, tt.ok)
			continue
		}
		if ok && h.Name != tt.want {
			t.Errorf("ByTrigger(%q) = %s, want %s", tt.content, h.Name, tt.want)
		}
	}
}

func TestRenderPrompt(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	got := RenderPrompt(
		"You are {MODEL_ID} talking to {USERNAME} ({DISCORD_USER_ID}) in {SERVER_NAME}/{CHANNEL_NAME} at {TIME} {TZ}.",
		PromptVars{
			ModelID:     "gpt-4o",
			Username:    "Alice",
			UserID:      "123",
			ServerName:  "My Server",
			ChannelName: "general",
			Now:         now,
			Timezone:    "UTC",
		})
	want := "You are gpt-4o talking to Alice (123) in My Server/general at 2025-03-14 09:26:53 UTC."
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}

	// An empty server name reads as a DM.
	got = RenderPrompt("in {SERVER_NAME}", PromptVars{})
	if got != "in Direct Message" {
		t.Errorf("DM render = %q", got)
	}

	// Unknown placeholders pass through.
	if got := RenderPrompt("keep {UNKNOWN}", PromptVars{}); !strings.Contains(got, "{UNKNOWN}") {
		t.Errorf("unknown placeholder rewritten: %q", got)
	}
}

func TestAnalyzeEmotion(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"I'm so happy this worked, awesome!", "joy"},
		{"Unfortunately I lost the file, sorry.", "sadness"},
		{"This is so frustrating, I hate it.", "anger"},
		{"Wow, that is amazing!", "surprise"},
		{"I'm worried and a bit scared.", "fear"},
		{"Thanks, I really appreciate it.", "thanks"},
		{"The meeting is at noon.", "neutral"},
	}
	for _, tt := range tests {
		if got := AnalyzeEmotion(tt.text); got != tt.want {
			t.Errorf("AnalyzeEmotion(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
