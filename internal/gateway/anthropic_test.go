package gateway

import "testing"

func TestAnthropicBodyFoldsToolTurns(t *testing.T) {
	p := newAnthropicProvider("key", "", nil, RetryConfig{})
	body := p.buildRequestBody(Request{
		Model: "claude-3-5-sonnet",
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "look this up"},
			{Role: RoleTool, Content: `{"result": 42}`},
			{Role: RoleAssistant, Content: "it is 42"},
		},
	}, false)

	if body["system"] != "be brief" {
		t.Errorf("system = %v", body["system"])
	}
	msgs := body["messages"].([]map[string]interface{})
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	wantRoles := []string{RoleUser, RoleUser, RoleAssistant}
	for i, want := range wantRoles {
		if got := msgs[i]["role"]; got != want {
			t.Errorf("message %d role = %v, want %q", i, got, want)
		}
	}
}
