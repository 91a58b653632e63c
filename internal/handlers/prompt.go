package handlers

import (
	"strings"
	"time"
)

// PromptVars fills the placeholders a handler prompt may use.
type PromptVars struct {
	ModelID     string
	Username    string
	UserID      string
	ServerName  string
	ChannelName string
	Now         time.Time
	Timezone    string
}

// RenderPrompt substitutes the known {PLACEHOLDER} tokens. Unknown tokens
// pass through untouched.
func RenderPrompt(tmpl string, v PromptVars) string {
	now := v.Now
	if now.IsZero() {
		now = time.Now()
	}
	tz := v.Timezone
	if tz == "" {
		tz = now.Format("MST")
	}
	server := v.ServerName
	if server == "" {
		server = "Direct Message"
	}
	return strings.NewReplacer(
		"{MODEL_ID}", v.ModelID,
		"{USERNAME}", v.Username,
		"{DISCORD_USER_ID}", v.UserID,
		"{TIME}", now.Format("2006-01-02 15:04:05"),
		"{TZ}", tz,
		"{SERVER_NAME}", server,
		"{CHANNEL_NAME}", v.ChannelName,
	).Replace(tmpl)
}
