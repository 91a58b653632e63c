package discord

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

const maxMessageLen = 2000

// emotionReactions maps emotion labels to reaction emoji added to the
// first reply message.
var emotionReactions = map[string]string{
	"joy":      "😄",
	"sadness":  "😢",
	"anger":    "😠",
	"surprise": "😲",
	"fear":     "😨",
	"thanks":   "🙏",
}

// replySink delivers one handler reply to one Discord channel. While the
// reply streams it edits a single message in place; Finalize splits the
// full text across as many messages as needed and adds the emotion
// reaction.
type replySink struct {
	session   *discordgo.Session
	channelID string
	firstID   string
}

func newReplySink(session *discordgo.Session, channelID string) *replySink {
	return &replySink{session: session, channelID: channelID}
}

func (s *replySink) Update(_ context.Context, content string) (string, error) {
	display := content
	if utf8.RuneCountInString(display) > maxMessageLen {
		chunks := splitMessage(display, maxMessageLen)
		display = chunks[0]
	}
	if s.firstID == "" {
		msg, err := s.session.ChannelMessageSend(s.channelID, display)
		if err != nil {
			return "", fmt.Errorf("send reply: %w", err)
		}
		s.firstID = msg.ID
		return s.firstID, nil
	}
	if _, err := s.session.ChannelMessageEdit(s.channelID, s.firstID, display); err != nil {
		return s.firstID, fmt.Errorf("edit reply: %w", err)
	}
	return s.firstID, nil
}

func (s *replySink) Finalize(_ context.Context, content, emotion string) (string, error) {
	chunks := splitMessage(content, maxMessageLen)

	start := 0
	if s.firstID != "" {
		if _, err := s.session.ChannelMessageEdit(s.channelID, s.firstID, chunks[0]); err != nil {
			return s.firstID, fmt.Errorf("edit reply: %w", err)
		}
		start = 1
	}
	for i := start; i < len(chunks); i++ {
		msg, err := s.session.ChannelMessageSend(s.channelID, chunks[i])
		if err != nil {
			return s.firstID, fmt.Errorf("send reply chunk: %w", err)
		}
		if s.firstID == "" {
			s.firstID = msg.ID
		}
	}

	if emoji, ok := emotionReactions[emotion]; ok && s.firstID != "" {
		if err := s.session.MessageReactionAdd(s.channelID, s.firstID, emoji); err != nil {
			// Reactions are decoration; a failure never fails the reply.
			return s.firstID, nil
		}
	}
	return s.firstID, nil
}

// splitMessage breaks content into chunks of at most maxLen runes,
// preferring the last space before the limit. Discord's message limit
// counts characters, not bytes, so cutting on runes never produces
// invalid UTF-8.
func splitMessage(content string, maxLen int) []string {
	var chunks []string
	runes := []rune(content)
	for len(runes) > maxLen {
		cutAt := maxLen
		if idx := lastSpace(runes[:maxLen]); idx > maxLen/2 {
			cutAt = idx
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[:cutAt])))
		runes = []rune(strings.TrimSpace(string(runes[cutAt:])))
	}
	if len(runes) > 0 || len(chunks) == 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}
