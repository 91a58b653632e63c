package handlers

import "strings"

// emotionLexicon maps an emotion label to the words that signal it. The
// label doubles as the key for the platform reaction table.
var emotionLexicon = map[string][]string{
	"joy":      {"happy", "glad", "great", "awesome", "excellent", "wonderful", "love", "yay", "excited", "fantastic"},
	"sadness":  {"sad", "sorry", "unfortunately", "miss", "lost", "cry", "regret", "lonely"},
	"anger":    {"angry", "mad", "furious", "annoyed", "hate", "frustrating", "frustrated"},
	"surprise": {"wow", "whoa", "unexpected", "surprising", "amazing", "unbelievable", "incredible"},
	"fear":     {"afraid", "scared", "worried", "anxious", "nervous", "terrified"},
	"thanks":   {"thanks", "thank", "appreciate", "grateful"},
}

// AnalyzeEmotion picks the dominant emotion signalled by the text, or
// "neutral" when nothing matches.
func AnalyzeEmotion(text string) string {
	words := make(map[string]int)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		words[strings.Trim(w, ".,!?;:'\"()[]{}")]++
	}

	best, bestScore := "neutral", 0
	for emotion, lexicon := range emotionLexicon {
		score := 0
		for _, w := range lexicon {
			score += words[w]
		}
		if score > bestScore || (score == bestScore && score > 0 && emotion < best) {
			best, bestScore = emotion, score
		}
	}
	return best
}
