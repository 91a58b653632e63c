package router

import "strings"

// Sentiment scores a message. Polarity runs -1..1, subjectivity 0..1.
type Sentiment struct {
	Polarity     float64
	Subjectivity float64
}

type wordScore struct {
	polarity     float64
	subjectivity float64
}

// Small lexicon tuned for routing, not linguistics: it only needs to catch
// clearly distressed messages reliably.
var sentimentLexicon = map[string]wordScore{
	"good":       {0.7, 0.6},
	"great":      {0.8, 0.75},
	"awesome":    {1.0, 1.0},
	"love":       {0.5, 0.6},
	"happy":      {0.8, 1.0},
	"thanks":     {0.4, 0.4},
	"excellent":  {1.0, 1.0},
	"fun":        {0.6, 0.7},
	"nice":       {0.6, 0.9},
	"cool":       {0.35, 0.65},
	"bad":        {-0.7, 0.65},
	"terrible":   {-1.0, 1.0},
	"awful":      {-1.0, 1.0},
	"hate":       {-0.8, 0.9},
	"sad":        {-0.8, 1.0},
	"depressed":  {-0.9, 1.0},
	"miserable":  {-1.0, 1.0},
	"hopeless":   {-0.9, 1.0},
	"lonely":     {-0.7, 1.0},
	"worthless":  {-0.9, 1.0},
	"angry":      {-0.7, 0.9},
	"hurt":       {-0.6, 0.9},
	"scared":     {-0.7, 1.0},
	"anxious":    {-0.6, 1.0},
	"crying":     {-0.7, 1.0},
	"alone":      {-0.5, 0.8},
	"stressed":   {-0.6, 0.9},
	"tired":      {-0.4, 0.7},
	"struggling": {-0.6, 0.9},
	"wrong":      {-0.5, 0.5},
	"broken":     {-0.4, 0.5},
	"help":       {-0.2, 0.3},
	"think":      {0, 0.6},
	"feel":       {0, 0.9},
	"believe":    {0, 0.7},
	"maybe":      {0, 0.5},
	"really":     {0, 0.4},
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "don't": true, "dont": true,
	"can't": true, "cant": true, "won't": true, "wont": true, "isn't": true, "isnt": true,
}

// AnalyzeSentiment scores the text against the lexicon, averaging over
// matched words. A preceding negation flips a word's polarity.
func AnalyzeSentiment(text string) Sentiment {
	words := strings.Fields(strings.ToLower(text))
	var polSum, subSum float64
	var matched int
	negated := false
	for _, raw := range words {
		w := strings.Trim(raw, ".,!?;:'\"()[]{}")
		if negations[w] {
			negated = true
			continue
		}
		score, ok := sentimentLexicon[w]
		if !ok {
			negated = false
			continue
		}
		pol := score.polarity
		if negated {
			pol = -pol * 0.5
			negated = false
		}
		polSum += pol
		subSum += score.subjectivity
		matched++
	}
	if matched == 0 {
		return Sentiment{}
	}
	return Sentiment{Polarity: polSum / float64(matched), Subjectivity: subSum / float64(matched)}
}
