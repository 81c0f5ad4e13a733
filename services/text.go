package services

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/jonreiter/govader"
	"github.com/kljensen/snowball/english"
)

// tokenRegexp matches word runs (with an optional apostrophe suffix such as
// "n't" or "'s") or a single non-space symbol.
var tokenRegexp = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)?|[^\s\p{L}\p{N}]`)

// clitics are the apostrophe suffixes split into their own token.
var clitics = map[string]bool{"'s": true, "'m": true, "'d": true, "'ll": true, "'re": true, "'ve": true}

// Tokenize splits text into word and punctuation tokens. Contractions are
// split the Treebank way: "don't" gives "do", "n't" and "it's" gives "it", "'s".
func Tokenize(text string) []string {
	matches := tokenRegexp.FindAllString(text, -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, splitContraction(m)...)
	}
	return tokens
}

func splitContraction(word string) []string {
	norm := strings.ReplaceAll(word, "’", "'")
	i := strings.IndexByte(norm, '\'')
	if i <= 0 {
		return []string{word}
	}
	if cut := len(norm) - 3; cut > 0 && strings.EqualFold(norm[cut:], "n't") {
		return []string{norm[:cut], norm[cut:]}
	}
	if clitics[strings.ToLower(norm[i:])] {
		return []string{norm[:i], norm[i:]}
	}
	return []string{word}
}

// isPunct reports whether a token carries no letters or digits.
func isPunct(token string) bool {
	for _, r := range token {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return false
		}
	}
	return true
}

// Terms returns lowercased, stemmed word tokens with punctuation removed.
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if isPunct(tok) {
			continue
		}
		stem := english.Stem(strings.ToLower(tok), false)
		if stem == "" {
			continue
		}
		terms = append(terms, stem)
	}
	return terms
}

// Polarity is a lexicon-based sentiment score for one piece of text.
type Polarity struct {
	Positive float64
	Negative float64
	Neutral  float64
	Compound float64
}

// SentimentScorer wraps the VADER analyzer. The analyzer is read-only after
// construction.
type SentimentScorer struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

func NewSentimentScorer() *SentimentScorer {
	return &SentimentScorer{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

func (s *SentimentScorer) Score(text string) Polarity {
	p := s.analyzer.PolarityScores(text)
	return Polarity{
		Positive: p.Positive,
		Negative: p.Negative,
		Neutral:  p.Neutral,
		Compound: p.Compound,
	}
}
