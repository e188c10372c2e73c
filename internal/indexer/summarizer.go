package indexer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/hyperjump/kotae/pkg/utils"
)

var sentencePattern = regexp.MustCompile(`(?s)[^.!?]+[.!?]+`)

var stopwords = func() map[string]struct{} {
	words := []string{
		"an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at",
		"by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that",
		"these", "those", "from", "up", "down", "over", "under", "so", "such", "into", "about",
		"than", "too", "very", "can", "will", "just", "should", "now", "you", "your", "we", "our",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// summarize returns up to maxSentences sentences of text, chosen by the
// frequency of their non-stopword terms and kept in document order.
func summarize(text string, maxSentences int) string {
	sentences := sentencePattern.FindAllString(text, -1)
	if len(sentences) == 0 {
		return strings.Join(strings.Fields(text), " ")
	}
	if maxSentences <= 0 {
		maxSentences = 2
	}

	freq := map[string]float64{}
	tokenized := make([][]string, len(sentences))
	for i, s := range sentences {
		tokenized[i] = utils.Tokenize(s)
		for _, tok := range tokenized[i] {
			if _, stop := stopwords[tok]; !stop {
				freq[tok]++
			}
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, toks := range tokenized {
		s := 0.0
		for _, tok := range toks {
			if maxF > 0 {
				s += freq[tok] / maxF
			}
		}
		if len(toks) > 0 {
			s /= math.Sqrt(float64(len(toks)))
		}
		scores[i] = scored{i, s}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}
	picked := make([]int, maxSentences)
	for i := range picked {
		picked[i] = scores[i].idx
	}
	sort.Ints(picked)

	parts := make([]string, len(picked))
	for i, idx := range picked {
		parts[i] = strings.Join(strings.Fields(sentences[idx]), " ")
	}
	return strings.Join(parts, " ")
}
