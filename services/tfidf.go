package services

import (
	"math"
	"sort"

	"inspection-reviews/models"
)

// Keywords ranks terms per result category by TF-IDF. Each category's
// reviews are pooled into one document; tf is the term's share of that
// document's tokens and idf is log(N / (1 + df)) where N is the number of
// result labels. Categories without any tokens are skipped. Labels outside
// models.Results are ignored.
func Keywords(reviews map[string][]string, n int) map[string][]models.TermScore {
	counts := make(map[string]map[string]int)
	totals := make(map[string]int)
	df := make(map[string]int)

	for _, result := range models.Results {
		texts := reviews[result]
		tf := make(map[string]int)
		total := 0
		for _, text := range texts {
			for _, term := range Terms(text) {
				tf[term]++
				total++
			}
		}
		if total == 0 {
			continue
		}
		counts[result] = tf
		totals[result] = total
		for term := range tf {
			df[term]++
		}
	}

	docs := float64(len(models.Results))
	out := make(map[string][]models.TermScore, len(counts))
	for result, tf := range counts {
		total := float64(totals[result])
		scores := make([]models.TermScore, 0, len(tf))
		for term, c := range tf {
			idf := math.Log(docs / float64(1+df[term]))
			scores = append(scores, models.TermScore{Term: term, Score: float64(c) / total * idf})
		}
		sort.Slice(scores, func(i, j int) bool {
			if scores[i].Score != scores[j].Score {
				return scores[i].Score > scores[j].Score
			}
			return scores[i].Term < scores[j].Term
		})
		if n > 0 && len(scores) > n {
			scores = scores[:n]
		}
		out[result] = scores
	}
	return out
}
