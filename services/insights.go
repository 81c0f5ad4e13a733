package services

import (
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/asaskevich/govalidator"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"inspection-reviews/models"
	"inspection-reviews/storage"
	"inspection-reviews/utils"
)

// Output file names written by WriteOutputs.
const (
	PhotosFile        = "compare_n_photos.csv"
	WebsitesFile      = "compare_valid_website_rates.csv"
	PhonesFile        = "compare_phone_rates.csv"
	RatingsFile       = "compare_avg_rating.csv"
	ReviewLengthsFile = "compare_avg_review_length.csv"
	SentimentFile     = "compare_avg_sentiment.csv"
	ExtremesFile      = "max_sentiment_reviews.csv"
	KeywordsFile      = "tf_idf.csv"
)

// InsightOptions bounds the ranked outputs.
type InsightOptions struct {
	TopReviews      int
	MinReviewTokens int
	TopKeywords     int
}

// InsightService computes per-result statistics over an enriched dataset.
type InsightService struct {
	logger *utils.Logger
	opts   InsightOptions
	scorer *SentimentScorer
}

func NewInsightService(logger *utils.Logger, opts InsightOptions) *InsightService {
	if opts.TopReviews < 1 {
		opts.TopReviews = 10
	}
	if opts.TopKeywords < 1 {
		opts.TopKeywords = 20
	}
	return &InsightService{logger: logger, opts: opts, scorer: NewSentimentScorer()}
}

// groups collects per-record (or per-review) values by result label.
type groups map[string][]float64

func (g groups) add(result string, v float64) {
	g[result] = append(g[result], v)
}

// touch registers a label with no values so it still gets a row.
func (g groups) touch(result string) {
	if _, ok := g[result]; !ok {
		g[result] = nil
	}
}

// stats turns grouped values into rows sorted by label. Every closed result
// label gets a row even when nothing was observed for it.
func (g groups) stats() []models.CategoryStat {
	labels := resultLabels(g)
	out := make([]models.CategoryStat, 0, len(labels))
	for _, label := range labels {
		vals := g[label]
		st := models.CategoryStat{Result: label, Count: len(vals)}
		if len(vals) > 0 {
			st.Total = floats.Sum(vals)
			st.Average = stat.Mean(vals, nil)
			st.HasAverage = true
		}
		out = append(out, st)
	}
	return out
}

func resultLabels[V any](seen map[string]V) []string {
	set := make(map[string]struct{}, len(models.Results)+len(seen))
	for _, r := range models.Results {
		set[r] = struct{}{}
	}
	for r := range seen {
		set[r] = struct{}{}
	}
	labels := make([]string, 0, len(set))
	for r := range set {
		labels = append(labels, r)
	}
	sort.Strings(labels)
	return labels
}

type scoredText struct {
	entity string
	text   string
	pol    Polarity
}

// Generate computes every aggregation. Photo, website, phone, rating,
// extreme-review and keyword figures only consider enriched records; review
// length and sentiment cover every review in the dataset.
func (s *InsightService) Generate(data models.Dataset) *models.InsightReport {
	report := &models.InsightReport{TotalEntities: len(data)}

	photos, websites, phones, ratings := groups{}, groups{}, groups{}, groups{}
	lengths := groups{}
	pos, neg, neu, cmp := groups{}, groups{}, groups{}, groups{}
	corpus := make(map[string][]string)
	var candidates []scoredText
	seenText := make(map[string]struct{})

	for _, key := range data.Keys() {
		rec := data[key]
		result := rec.Result

		for _, review := range reviewsOf(rec) {
			pol := s.scorer.Score(review.Text)
			lengths.add(result, float64(len(Tokenize(review.Text))))
			pos.add(result, pol.Positive)
			neg.add(result, pol.Negative)
			neu.add(result, pol.Neutral)
			cmp.add(result, pol.Compound)
		}

		if !rec.Enriched() {
			continue
		}
		report.ReviewedEntities++

		photos.add(result, float64(rec.PhotoCount))
		websites.add(result, boolValue(rec.Website != nil && validWebsite(*rec.Website)))
		phones.add(result, boolValue(rec.Phone != nil && strings.TrimSpace(*rec.Phone) != ""))
		// A zero rating means the place has not been rated yet.
		if rec.Rating != nil && *rec.Rating > 0 {
			ratings.add(result, *rec.Rating)
		} else {
			ratings.touch(result)
		}

		for _, review := range rec.Reviews {
			corpus[result] = append(corpus[result], review.Text)
			if _, dup := seenText[review.Text]; dup {
				continue
			}
			if len(Tokenize(review.Text)) < s.opts.MinReviewTokens {
				continue
			}
			seenText[review.Text] = struct{}{}
			candidates = append(candidates, scoredText{entity: key, text: review.Text, pol: s.scorer.Score(review.Text)})
		}
	}

	report.Photos = photos.stats()
	report.Websites = websites.stats()
	report.Phones = phones.stats()
	report.Ratings = ratings.stats()
	report.ReviewLengths = lengths.stats()
	report.Sentiment = sentimentStats(pos, neg, neu, cmp)
	report.MostNegative = topBy(candidates, s.opts.TopReviews, func(p Polarity) float64 { return p.Negative })
	report.MostPositive = topBy(candidates, s.opts.TopReviews, func(p Polarity) float64 { return p.Positive })
	report.Keywords = Keywords(corpus, s.opts.TopKeywords)

	s.logger.Info("[insights] Analysed %d entities (%d with place data, %d review candidates)",
		report.TotalEntities, report.ReviewedEntities, len(candidates))
	return report
}

func reviewsOf(rec *models.Record) []models.Review {
	if rec.Enrichment == nil {
		return nil
	}
	return rec.Reviews
}

// validWebsite accepts absolute http(s) URLs with a host.
func validWebsite(raw string) bool {
	if !govalidator.IsURL(raw) {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func sentimentStats(pos, neg, neu, cmp groups) []models.SentimentStat {
	labels := resultLabels(pos)
	out := make([]models.SentimentStat, 0, len(labels))
	for _, label := range labels {
		st := models.SentimentStat{Result: label, Reviews: len(pos[label])}
		if st.Reviews > 0 {
			st.Positive = stat.Mean(pos[label], nil)
			st.Negative = stat.Mean(neg[label], nil)
			st.Neutral = stat.Mean(neu[label], nil)
			st.Compound = stat.Mean(cmp[label], nil)
			st.HasAverage = true
		}
		out = append(out, st)
	}
	return out
}

// topBy ranks candidates by one polarity component, highest first. Ties keep
// the dataset key order.
func topBy(candidates []scoredText, n int, score func(Polarity) float64) []models.ScoredReview {
	ranked := make([]scoredText, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return score(ranked[i].pol) > score(ranked[j].pol)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]models.ScoredReview, 0, len(ranked))
	for _, c := range ranked {
		out = append(out, models.ScoredReview{
			Entity:   c.entity,
			Text:     c.text,
			Score:    score(c.pol),
			Compound: c.pol.Compound,
		})
	}
	return out
}

// WriteOutputs writes one CSV per aggregation into dir.
func (s *InsightService) WriteOutputs(dir string, r *models.InsightReport) error {
	tables := []struct {
		file   string
		header []string
		rows   [][]string
	}{
		{PhotosFile, []string{"Result", "Num_result", "Total Photos", "Avg_num_photos"}, categoryRows(r.Photos)},
		{WebsitesFile, []string{"Result", "Num_result", "Num_valid_websites", "Valid_website_rates"}, categoryRows(r.Websites)},
		{PhonesFile, []string{"Result", "Num_result", "Num_phone_listed", "Phone_listed_rate"}, categoryRows(r.Phones)},
		{RatingsFile, []string{"Result", "n_reviews", "total_stars", "avg_rating"}, categoryRows(r.Ratings)},
		{ReviewLengthsFile, []string{"Result", "n_reviews", "n_tokens", "avg_review_length"}, categoryRows(r.ReviewLengths)},
		{SentimentFile, []string{"Result", "n_reviews", "avg_pos_sentiment", "avg_neg_sentiment", "avg_neu_sentiment", "avg_compound_sentiment"}, sentimentRows(r.Sentiment)},
		{ExtremesFile, []string{"Polarity", "Rank", "Entity", "Score", "Compound", "Review"}, extremeRows(r)},
		{KeywordsFile, []string{"Result", "Rank", "Term", "Score"}, keywordRows(r.Keywords)},
	}

	for _, t := range tables {
		path := filepath.Join(dir, t.file)
		if err := storage.WriteTable(path, t.header, t.rows); err != nil {
			return fmt.Errorf("insights: write %s: %w", t.file, err)
		}
		s.logger.Debug("[insights] Wrote %d rows to %s", len(t.rows), path)
	}
	s.logger.Info("[insights] Wrote %d tables to %s", len(tables), dir)
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatRatio leaves the cell empty when the ratio is undefined.
func formatRatio(f float64, ok bool) string {
	if !ok {
		return ""
	}
	return strconv.FormatFloat(f, 'f', 4, 64)
}

func categoryRows(stats []models.CategoryStat) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, st := range stats {
		rows = append(rows, []string{
			st.Result,
			strconv.Itoa(st.Count),
			formatFloat(st.Total),
			formatRatio(st.Average, st.HasAverage),
		})
	}
	return rows
}

func sentimentRows(stats []models.SentimentStat) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, st := range stats {
		rows = append(rows, []string{
			st.Result,
			strconv.Itoa(st.Reviews),
			formatRatio(st.Positive, st.HasAverage),
			formatRatio(st.Negative, st.HasAverage),
			formatRatio(st.Neutral, st.HasAverage),
			formatRatio(st.Compound, st.HasAverage),
		})
	}
	return rows
}

func extremeRows(r *models.InsightReport) [][]string {
	var rows [][]string
	emit := func(label string, reviews []models.ScoredReview) {
		for i, sr := range reviews {
			rows = append(rows, []string{
				label,
				strconv.Itoa(i + 1),
				sr.Entity,
				formatRatio(sr.Score, true),
				formatRatio(sr.Compound, true),
				sr.Text,
			})
		}
	}
	emit("negative", r.MostNegative)
	emit("positive", r.MostPositive)
	return rows
}

func keywordRows(kw map[string][]models.TermScore) [][]string {
	labels := make([]string, 0, len(kw))
	for label := range kw {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var rows [][]string
	for _, label := range labels {
		for i, ts := range kw[label] {
			rows = append(rows, []string{label, strconv.Itoa(i + 1), ts.Term, formatRatio(ts.Score, true)})
		}
	}
	return rows
}

// Print writes a human-readable summary of the report to w.
func (s *InsightService) Print(w io.Writer, r *models.InsightReport) {
	sep := strings.Repeat("═", 64)
	thin := strings.Repeat("─", 64)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 INSPECTION REVIEW INSIGHTS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Establishments          : \033[1m%d\033[0m\n", r.TotalEntities)
	fmt.Fprintf(w, "  With place data         : \033[1m%d\033[0m\n", r.ReviewedEntities)
	fmt.Fprintln(w)

	printCategories(w, thin, "Average photo count", r.Photos)
	printCategories(w, thin, "Valid website rate", r.Websites)
	printCategories(w, thin, "Phone listed rate", r.Phones)
	printCategories(w, thin, "Average rating", r.Ratings)
	printCategories(w, thin, "Average review length (tokens)", r.ReviewLengths)

	fmt.Fprintf(w, "\033[1;33m  Average compound sentiment\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for _, st := range r.Sentiment {
		fmt.Fprintf(w, "  %-24s %6d  %s\n", truncate(st.Result, 24), st.Reviews, ratioOrDash(st.Compound, st.HasAverage))
	}
	fmt.Fprintln(w)

	printExtremes(w, thin, "Most negative reviews", r.MostNegative)
	printExtremes(w, thin, "Most positive reviews", r.MostPositive)

	fmt.Fprintf(w, "\033[1;33m  Top keywords\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.Keywords) == 0 {
		fmt.Fprintf(w, "  No review text available\n")
	}
	for _, label := range resultLabels(r.Keywords) {
		terms := r.Keywords[label]
		if len(terms) == 0 {
			continue
		}
		names := make([]string, 0, 5)
		for i, ts := range terms {
			if i == 5 {
				break
			}
			names = append(names, ts.Term)
		}
		fmt.Fprintf(w, "  %-24s %s\n", truncate(label, 24), strings.Join(names, ", "))
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func printCategories(w io.Writer, thin, title string, stats []models.CategoryStat) {
	fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", title)
	fmt.Fprintf(w, "  %s\n", thin)
	for _, st := range stats {
		fmt.Fprintf(w, "  %-24s %6d  %s\n", truncate(st.Result, 24), st.Count, ratioOrDash(st.Average, st.HasAverage))
	}
	fmt.Fprintln(w)
}

func printExtremes(w io.Writer, thin, title string, reviews []models.ScoredReview) {
	fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", title)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(reviews) == 0 {
		fmt.Fprintf(w, "  No reviews long enough to rank\n")
	}
	for i, sr := range reviews {
		fmt.Fprintf(w, "  \033[1m%d.\033[0m %-40s \033[1;32m%.3f\033[0m\n", i+1, truncate(sr.Entity, 38), sr.Score)
		fmt.Fprintf(w, "     %s\n", truncate(sr.Text, 70))
	}
	fmt.Fprintln(w)
}

func ratioOrDash(f float64, ok bool) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.3f", f)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
