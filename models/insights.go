package models

// CategoryStat is one row of a grouped ratio: Total / Count per inspection result.
// HasAverage is false when Count is zero and the ratio is undefined.
type CategoryStat struct {
	Result     string
	Count      int
	Total      float64
	Average    float64
	HasAverage bool
}

// SentimentStat holds mean polarity components over all reviews in a result category.
type SentimentStat struct {
	Result     string
	Reviews    int
	Positive   float64
	Negative   float64
	Neutral    float64
	Compound   float64
	HasAverage bool
}

// ScoredReview is a single review ranked by one polarity component.
type ScoredReview struct {
	Entity   string
	Text     string
	Score    float64
	Compound float64
}

// TermScore is a stemmed term and its TF-IDF weight within a category.
type TermScore struct {
	Term  string
	Score float64
}

// InsightReport holds every aggregation computed over a merged dataset.
type InsightReport struct {
	TotalEntities    int
	ReviewedEntities int

	Photos        []CategoryStat
	Websites      []CategoryStat
	Phones        []CategoryStat
	Ratings       []CategoryStat
	ReviewLengths []CategoryStat
	Sentiment     []SentimentStat

	MostPositive []ScoredReview
	MostNegative []ScoredReview

	Keywords map[string][]TermScore
}
