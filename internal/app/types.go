package app

type Suggestion struct {
	Label string
	Score float32
}

type ResultRow struct {
	Text        string
	Suggestions []Suggestion
	NeedReview  bool
	Scores      map[string]float32
}
