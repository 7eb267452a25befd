package models

// SemanticResult is a single semantic search hit.
type SemanticResult struct {
	FileID int64 `json:"file_id"`
	// SimilarityScore is in (0, 1], higher is better (converted from L2 distance).
	SimilarityScore float64 `json:"similarity_score"`
	// MatchedVia records which query variant produced the best distance:
	// "original_query" or "expanded_query_N".
	MatchedVia string `json:"matched_via"`
}

// SemanticResponse is the response for a semantic search request.
type SemanticResponse struct {
	Results   []*SemanticResult `json:"results"`
	Total     int               `json:"total"`
	Query     string            `json:"query"`
	QueryTime int64             `json:"query_time_ms"`
	// Variants is the number of query variants that were searched (including the original).
	Variants int `json:"variants"`
}

// KeywordResult is a single filename keyword search hit.
type KeywordResult struct {
	FileID   int64   `json:"file_id"`
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
}
