package models

import "fmt"

// SemanticQuery is a semantic search request with query expansion support.
type SemanticQuery struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
	// UseQueryExpansion enables colinear query expansion. Defaults to true when unset.
	UseQueryExpansion *bool `json:"use_query_expansion,omitempty"`
	// ExpansionCount is the number of expanded query variants to generate (on top of the original).
	ExpansionCount int `json:"expansion_count,omitempty"`
}

// ExpansionEnabled returns whether query expansion should run; defaults to true when unset.
func (q *SemanticQuery) ExpansionEnabled() bool {
	if q.UseQueryExpansion != nil {
		return *q.UseQueryExpansion
	}
	return true
}

// Validate checks the request shape. TopK and ExpansionCount zero mean "use
// the configured default"; both are normalized to zero when negative and the
// search layer applies its configured defaults and limits.
// Returns an error if the query text is empty.
func (q *SemanticQuery) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK < 0 {
		q.TopK = 0
	}
	if q.ExpansionCount < 0 {
		q.ExpansionCount = 0
	}
	return nil
}
