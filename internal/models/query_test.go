package models

import "testing"

func TestSemanticQuery_Validate(t *testing.T) {
	q := &SemanticQuery{}
	if err := q.Validate(); err == nil {
		t.Error("empty query should fail validation")
	}

	q = &SemanticQuery{Query: "report"}
	if err := q.Validate(); err != nil {
		t.Fatal(err)
	}
	if q.TopK != 0 {
		t.Errorf("TopK = %d, want 0 (configured default applies downstream)", q.TopK)
	}
	if q.ExpansionCount != 0 {
		t.Errorf("ExpansionCount = %d, want 0 (configured default applies downstream)", q.ExpansionCount)
	}
	if !q.ExpansionEnabled() {
		t.Error("expansion should default to enabled")
	}

	q = &SemanticQuery{Query: "report", TopK: -5, ExpansionCount: -1}
	if err := q.Validate(); err != nil {
		t.Fatal(err)
	}
	if q.TopK != 0 || q.ExpansionCount != 0 {
		t.Errorf("negative fields should normalize to 0, got TopK=%d ExpansionCount=%d", q.TopK, q.ExpansionCount)
	}

	off := false
	q = &SemanticQuery{Query: "report", UseQueryExpansion: &off}
	if q.ExpansionEnabled() {
		t.Error("expansion should be disabled when set to false")
	}
}
