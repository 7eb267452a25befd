package embedding

import "testing"

func TestSimpleTokenizerShape(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, mask, types := tok.Tokenize("hello world", 16)

	if len(ids) != 16 || len(mask) != 16 || len(types) != 16 {
		t.Fatalf("expected length 16 slices, got %d/%d/%d", len(ids), len(mask), len(types))
	}
	if ids[0] != 101 {
		t.Errorf("expected [CLS] at position 0, got %d", ids[0])
	}
	// hello, world, then [SEP].
	if ids[3] != 102 {
		t.Errorf("expected [SEP] at position 3, got %d", ids[3])
	}
	for i := 0; i < 4; i++ {
		if mask[i] != 1 {
			t.Errorf("expected attention at position %d", i)
		}
	}
	if mask[4] != 0 {
		t.Error("expected padding after [SEP]")
	}
}

func TestSimpleTokenizerTruncates(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, _, _ := tok.Tokenize("a b c d e f g h", 4)

	if len(ids) != 4 {
		t.Fatalf("expected length 4, got %d", len(ids))
	}
	if ids[0] != 101 {
		t.Errorf("expected [CLS] first, got %d", ids[0])
	}
	if ids[3] != 102 {
		t.Errorf("expected [SEP] last, got %d", ids[3])
	}
}

func TestHashStringStable(t *testing.T) {
	if HashString("report") != HashString("report") {
		t.Error("hash is not deterministic")
	}
	if HashString("report") < 0 {
		t.Error("hash must be non-negative")
	}
	if HashString("report") == HashString("budget") {
		t.Error("expected different hashes for different words")
	}
}
