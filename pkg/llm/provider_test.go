package llm

import "testing"

func TestTruncateTokensNoLimit(t *testing.T) {
	// Zero and negative limits mean "do not bound"; the text must come
	// back untouched without the tokenizer ever loading.
	const text = "transcript body"
	if got := TruncateTokens(text, 0); got != text {
		t.Fatalf("TruncateTokens(.., 0) = %q", got)
	}
	if got := TruncateTokens(text, -1); got != text {
		t.Fatalf("TruncateTokens(.., -1) = %q", got)
	}
}
