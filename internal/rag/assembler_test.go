package rag

import (
	"strings"
	"testing"

	"github.com/orbitpay/orbit/internal/knowledge"
)

func hit(id, content, uri string, sim float64) knowledge.Hit {
	return knowledge.Hit{
		Chunk:      knowledge.Chunk{ID: id, Content: content},
		SourceURI:  uri,
		Title:      "Doc " + id,
		Similarity: sim,
	}
}

func TestAssembleOrdersByScore(t *testing.T) {
	a := NewAssembler(3000, 0.5)
	ctx := a.Assemble([]knowledge.Hit{
		hit("low", "Chargebacks may take up to ninety days.", "https://kb/chargebacks", 0.60),
		hit("high", "Refunds are returned within five business days.", "https://kb/refunds", 0.92),
	}, nil)

	if len(ctx.Citations) != 2 {
		t.Fatalf("got %d citations, want 2", len(ctx.Citations))
	}
	if ctx.Citations[0].SourceURI != "https://kb/refunds" {
		t.Errorf("first citation = %s, want the higher-scored hit", ctx.Citations[0].SourceURI)
	}
	if !strings.Contains(ctx.Text, "[1] Doc high (https://kb/refunds)") {
		t.Errorf("text missing first reference header:\n%s", ctx.Text)
	}
}

func TestAssembleWeightsWebBelowLocal(t *testing.T) {
	a := NewAssembler(3000, 0.5)
	ctx := a.Assemble(
		[]knowledge.Hit{hit("kb", "Refunds take five days.", "https://kb/refunds", 0.58)},
		[]WebResult{{Title: "Forum", URL: "https://web/forum", Snippet: "Refunds can be slow sometimes."}},
	)

	if len(ctx.Citations) != 2 {
		t.Fatalf("got %d citations, want 2", len(ctx.Citations))
	}
	// Local 0.58 beats web 0.5/1 = 0.5.
	if ctx.Citations[0].Origin != OriginKnowledgeBase {
		t.Errorf("first citation origin = %s, want knowledge_base", ctx.Citations[0].Origin)
	}
	if ctx.Citations[1].Origin != OriginWebSearch {
		t.Errorf("second citation origin = %s, want web_search", ctx.Citations[1].Origin)
	}
}

func TestAssembleWebRankDecay(t *testing.T) {
	a := NewAssembler(3000, 0.5)
	ctx := a.Assemble(nil, []WebResult{
		{Title: "First", URL: "https://web/1", Snippet: "Top ranked answer about settlement."},
		{Title: "Second", URL: "https://web/2", Snippet: "Lower ranked answer about settlement fees."},
	})

	if len(ctx.Citations) != 2 {
		t.Fatalf("got %d citations, want 2", len(ctx.Citations))
	}
	if ctx.Citations[0].SourceURI != "https://web/1" {
		t.Errorf("rank order not preserved: %v", ctx.Citations)
	}
}

func TestAssembleDeduplicates(t *testing.T) {
	a := NewAssembler(3000, 0.5)
	ctx := a.Assemble(
		[]knowledge.Hit{hit("kb", "Refunds  take FIVE days.", "https://kb/refunds", 0.9)},
		[]WebResult{{Title: "Copy", URL: "https://web/copy", Snippet: "refunds take five days."}},
	)

	if len(ctx.Citations) != 1 {
		t.Fatalf("got %d citations, want 1 after dedupe", len(ctx.Citations))
	}
	if ctx.Citations[0].SourceURI != "https://kb/refunds" {
		t.Errorf("dedupe kept %s, want the higher-scored local copy", ctx.Citations[0].SourceURI)
	}
}

func TestAssembleRespectsTokenBudget(t *testing.T) {
	a := NewAssembler(30, 0.5)
	big := strings.Repeat("settlement reconciliation happens overnight ", 20)
	small := "Fees post monthly."
	ctx := a.Assemble([]knowledge.Hit{
		hit("big", big, "https://kb/big", 0.95),
		hit("small", small, "https://kb/small", 0.80),
	}, nil)

	if ctx.TokenCount > 30 {
		t.Errorf("token count %d exceeds budget 30", ctx.TokenCount)
	}
	// The oversized passage is skipped; the smaller one still packs.
	if len(ctx.Citations) != 1 || ctx.Citations[0].SourceURI != "https://kb/small" {
		t.Errorf("citations = %v, want only the small passage", ctx.Citations)
	}
}

func TestAssembleCountsSeparatorsAgainstBudget(t *testing.T) {
	a := NewAssembler(30, 0.5)
	hits := []knowledge.Hit{
		{Chunk: knowledge.Chunk{ID: "a", Content: "Fees post weekly"}, Similarity: 0.9},
		{Chunk: knowledge.Chunk{ID: "b", Content: "Payouts are slow"}, Similarity: 0.8},
		{Chunk: knowledge.Chunk{ID: "c", Content: "Refund in 5 days"}, Similarity: 0.7},
	}
	ctx := a.Assemble(hits, nil)

	// Each rendered block estimates to 10 tokens, so the three blocks
	// alone would exactly fill the budget. The separators joining them
	// count too, pushing the third block out.
	if len(ctx.Citations) != 2 {
		t.Fatalf("got %d citations, want 2", len(ctx.Citations))
	}
	if got := knowledge.EstimateTokens(ctx.Text); got > 30 {
		t.Errorf("assembled text estimates %d tokens, exceeds budget 30", got)
	}
	if ctx.TokenCount != 21 {
		t.Errorf("TokenCount = %d, want 21 (two blocks plus one separator)", ctx.TokenCount)
	}
}

func TestAssembleEmptyInputs(t *testing.T) {
	a := NewAssembler(3000, 0.5)
	ctx := a.Assemble(nil, nil)
	if !ctx.Empty() {
		t.Errorf("Empty() = false for no inputs")
	}
	if ctx.Text != "" || ctx.TokenCount != 0 {
		t.Errorf("context = %+v, want zero value", ctx)
	}
}

func TestAssembleSkipsBlankPassages(t *testing.T) {
	a := NewAssembler(3000, 0.5)
	ctx := a.Assemble(
		[]knowledge.Hit{hit("blank", "   ", "https://kb/blank", 0.99)},
		[]WebResult{{Title: "Empty", URL: "https://web/empty", Snippet: ""}},
	)
	if !ctx.Empty() {
		t.Errorf("blank passages should not produce citations: %v", ctx.Citations)
	}
}
