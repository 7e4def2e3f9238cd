package rag

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/orbitpay/orbit/internal/knowledge"
)

// Assembler merges local hits and external search results into one
// citation-tagged context block bounded by a token budget.
//
// Scoring: local hits keep their similarity as-is (weight 1.0);
// external results get a rank-decayed base score scaled by
// fallbackWeight, so the knowledge base wins ties against the web.
type Assembler struct {
	maxTokens      int
	fallbackWeight float64
}

// NewAssembler creates an Assembler. fallbackWeight scales external
// results into [0, fallbackWeight].
func NewAssembler(maxTokens int, fallbackWeight float64) *Assembler {
	if maxTokens <= 0 {
		maxTokens = 3000
	}
	if fallbackWeight < 0 || fallbackWeight > 1 {
		fallbackWeight = 0.5
	}
	return &Assembler{maxTokens: maxTokens, fallbackWeight: fallbackWeight}
}

// blockSeparator joins rendered passage blocks in the final context.
const blockSeparator = "\n\n"

type passage struct {
	text      string
	sourceURI string
	title     string
	origin    Origin
	score     float64
	order     int
}

// Assemble builds the grounding context. Passages are deduplicated by
// normalized text (highest score wins), ordered by descending score,
// and packed greedily: a passage that does not fit the remaining
// budget is skipped and packing continues with smaller ones.
func (a *Assembler) Assemble(hits []knowledge.Hit, web []WebResult) Context {
	passages := a.collect(hits, web)
	passages = dedupe(passages)

	sort.SliceStable(passages, func(i, j int) bool {
		if passages[i].score != passages[j].score {
			return passages[i].score > passages[j].score
		}
		return passages[i].order < passages[j].order
	})

	var (
		blocks    []string
		citations []Citation
		used      int
	)
	sepCost := knowledge.EstimateTokens(blockSeparator)
	for _, p := range passages {
		ref := fmt.Sprintf("[%d]", len(citations)+1)
		block := renderBlock(ref, p)
		cost := knowledge.EstimateTokens(block)
		if len(blocks) > 0 {
			// The joining separator counts against the budget too.
			cost += sepCost
		}
		if used+cost > a.maxTokens {
			continue
		}
		used += cost
		blocks = append(blocks, block)
		citations = append(citations, Citation{
			Ref:       ref,
			SourceURI: p.sourceURI,
			Title:     p.title,
			Origin:    p.origin,
		})
	}

	return Context{
		Text:       strings.Join(blocks, blockSeparator),
		Citations:  citations,
		TokenCount: used,
	}
}

func (a *Assembler) collect(hits []knowledge.Hit, web []WebResult) []passage {
	passages := make([]passage, 0, len(hits)+len(web))
	for i, h := range hits {
		text := strings.TrimSpace(h.Chunk.Content)
		if text == "" {
			continue
		}
		passages = append(passages, passage{
			text:      text,
			sourceURI: h.SourceURI,
			title:     h.Title,
			origin:    OriginKnowledgeBase,
			score:     h.Similarity,
			order:     i,
		})
	}
	for i, w := range web {
		text := strings.TrimSpace(w.Snippet)
		if text == "" {
			continue
		}
		passages = append(passages, passage{
			text:      text,
			sourceURI: w.URL,
			title:     w.Title,
			origin:    OriginWebSearch,
			score:     a.fallbackWeight / float64(i+1),
			order:     len(hits) + i,
		})
	}
	return passages
}

// dedupe drops passages with identical normalized text, keeping the
// highest-scored occurrence.
func dedupe(passages []passage) []passage {
	best := make(map[[32]byte]int, len(passages))
	out := passages[:0:0]
	for _, p := range passages {
		key := sha256.Sum256([]byte(normalizeText(p.text)))
		if idx, ok := best[key]; ok {
			if p.score > out[idx].score {
				out[idx] = p
			}
			continue
		}
		best[key] = len(out)
		out = append(out, p)
	}
	return out
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func renderBlock(ref string, p passage) string {
	header := ref
	if p.title != "" {
		header += " " + p.title
	}
	if p.sourceURI != "" {
		header += " (" + p.sourceURI + ")"
	}
	return header + "\n" + p.text
}
