// Package rag implements the retrieval pipeline: ingesting documents
// into the knowledge base, retrieving relevant chunks for a query, and
// assembling a citation-tagged context block within a token budget.
package rag

import "errors"

// ErrLowConfidence signals that retrieval produced no result at or
// above the similarity threshold. Callers treat it as a control signal
// (fall back to web search), not as a failure.
var ErrLowConfidence = errors.New("no result met the similarity threshold")

// Origin identifies where a passage came from.
type Origin string

const (
	OriginKnowledgeBase Origin = "knowledge_base"
	OriginWebSearch     Origin = "web_search"
)

// WebResult is an external search result handed to the assembler.
type WebResult struct {
	Title   string
	URL     string
	Snippet string
}

// Citation maps a reference tag in the assembled context back to its
// source.
type Citation struct {
	Ref       string `json:"ref"`
	SourceURI string `json:"source_uri"`
	Title     string `json:"title,omitempty"`
	Origin    Origin `json:"origin"`
}

// Context is the assembled grounding block for one question.
type Context struct {
	Text       string
	Citations  []Citation
	TokenCount int
}

// Empty reports whether no passage survived assembly.
func (c Context) Empty() bool { return len(c.Citations) == 0 }
