// Package assistant orchestrates the answer pipeline: retrieve,
// optionally fall back to web search, assemble context, generate a
// grounded answer and record the exchange in a session.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/orbitpay/orbit/internal/knowledge"
	"github.com/orbitpay/orbit/internal/log"
	"github.com/orbitpay/orbit/internal/rag"
	"github.com/orbitpay/orbit/internal/session"
	"github.com/orbitpay/orbit/internal/websearch"
)

// Retriever retrieves confident knowledge-base hits for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Hit, error)
}

// Searcher runs the external web-search fallback.
type Searcher interface {
	Enabled() bool
	Search(ctx context.Context, query string) ([]websearch.Result, error)
}

// TextGenerator produces answer text from a system prompt and messages.
type TextGenerator interface {
	Generate(ctx context.Context, system string, msgs []*ai.Message) (string, error)
}

// SessionStore is the slice of the session store the assistant needs.
type SessionStore interface {
	Create(ctx context.Context, title string) (session.Session, error)
	Get(ctx context.Context, id string) (session.Session, error)
	Turns(ctx context.Context, sessionID string) ([]session.Turn, error)
	AppendTurn(ctx context.Context, sessionID string, role session.Role, content string, citations []rag.Citation) (session.Turn, error)
}

// Config tunes the assistant pipeline.
type Config struct {
	// MaxHistoryExchanges caps how many past user/assistant pairs are
	// threaded into the model call.
	MaxHistoryExchanges int
	// HistoryTokenBudget bounds history after windowing.
	HistoryTokenBudget int
	// AlwaysSearch runs web search on every question instead of only
	// after a low-confidence retrieval.
	AlwaysSearch bool
}

func (c Config) withDefaults() Config {
	if c.MaxHistoryExchanges <= 0 {
		c.MaxHistoryExchanges = 6
	}
	if c.HistoryTokenBudget <= 0 {
		c.HistoryTokenBudget = 2000
	}
	return c
}

// Answer is the result of one Ask call.
type Answer struct {
	SessionID     string
	Text          string
	Citations     []rag.Citation
	UsedWebSearch bool
}

// Assistant answers support questions grounded in the knowledge base.
//
// Assistant is safe for concurrent use by multiple goroutines.
type Assistant struct {
	retriever Retriever
	searcher  Searcher
	assembler *rag.Assembler
	generator TextGenerator
	sessions  SessionStore
	cfg       Config
	logger    log.Logger
}

// New creates an Assistant. searcher may be a disabled client; the
// fallback is then skipped.
func New(retriever Retriever, searcher Searcher, assembler *rag.Assembler, generator TextGenerator, sessions SessionStore, cfg Config, logger log.Logger) *Assistant {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Assistant{
		retriever: retriever,
		searcher:  searcher,
		assembler: assembler,
		generator: generator,
		sessions:  sessions,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Ask answers one question within a session. An empty sessionID starts
// a new session; the returned Answer carries the session ID either way.
//
// A low-confidence retrieval is not an error: the assistant falls back
// to web search, and if nothing usable remains it answers with an
// explicit "not enough information" message instead of calling the
// model.
func (a *Assistant) Ask(ctx context.Context, sessionID, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	sess, err := a.resolveSession(ctx, sessionID, question)
	if err != nil {
		return Answer{}, err
	}

	turns, err := a.sessions.Turns(ctx, sess.ID)
	if err != nil {
		return Answer{}, fmt.Errorf("loading history: %w", err)
	}
	history := session.History(turns, a.cfg.MaxHistoryExchanges)

	hits, usedWeb, webResults := a.gather(ctx, question)

	assembled := a.assembler.Assemble(hits, webResults)

	var answerText string
	if assembled.Empty() {
		answerText = insufficientContextAnswer
		a.logger.Info("answering without context",
			"session_id", sess.ID, "used_web_search", usedWeb)
	} else {
		msgs := buildMessages(history, assembled.Text, question)
		msgs = truncateHistory(msgs, a.cfg.HistoryTokenBudget+assembled.TokenCount+knowledge.EstimateTokens(question))
		answerText, err = a.generator.Generate(ctx, systemPrompt, msgs)
		if err != nil {
			return Answer{}, err
		}
	}

	if _, err := a.sessions.AppendTurn(ctx, sess.ID, session.RoleUser, question, nil); err != nil {
		return Answer{}, fmt.Errorf("recording question: %w", err)
	}
	if _, err := a.sessions.AppendTurn(ctx, sess.ID, session.RoleAssistant, answerText, assembled.Citations); err != nil {
		return Answer{}, fmt.Errorf("recording answer: %w", err)
	}

	return Answer{
		SessionID:     sess.ID,
		Text:          answerText,
		Citations:     assembled.Citations,
		UsedWebSearch: usedWeb,
	}, nil
}

// gather retrieves local hits and decides whether to hit the web.
// Web search failures degrade to an empty result set; they never fail
// the question.
func (a *Assistant) gather(ctx context.Context, question string) (hits []knowledge.Hit, usedWeb bool, webResults []rag.WebResult) {
	hits, err := a.retriever.Retrieve(ctx, question)
	lowConfidence := errors.Is(err, rag.ErrLowConfidence)
	if err != nil && !lowConfidence {
		// Treat a broken index like an empty one; web search may still
		// rescue the answer.
		a.logger.Warn("retrieval failed", "error", err)
		hits = nil
	}

	needWeb := a.cfg.AlwaysSearch || lowConfidence || len(hits) == 0
	if !needWeb || a.searcher == nil || !a.searcher.Enabled() {
		return hits, false, nil
	}

	results, err := a.searcher.Search(ctx, question)
	if err != nil {
		a.logger.Warn("web search failed", "error", err)
		return hits, true, nil
	}
	for _, r := range results {
		webResults = append(webResults, rag.WebResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Snippet,
		})
	}
	return hits, true, webResults
}

func (a *Assistant) resolveSession(ctx context.Context, sessionID, question string) (session.Session, error) {
	if sessionID == "" {
		sess, err := a.sessions.Create(ctx, sessionTitle(question))
		if err != nil {
			return session.Session{}, fmt.Errorf("creating session: %w", err)
		}
		return sess, nil
	}
	sess, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

// sessionTitle derives a short title from the first question.
func sessionTitle(question string) string {
	const maxRunes = 60
	runes := []rune(question)
	if len(runes) <= maxRunes {
		return question
	}
	return string(runes[:maxRunes]) + "..."
}
