package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/orbitpay/orbit/internal/rag"
)

func turnPair(n int) []Turn {
	var turns []Turn
	for i := range n {
		turns = append(turns,
			Turn{ID: int64(i*2 + 1), Role: RoleUser, Content: fmt.Sprintf("q%d", i)},
			Turn{ID: int64(i*2 + 2), Role: RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		)
	}
	return turns
}

func TestHistoryKeepsMostRecentExchanges(t *testing.T) {
	turns := turnPair(5) // 10 turns

	got := History(turns, 2)
	if len(got) != 4 {
		t.Fatalf("got %d turns, want 4", len(got))
	}
	if got[0].Content != "q3" || got[3].Content != "a4" {
		t.Errorf("kept wrong window: first %q, last %q", got[0].Content, got[3].Content)
	}
}

func TestHistoryShorterThanWindow(t *testing.T) {
	turns := turnPair(2)
	got := History(turns, 6)
	if len(got) != len(turns) {
		t.Errorf("got %d turns, want all %d", len(got), len(turns))
	}
}

func TestHistoryDisabled(t *testing.T) {
	if got := History(turnPair(3), 0); got != nil {
		t.Errorf("History(_, 0) = %v, want nil", got)
	}
}

// fakeSessionQuerier is an in-memory Querier.
type fakeSessionQuerier struct {
	sessions map[string]SessionRow
	turns    map[string][]TurnRow
	nextTurn int64
}

func newFakeSessionQuerier() *fakeSessionQuerier {
	return &fakeSessionQuerier{
		sessions: make(map[string]SessionRow),
		turns:    make(map[string][]TurnRow),
	}
}

func (f *fakeSessionQuerier) InsertSession(_ context.Context, id, title string) (SessionRow, error) {
	row := SessionRow{ID: id, Title: title}
	f.sessions[id] = row
	return row, nil
}

func (f *fakeSessionQuerier) GetSession(_ context.Context, id string) (SessionRow, error) {
	row, ok := f.sessions[id]
	if !ok {
		return SessionRow{}, pgx.ErrNoRows
	}
	return row, nil
}

func (f *fakeSessionQuerier) ListSessions(_ context.Context, limit int) ([]SessionRow, error) {
	var out []SessionRow
	for _, row := range f.sessions {
		out = append(out, row)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSessionQuerier) DeleteSession(_ context.Context, id string) (int64, error) {
	if _, ok := f.sessions[id]; !ok {
		return 0, nil
	}
	delete(f.sessions, id)
	delete(f.turns, id)
	return 1, nil
}

func (f *fakeSessionQuerier) InsertTurn(_ context.Context, arg InsertTurnParams) (TurnRow, error) {
	f.nextTurn++
	row := TurnRow{
		ID:        f.nextTurn,
		SessionID: arg.SessionID,
		Role:      arg.Role,
		Content:   arg.Content,
		Citations: arg.Citations,
	}
	f.turns[arg.SessionID] = append(f.turns[arg.SessionID], row)
	return row, nil
}

func (f *fakeSessionQuerier) ListTurns(_ context.Context, sessionID string) ([]TurnRow, error) {
	return f.turns[sessionID], nil
}

func TestStoreAppendAndListTurns(t *testing.T) {
	store := NewStore(newFakeSessionQuerier(), nil)
	ctx := context.Background()

	sess, err := store.Create(ctx, "refund question")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	citations := []rag.Citation{{Ref: "[1]", SourceURI: "https://kb/refunds", Origin: rag.OriginKnowledgeBase}}
	if _, err := store.AppendTurn(ctx, sess.ID, RoleUser, "where is my refund", nil); err != nil {
		t.Fatalf("AppendTurn(user) error = %v", err)
	}
	if _, err := store.AppendTurn(ctx, sess.ID, RoleAssistant, "it takes five days [1]", citations); err != nil {
		t.Fatalf("AppendTurn(assistant) error = %v", err)
	}

	turns, err := store.Turns(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Turns() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Role != RoleUser || turns[1].Role != RoleAssistant {
		t.Errorf("turn order wrong: %v, %v", turns[0].Role, turns[1].Role)
	}
	if len(turns[1].Citations) != 1 || turns[1].Citations[0].SourceURI != "https://kb/refunds" {
		t.Errorf("citations not round-tripped: %+v", turns[1].Citations)
	}
}

func TestStoreGetNotFound(t *testing.T) {
	store := NewStore(newFakeSessionQuerier(), nil)
	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestStoreDeleteNotFound(t *testing.T) {
	store := NewStore(newFakeSessionQuerier(), nil)
	err := store.Delete(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
