package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/louisbranch/bidstage/internal/platform/errors"
	"github.com/louisbranch/bidstage/internal/services/bidding/persona"
	"github.com/louisbranch/bidstage/internal/services/bidding/session"
	"github.com/louisbranch/bidstage/internal/services/bidding/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSnapshot(sessionID, submissionID string, endedAt time.Time) session.Snapshot {
	return session.Snapshot{
		SessionID:    sessionID,
		SubmissionID: submissionID,
		Phase:        "result",
		Started:      true,
		Ended:        true,
		Idea:         "共享雨伞",
		EndedAt:      endedAt,
		Ledger: session.LedgerView{
			Bids:    map[string]int{string(persona.BusinessTycoon): 180},
			Highest: 180,
			Leader:  string(persona.BusinessTycoon),
		},
		Winner: string(persona.BusinessTycoon),
		Messages: []session.Message{{
			ID:        "msg_1",
			SessionID: sessionID,
			PersonaID: persona.BusinessTycoon,
			Content:   "我出价180元",
			Bid:       180,
			Cost:      "0",
		}},
		Cost: session.CostUpdatePayload{TotalCost: "0.002", BudgetUnits: "0.6", RealCalls: 1},
	}
}

func TestPutAndGetSnapshot(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	endedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.PutSnapshot(ctx, testSnapshot("ses_1", "sub-1", endedAt)); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.GetSnapshot(ctx, "sub-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SessionID != "ses_1" || got.Winner != string(persona.BusinessTycoon) || got.Idea != "共享雨伞" {
		t.Fatalf("snapshot = %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Bid != 180 || !got.EndedAt.Equal(endedAt) {
		t.Fatalf("snapshot = %+v", got)
	}
	if got.Cost.BudgetUnits != "0.6" || got.Ledger.Highest != 180 {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestGetSnapshotReturnsLatestSession(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = store.PutSnapshot(ctx, testSnapshot("ses_old", "sub-1", base))
	_ = store.PutSnapshot(ctx, testSnapshot("ses_new", "sub-1", base.Add(time.Hour)))

	got, err := store.GetSnapshot(ctx, "sub-1")
	if err != nil || got.SessionID != "ses_new" {
		t.Fatalf("get = %+v, %v", got, err)
	}
	old, err := store.GetSession(ctx, "ses_old")
	if err != nil || old.SessionID != "ses_old" {
		t.Fatalf("get session = %+v, %v", old, err)
	}

	summaries, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 2 || summaries[0].SessionID != "ses_new" || summaries[0].HighestBid != 180 || summaries[0].Messages != 1 {
		t.Fatalf("summaries = %+v", summaries)
	}
}

func TestPutSnapshotReplacesSameSession(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	snap := testSnapshot("ses_1", "sub-1", time.Now())
	_ = store.PutSnapshot(ctx, snap)
	snap.Winner = ""
	if err := store.PutSnapshot(ctx, snap); err != nil {
		t.Fatalf("put again: %v", err)
	}
	summaries, _ := store.ListRecent(ctx, 0)
	if len(summaries) != 1 || summaries[0].Winner != "" {
		t.Fatalf("summaries = %+v", summaries)
	}
}

func TestGetSnapshotNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetSnapshot(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if apperrors.CodeOf(err) != apperrors.CodeArchiveNotFound {
		t.Fatalf("code = %s", apperrors.CodeOf(err))
	}
}

func TestPutSnapshotValidates(t *testing.T) {
	store := openTestStore(t)
	if err := store.PutSnapshot(context.Background(), session.Snapshot{SubmissionID: "sub"}); err == nil {
		t.Fatal("expected missing session id error")
	}
	if err := store.PutSnapshot(context.Background(), session.Snapshot{SessionID: "ses"}); err == nil {
		t.Fatal("expected missing submission id error")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
}
