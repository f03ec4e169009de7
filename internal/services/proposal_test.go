package services

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scopegen/scopegen-backend/internal/repos"
	"github.com/scopegen/scopegen-backend/internal/types"
)

func newProposalService(t *testing.T, db *gorm.DB) ProposalService {
	t.Helper()
	log := newTestLogger(t)
	return NewProposalService(db, log, repos.NewProposalRepo(db, log), newActionLogger(t, db))
}

func TestProposalCreate_LogsAction(t *testing.T) {
	db := newTestDB(t)
	svc := newProposalService(t, db)
	userID := uuid.New()

	proposal, err := svc.Create(authedCtx(userID), CreateProposalInput{
		Trade:      "plumbing",
		JobType:    "toilet-install",
		Zip:        "78704",
		ScopeItems: []string{"Remove old toilet"},
		BaseLow:    400,
		BaseHigh:   650,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if proposal.Status != types.ProposalStatusDraft {
		t.Fatalf("status = %q, want draft", proposal.Status)
	}
	// out-of-range job size defaults to medium
	if proposal.JobSize != 2 {
		t.Fatalf("job size = %d, want 2", proposal.JobSize)
	}

	var ev types.UserActionEvent
	if err := db.First(&ev).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if ev.ActionType != types.ActionProposalCreate || ev.ProposalID == nil || *ev.ProposalID != proposal.ID {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestProposalCreate_NormalizesTradeAndJobType(t *testing.T) {
	db := newTestDB(t)
	svc := newProposalService(t, db)

	proposal, err := svc.Create(authedCtx(uuid.New()), CreateProposalInput{
		Trade:   "Plumbing",
		JobType: "Water Heater Install",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if proposal.Trade != "plumbing" {
		t.Fatalf("trade = %q, want plumbing", proposal.Trade)
	}
	if proposal.JobType != "water-heater-install" {
		t.Fatalf("job type = %q, want water-heater-install", proposal.JobType)
	}
	if proposal.CreatedAt.IsZero() || proposal.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set on create: %+v", proposal)
	}
}

func TestProposalGet_DeniesOtherUsers(t *testing.T) {
	db := newTestDB(t)
	svc := newProposalService(t, db)
	owner := uuid.New()

	proposal, err := svc.Create(authedCtx(owner), CreateProposalInput{Trade: "plumbing", JobType: "toilet-install"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.GetByID(authedCtx(uuid.New()), proposal.ID); err != ErrProposalNotFound {
		t.Fatalf("expected not-found for other user, got %v", err)
	}
}

func TestProposalSend_OnlyFromDraft(t *testing.T) {
	db := newTestDB(t)
	svc := newProposalService(t, db)
	userID := uuid.New()
	ctx := authedCtx(userID)

	proposal, err := svc.Create(ctx, CreateProposalInput{Trade: "plumbing", JobType: "toilet-install"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sent, err := svc.Send(ctx, proposal.ID)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent.Status != types.ProposalStatusSent {
		t.Fatalf("status = %q, want sent", sent.Status)
	}
	if _, err := svc.Send(ctx, proposal.ID); err == nil {
		t.Fatalf("second send should fail")
	}
}

func TestProposalClose_BackfillsOutcomes(t *testing.T) {
	db := newTestDB(t)
	svc := newProposalService(t, db)
	userID := uuid.New()
	ctx := authedCtx(userID)

	proposal, err := svc.Create(ctx, CreateProposalInput{
		Trade:      "plumbing",
		JobType:    "toilet-install",
		ScopeItems: []string{"Remove old toilet"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Send(ctx, proposal.ID); err != nil {
		t.Fatalf("Send: %v", err)
	}

	finalValue := 575.0
	closed, err := svc.Close(ctx, proposal.ID, CloseProposalInput{Outcome: "won", FinalValue: &finalValue})
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if closed.Status != types.ProposalStatusWon {
		t.Fatalf("status = %q, want won", closed.Status)
	}

	var events []types.UserActionEvent
	if err := db.Where("proposal_id = ?", proposal.ID).Find(&events).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	sawWonEvent := false
	for _, ev := range events {
		if ev.ActionType == types.ActionProposalWon {
			sawWonEvent = true
		}
		if ev.Outcome != types.OutcomeWon {
			t.Fatalf("event %s outcome = %q, want won", ev.ActionType, ev.Outcome)
		}
	}
	if !sawWonEvent {
		t.Fatalf("no proposal_won event logged")
	}

	if _, err := svc.Close(ctx, proposal.ID, CloseProposalInput{Outcome: "lost"}); err == nil {
		t.Fatalf("closing twice should fail")
	}
}

func TestProposalClose_Lost(t *testing.T) {
	db := newTestDB(t)
	svc := newProposalService(t, db)
	ctx := authedCtx(uuid.New())

	proposal, err := svc.Create(ctx, CreateProposalInput{Trade: "plumbing", JobType: "toilet-install"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	closed, err := svc.Close(ctx, proposal.ID, CloseProposalInput{Outcome: "lost"})
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if closed.Status != types.ProposalStatusLost {
		t.Fatalf("status = %q, want lost", closed.Status)
	}

	var ev types.UserActionEvent
	if err := db.Where("action_type = ?", types.ActionProposalLost).First(&ev).Error; err != nil {
		t.Fatalf("load lost event: %v", err)
	}
	if ev.Outcome != types.OutcomeLost {
		t.Fatalf("outcome = %q, want lost", ev.Outcome)
	}
}

func TestProposalClose_RejectsUnknownOutcome(t *testing.T) {
	db := newTestDB(t)
	svc := newProposalService(t, db)
	ctx := authedCtx(uuid.New())

	proposal, err := svc.Create(ctx, CreateProposalInput{Trade: "plumbing", JobType: "toilet-install"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Close(ctx, proposal.ID, CloseProposalInput{Outcome: "maybe"}); err == nil {
		t.Fatalf("unknown outcome should be rejected")
	}
}
