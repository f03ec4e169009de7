package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scopegen/scopegen-backend/internal/repos"
	"github.com/scopegen/scopegen-backend/internal/types"
)

func newDraftFixture(t *testing.T, db *gorm.DB) (DraftService, ProposalService) {
	t.Helper()
	log := newTestLogger(t)
	recs := newRecService(t, db)
	draft := NewDraftService(db, log, repos.NewDraftRunRepo(db, log), repos.NewProposalRepo(db, log), recs, time.Second)
	return draft, newProposalService(t, db)
}

func TestDraftEnqueue_IdempotencyKeyDedupes(t *testing.T) {
	db := newTestDB(t)
	draftSvc, proposalSvc := newDraftFixture(t, db)
	userID := uuid.New()
	ctx := authedCtx(userID)

	proposal, err := proposalSvc.Create(ctx, CreateProposalInput{Trade: "plumbing", JobType: "toilet-install"})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}

	first, err := draftSvc.Enqueue(ctx, proposal.ID, "key-1")
	if err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	second, err := draftSvc.Enqueue(ctx, proposal.ID, "key-1")
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("same key produced different runs: %s vs %s", first.ID, second.ID)
	}

	var n int64
	if err := db.Model(&types.DraftRun{}).Count(&n).Error; err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if n != 1 {
		t.Fatalf("runs = %d, want 1", n)
	}
}

func TestDraftEnqueue_DistinctKeysQueueSeparateRuns(t *testing.T) {
	db := newTestDB(t)
	draftSvc, proposalSvc := newDraftFixture(t, db)
	ctx := authedCtx(uuid.New())

	proposal, err := proposalSvc.Create(ctx, CreateProposalInput{Trade: "plumbing", JobType: "toilet-install"})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}

	first, err := draftSvc.Enqueue(ctx, proposal.ID, "key-1")
	if err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	second, err := draftSvc.Enqueue(ctx, proposal.ID, "key-2")
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("distinct keys should queue distinct runs")
	}
}

func TestDraftEnqueue_RequiresKeyAndOwnership(t *testing.T) {
	db := newTestDB(t)
	draftSvc, proposalSvc := newDraftFixture(t, db)
	owner := uuid.New()

	proposal, err := proposalSvc.Create(authedCtx(owner), CreateProposalInput{Trade: "plumbing", JobType: "toilet-install"})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}

	if _, err := draftSvc.Enqueue(authedCtx(owner), proposal.ID, ""); err == nil {
		t.Fatalf("missing idempotency key should fail")
	}
	if _, err := draftSvc.Enqueue(authedCtx(uuid.New()), proposal.ID, "key-x"); err != ErrProposalNotFound {
		t.Fatalf("expected not-found for other user, got %v", err)
	}
}

func TestDraftGetRun_DeniesOtherUsers(t *testing.T) {
	db := newTestDB(t)
	draftSvc, proposalSvc := newDraftFixture(t, db)
	owner := uuid.New()
	ctx := authedCtx(owner)

	proposal, err := proposalSvc.Create(ctx, CreateProposalInput{Trade: "plumbing", JobType: "toilet-install"})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	run, err := draftSvc.Enqueue(ctx, proposal.ID, "key-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := draftSvc.GetRun(authedCtx(uuid.New()), run.ID); err != ErrDraftRunNotFound {
		t.Fatalf("expected not-found for other user, got %v", err)
	}
	got, err := draftSvc.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("owner GetRun: %v", err)
	}
	if got.Status != types.DraftRunQueued {
		t.Fatalf("status = %q, want queued", got.Status)
	}
}

func TestDraftGenerate_SeedsScopeFromKnowledge(t *testing.T) {
	db := newTestDB(t)
	draftSvc, proposalSvc := newDraftFixture(t, db)
	userID := uuid.New()
	ctx := authedCtx(userID)

	proposal, err := proposalSvc.Create(ctx, CreateProposalInput{
		Trade:    "plumbing",
		JobType:  "Water Heater Install",
		BaseLow:  1400,
		BaseHigh: 2100,
	})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	run, err := draftSvc.Enqueue(ctx, proposal.ID, "key-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	result, err := draftSvc.(*draftService).generate(ctx, run)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.KnowledgeSource != "water-heater-install" {
		t.Fatalf("knowledge source = %q, want water-heater-install", result.KnowledgeSource)
	}
	found := false
	for _, item := range result.ScopeItems {
		if item == "Install expansion tank" {
			found = true
		}
	}
	if !found {
		t.Fatalf("default components missing from seeded scope: %v", result.ScopeItems)
	}
	if result.Pricing == nil {
		t.Fatalf("pricing suggestion missing")
	}

	// The seeded scope is written back onto the proposal.
	reloaded, err := proposalSvc.GetByID(ctx, proposal.ID)
	if err != nil {
		t.Fatalf("reload proposal: %v", err)
	}
	if items := scopeItemList(reloaded.ScopeItems); len(items) != len(result.ScopeItems) {
		t.Fatalf("persisted scope = %v, want %v", items, result.ScopeItems)
	}
}

func TestDraftGetLatestForProposal(t *testing.T) {
	db := newTestDB(t)
	draftSvc, proposalSvc := newDraftFixture(t, db)
	ctx := authedCtx(uuid.New())

	proposal, err := proposalSvc.Create(ctx, CreateProposalInput{Trade: "plumbing", JobType: "toilet-install"})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	if _, err := draftSvc.GetLatestForProposal(ctx, proposal.ID); err != ErrDraftRunNotFound {
		t.Fatalf("expected not-found before any run, got %v", err)
	}

	run, err := draftSvc.Enqueue(ctx, proposal.ID, "key-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	latest, err := draftSvc.GetLatestForProposal(ctx, proposal.ID)
	if err != nil {
		t.Fatalf("GetLatestForProposal: %v", err)
	}
	if latest.ID != run.ID {
		t.Fatalf("latest run = %s, want %s", latest.ID, run.ID)
	}
}
