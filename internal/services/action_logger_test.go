package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scopegen/scopegen-backend/internal/repos"
	"github.com/scopegen/scopegen-backend/internal/types"
)

func newActionLogger(t *testing.T, db *gorm.DB) ActionLogger {
	t.Helper()
	log := newTestLogger(t)
	return NewActionLogger(
		db,
		log,
		repos.NewUserActionEventRepo(db, log),
		repos.NewPricingPatternRepo(db, log),
		repos.NewPhotoCategorizationRepo(db, log),
	)
}

func countEvents(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&types.UserActionEvent{}).Count(&n).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func TestLogAction_WritesEvent(t *testing.T) {
	db := newTestDB(t)
	svc := newActionLogger(t, db)
	userID := uuid.New()

	svc.LogAction(authedCtx(userID), ActionInput{
		ActionType: types.ActionScopeAdd,
		Context:    ActionContext{Trade: "fencing", JobType: "fence-install", Zip: "78704"},
		Payload:    map[string]any{"scope_item": "Haul away old fencing"},
	})

	if n := countEvents(t, db); n != 1 {
		t.Fatalf("events = %d, want 1", n)
	}
	var ev types.UserActionEvent
	if err := db.First(&ev).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if ev.UserID != userID || ev.ActionType != types.ActionScopeAdd || ev.Outcome != types.OutcomePending {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestLogAction_NormalizesTradeAndJobType(t *testing.T) {
	db := newTestDB(t)
	svc := newActionLogger(t, db)

	svc.LogAction(authedCtx(uuid.New()), ActionInput{
		ActionType: types.ActionScopeAdd,
		Context:    ActionContext{Trade: " Plumbing ", JobType: "Water Heater Install"},
		Payload:    map[string]any{"scope_item": "Expansion tank"},
	})

	var ev types.UserActionEvent
	if err := db.First(&ev).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if ev.Trade != "plumbing" {
		t.Fatalf("trade = %q, want plumbing", ev.Trade)
	}
	if ev.JobType != "water-heater-install" {
		t.Fatalf("job type = %q, want water-heater-install", ev.JobType)
	}
}

func TestLogAction_DropsUnknownActionType(t *testing.T) {
	db := newTestDB(t)
	svc := newActionLogger(t, db)

	svc.LogAction(authedCtx(uuid.New()), ActionInput{ActionType: "made_coffee"})
	if n := countEvents(t, db); n != 0 {
		t.Fatalf("unknown action type stored %d events", n)
	}
}

func TestLogAction_DropsUnauthenticated(t *testing.T) {
	db := newTestDB(t)
	svc := newActionLogger(t, db)

	svc.LogAction(context.Background(), ActionInput{ActionType: types.ActionScopeAdd})
	if n := countEvents(t, db); n != 0 {
		t.Fatalf("unauthenticated action stored %d events", n)
	}
}

func TestLogAction_PriceAdjustSideWritesPricingRow(t *testing.T) {
	db := newTestDB(t)
	svc := newActionLogger(t, db)
	userID := uuid.New()

	svc.LogAction(authedCtx(userID), ActionInput{
		ActionType: types.ActionPriceAdjust,
		Context:    ActionContext{Trade: "plumbing", JobType: "toilet-install", Zip: "78704"},
		Payload: map[string]any{
			"suggested_low":  400,
			"suggested_high": 600,
			"final_low":      440,
			"final_high":     660,
			"job_size":       9,
		},
	})

	var rows []types.PricingPattern
	if err := db.Find(&rows).Error; err != nil {
		t.Fatalf("load pricing rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("pricing rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.UserID == nil || *row.UserID != userID {
		t.Fatalf("pricing row user = %v, want %s", row.UserID, userID)
	}
	// out-of-range job sizes clamp to medium
	if row.JobSize != 2 {
		t.Fatalf("job size = %d, want 2", row.JobSize)
	}
	// midpoints 500 -> 550
	if diff := row.AdjustmentPercent - 10; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("adjustment = %v, want 10", row.AdjustmentPercent)
	}
}

func TestLogAction_PhotoCategorizeSideWritesRecord(t *testing.T) {
	db := newTestDB(t)
	svc := newActionLogger(t, db)
	userID := uuid.New()

	svc.LogAction(authedCtx(userID), ActionInput{
		ActionType: types.ActionPhotoCategorize,
		Context:    ActionContext{Trade: "plumbing", JobType: "toilet-install"},
		Payload:    map[string]any{"position": 1, "category": "Hero", "caption": " Front view "},
	})

	var records []types.PhotoCategorizationRecord
	if err := db.Find(&records).Error; err != nil {
		t.Fatalf("load photo records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("photo records = %d, want 1", len(records))
	}
	if records[0].Category != "hero" || records[0].Caption != "Front view" {
		t.Fatalf("record not normalized: %+v", records[0])
	}
}

func TestUpdateOutcome_BackfillsProposalEvents(t *testing.T) {
	db := newTestDB(t)
	svc := newActionLogger(t, db)
	userID := uuid.New()
	proposalID := uuid.New()

	svc.LogAction(authedCtx(userID), ActionInput{
		ActionType: types.ActionScopeAdd,
		ProposalID: &proposalID,
		Context:    ActionContext{Trade: "fencing", JobType: "fence-install"},
		Payload:    map[string]any{"scope_item": "Haul away old fencing"},
	})

	finalValue := 4200.0
	svc.UpdateOutcome(context.Background(), proposalID, types.OutcomeWon, &finalValue)

	var ev types.UserActionEvent
	if err := db.First(&ev).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if ev.Outcome != types.OutcomeWon {
		t.Fatalf("outcome = %q, want won", ev.Outcome)
	}
	if ev.OutcomeValue == nil || *ev.OutcomeValue != finalValue {
		t.Fatalf("outcome value = %v, want %v", ev.OutcomeValue, finalValue)
	}
}

func TestAdjustmentPercent(t *testing.T) {
	cases := []struct {
		name                   string
		sLow, sHigh, fLow, fHigh int
		want                   float64
	}{
		{"ten percent up", 400, 600, 440, 660, 10},
		{"ten percent down", 1000, 2000, 900, 1800, -10},
		{"unchanged", 500, 700, 500, 700, 0},
		{"zero suggested midpoint", 0, 0, 100, 200, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := AdjustmentPercent(c.sLow, c.sHigh, c.fLow, c.fHigh)
			if diff := got - c.want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("AdjustmentPercent = %v, want %v", got, c.want)
			}
		})
	}
}
