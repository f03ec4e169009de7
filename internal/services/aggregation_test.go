package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/scopegen/scopegen-backend/internal/repos"
	"github.com/scopegen/scopegen-backend/internal/types"
)

type aggFixture struct {
	db        *gorm.DB
	svc       AggregationService
	scopeRepo repos.ScopeItemPatternRepo
	priceRepo repos.PricingPatternRepo
	geoRepo   repos.GeographicPatternRepo
}

func newAggFixture(t *testing.T) *aggFixture {
	t.Helper()
	db := newTestDB(t)
	log := newTestLogger(t)
	eventRepo := repos.NewUserActionEventRepo(db, log)
	scopeRepo := repos.NewScopeItemPatternRepo(db, log)
	priceRepo := repos.NewPricingPatternRepo(db, log)
	geoRepo := repos.NewGeographicPatternRepo(db, log)
	photoRepo := repos.NewPhotoCategorizationRepo(db, log)
	prefsRepo := repos.NewLearnedPreferencesRepo(db, log)
	userRepo := repos.NewUserRepo(db, log)
	watermarkRepo := repos.NewAggregationWatermarkRepo(db, log)
	prefs := NewPreferencesService(db, log, userRepo, eventRepo, photoRepo, prefsRepo, nil, 0, 30)
	svc := NewAggregationService(db, log, eventRepo, scopeRepo, priceRepo, geoRepo, watermarkRepo, prefs, 7, 30, time.Hour)
	return &aggFixture{db: db, svc: svc, scopeRepo: scopeRepo, priceRepo: priceRepo, geoRepo: geoRepo}
}

func seedEvent(t *testing.T, db *gorm.DB, userID uuid.UUID, actionType, trade, jobType, zip string, payload map[string]any, createdAt time.Time) {
	t.Helper()
	var raw datatypes.JSON
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		raw = datatypes.JSON(b)
	}
	ev := &types.UserActionEvent{
		ID:         uuid.New(),
		UserID:     userID,
		ActionType: actionType,
		Trade:      trade,
		JobType:    jobType,
		Zip:        zip,
		Payload:    raw,
		Outcome:    types.OutcomePending,
		CreatedAt:  createdAt,
	}
	if err := db.Create(ev).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}
}

func TestAggregation_ScopePatternsRollUp(t *testing.T) {
	f := newAggFixture(t)
	userID := uuid.New()
	base := time.Now().UTC().Add(-2 * time.Hour)
	for i := 0; i < 5; i++ {
		seedEvent(t, f.db, userID, types.ActionScopeAdd, "fencing", "fence-install", "78704",
			map[string]any{"scope_item": "Haul away old fencing"}, base.Add(time.Duration(i)*time.Minute))
	}
	seedEvent(t, f.db, userID, types.ActionScopeRemove, "fencing", "fence-install", "78704",
		map[string]any{"scope_item": "Haul away old fencing"}, base.Add(10*time.Minute))

	if err := f.svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	patterns, err := f.scopeRepo.ListByTradeJobType(context.Background(), nil, "fencing", "fence-install")
	if err != nil {
		t.Fatalf("list patterns: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("patterns = %d, want 1", len(patterns))
	}
	if patterns[0].AddedCount != 5 || patterns[0].RemovedCount != 1 {
		t.Fatalf("counts = %d/%d, want 5/1", patterns[0].AddedCount, patterns[0].RemovedCount)
	}
}

func TestAggregation_WatermarkPreventsDoubleCounting(t *testing.T) {
	f := newAggFixture(t)
	userID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		seedEvent(t, f.db, userID, types.ActionScopeAdd, "fencing", "fence-install", "",
			map[string]any{"scope_item": "Set posts in concrete"}, base.Add(time.Duration(i)*time.Minute))
	}

	if err := f.svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := f.svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	patterns, err := f.scopeRepo.ListByTradeJobType(context.Background(), nil, "fencing", "fence-install")
	if err != nil {
		t.Fatalf("list patterns: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("patterns = %d, want 1", len(patterns))
	}
	if patterns[0].AddedCount != 3 {
		t.Fatalf("added = %d after rerun, want 3", patterns[0].AddedCount)
	}
}

func TestAggregation_NewEventsAfterWatermarkStillCount(t *testing.T) {
	f := newAggFixture(t)
	userID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)
	seedEvent(t, f.db, userID, types.ActionScopeAdd, "fencing", "fence-install", "",
		map[string]any{"scope_item": "Install gate hardware"}, base)

	if err := f.svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	seedEvent(t, f.db, userID, types.ActionScopeAdd, "fencing", "fence-install", "",
		map[string]any{"scope_item": "Install gate hardware"}, base.Add(30*time.Minute))
	if err := f.svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	patterns, err := f.scopeRepo.ListByTradeJobType(context.Background(), nil, "fencing", "fence-install")
	if err != nil {
		t.Fatalf("list patterns: %v", err)
	}
	if patterns[0].AddedCount != 2 {
		t.Fatalf("added = %d, want 2", patterns[0].AddedCount)
	}
}

func TestAggregation_ZipAggregateOverwrites(t *testing.T) {
	f := newAggFixture(t)
	userID := uuid.New()
	log := newTestLogger(t)
	repo := repos.NewPricingPatternRepo(f.db, log)
	base := time.Now().UTC().Add(-time.Hour)
	uid := userID
	rows := []*types.PricingPattern{
		{ID: uuid.New(), UserID: &uid, Trade: "plumbing", JobType: "toilet-install", JobSize: 2, Zip: "78704", AdjustmentPercent: 10, CreatedAt: base},
		{ID: uuid.New(), UserID: &uid, Trade: "plumbing", JobType: "toilet-install", JobSize: 2, Zip: "78704", AdjustmentPercent: 20, CreatedAt: base.Add(time.Minute)},
	}
	if err := repo.CreateEvents(context.Background(), nil, rows); err != nil {
		t.Fatalf("seed pricing events: %v", err)
	}

	if err := f.svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := f.svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	agg, err := f.priceRepo.ZipAggregate(context.Background(), nil, "78704", "plumbing", "toilet-install")
	if err != nil {
		t.Fatalf("read aggregate: %v", err)
	}
	if agg == nil {
		t.Fatalf("aggregate row missing")
	}
	// Re-running over the same window must overwrite, not accumulate.
	if agg.SampleCount != 2 {
		t.Fatalf("sample count = %d after rerun, want 2", agg.SampleCount)
	}
	if agg.AdjustmentPercent != 15 {
		t.Fatalf("adjustment = %v, want 15", agg.AdjustmentPercent)
	}
}

func TestAggregation_LearnedSuggestionsFromRawClientContext(t *testing.T) {
	f := newAggFixture(t)
	actions := newActionLogger(t, f.db)
	recs := newRecService(t, f.db)
	userID := uuid.New()

	// Clients send display strings, not slugs. The whole loop has to
	// agree on one key for the learned suggestion to surface.
	for i := 0; i < 5; i++ {
		actions.LogAction(authedCtx(userID), ActionInput{
			ActionType: types.ActionScopeAdd,
			Context:    ActionContext{Trade: "Plumbing", JobType: "Water Heater Install"},
			Payload:    map[string]any{"scope_item": "Expansion tank"},
		})
	}
	if err := f.svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got := recs.SuggestScopeItems(authedCtx(userID), RecommendationContext{Trade: "Plumbing", JobType: "Water Heater Install"}, nil)
	var learned *ScopeSuggestion
	for i := range got.Additions {
		if got.Additions[i].ScopeItem == "Expansion tank" && got.Additions[i].Source == "learned" {
			learned = &got.Additions[i]
			break
		}
	}
	if learned == nil {
		t.Fatalf("learned addition missing, got %+v", got.Additions)
	}
	if learned.Confidence != 90 {
		t.Fatalf("confidence = %d, want 90", learned.Confidence)
	}
	if !strings.Contains(learned.Reason, "100%") {
		t.Fatalf("reason = %q, want 100%% add rate language", learned.Reason)
	}
}

func TestAggregation_GeographicWinRate(t *testing.T) {
	f := newAggFixture(t)
	userID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		seedEvent(t, f.db, userID, types.ActionProposalWon, "plumbing", "toilet-install", "78704", nil, base.Add(time.Duration(i)*time.Minute))
	}
	seedEvent(t, f.db, userID, types.ActionProposalLost, "plumbing", "toilet-install", "78704", nil, base.Add(10*time.Minute))

	if err := f.svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	row, err := f.geoRepo.GetByKey(context.Background(), nil, types.GeoLevelZipcode, "78704", "plumbing", "", types.GeoPatternWinRate)
	if err != nil {
		t.Fatalf("read geo pattern: %v", err)
	}
	if row == nil {
		t.Fatalf("win rate pattern missing")
	}
	var value struct {
		WinRate float64 `json:"win_rate"`
	}
	if err := json.Unmarshal(row.PatternValue, &value); err != nil {
		t.Fatalf("unmarshal pattern value: %v", err)
	}
	if value.WinRate != 0.75 {
		t.Fatalf("win rate = %v, want 0.75", value.WinRate)
	}
	if row.SampleCount != 4 {
		t.Fatalf("sample count = %d, want 4", row.SampleCount)
	}
	// samples * 5
	if row.Confidence != 20 {
		t.Fatalf("confidence = %d, want 20", row.Confidence)
	}
}
