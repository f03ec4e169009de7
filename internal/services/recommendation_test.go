package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scopegen/scopegen-backend/internal/repos"
	"github.com/scopegen/scopegen-backend/internal/types"
)

func newRecService(t *testing.T, db *gorm.DB) RecommendationService {
	t.Helper()
	log := newTestLogger(t)
	return NewRecommendationService(
		db,
		log,
		repos.NewScopeItemPatternRepo(db, log),
		repos.NewPricingPatternRepo(db, log),
		repos.NewPhotoCategorizationRepo(db, log),
		repos.NewGeographicPatternRepo(db, log),
		nil,
		0,
	)
}

func seedPhotoRecords(t *testing.T, db *gorm.DB, userID uuid.UUID, trade, jobType string, position, count int, category string) {
	t.Helper()
	log := newTestLogger(t)
	repo := repos.NewPhotoCategorizationRepo(db, log)
	records := make([]*types.PhotoCategorizationRecord, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, &types.PhotoCategorizationRecord{
			ID:       uuid.New(),
			UserID:   userID,
			Trade:    trade,
			JobType:  jobType,
			Position: position,
			Category: category,
		})
	}
	if err := repo.Create(context.Background(), nil, records); err != nil {
		t.Fatalf("seed photo records: %v", err)
	}
}

func TestSuggestPhotoCategory_StaticDefaults(t *testing.T) {
	svc := newRecService(t, newTestDB(t))
	rctx := RecommendationContext{Trade: "plumbing", JobType: "toilet-install"}

	cases := []struct {
		position       int
		wantCategory   string
		wantConfidence int
	}{
		{1, "hero", 70},
		{2, "existing", 60},
		{3, "existing", 58},
		{6, "existing", 50},
		{7, "other", 40},
	}
	for _, c := range cases {
		got := svc.SuggestPhotoCategory(context.Background(), rctx, c.position)
		if got == nil {
			t.Fatalf("position %d: nil suggestion", c.position)
		}
		if got.Category != c.wantCategory || got.Confidence != c.wantConfidence {
			t.Fatalf("position %d: got %s@%d, want %s@%d", c.position, got.Category, got.Confidence, c.wantCategory, c.wantConfidence)
		}
	}
}

func TestSuggestPhotoCategory_OwnHistory(t *testing.T) {
	db := newTestDB(t)
	svc := newRecService(t, db)
	userID := uuid.New()
	seedPhotoRecords(t, db, userID, "plumbing", "toilet-install", 2, 4, "before")

	got := svc.SuggestPhotoCategory(authedCtx(userID), RecommendationContext{Trade: "plumbing", JobType: "toilet-install"}, 2)
	if got.Category != "before" {
		t.Fatalf("category = %q, want before", got.Category)
	}
	// 60 + 4*5
	if got.Confidence != 80 {
		t.Fatalf("confidence = %d, want 80", got.Confidence)
	}
}

func TestSuggestPhotoCategory_OwnHistoryBelowThreshold(t *testing.T) {
	db := newTestDB(t)
	svc := newRecService(t, db)
	userID := uuid.New()
	seedPhotoRecords(t, db, userID, "plumbing", "toilet-install", 2, 2, "before")

	got := svc.SuggestPhotoCategory(authedCtx(userID), RecommendationContext{Trade: "plumbing", JobType: "toilet-install"}, 2)
	if got.Category != "existing" || got.Confidence != 60 {
		t.Fatalf("expected static default existing@60, got %s@%d", got.Category, got.Confidence)
	}
}

func TestSuggestPhotoCategory_CrossUser(t *testing.T) {
	db := newTestDB(t)
	svc := newRecService(t, db)
	for i := 0; i < 12; i++ {
		seedPhotoRecords(t, db, uuid.New(), "plumbing", "toilet-install", 3, 1, "during")
	}

	got := svc.SuggestPhotoCategory(authedCtx(uuid.New()), RecommendationContext{Trade: "plumbing", JobType: "toilet-install"}, 3)
	if got.Category != "during" {
		t.Fatalf("category = %q, want during", got.Category)
	}
	// 50 + 12/5
	if got.Confidence != 52 {
		t.Fatalf("confidence = %d, want 52", got.Confidence)
	}
}

func seedScopePattern(t *testing.T, db *gorm.DB, trade, jobType, item string, added, removed, won, lost int) {
	t.Helper()
	row := &types.ScopeItemPattern{
		ID:           uuid.New(),
		Trade:        trade,
		JobType:      jobType,
		ScopeItem:    item,
		AddedCount:   added,
		RemovedCount: removed,
		WonCount:     won,
		LostCount:    lost,
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("seed scope pattern: %v", err)
	}
}

func TestSuggestScopeItems_LearnedAddition(t *testing.T) {
	db := newTestDB(t)
	svc := newRecService(t, db)
	// fence-install has no hand-authored knowledge so only learned
	// suggestions appear.
	seedScopePattern(t, db, "fencing", "fence-install", "Haul away old fencing", 5, 0, 0, 0)

	got := svc.SuggestScopeItems(context.Background(), RecommendationContext{Trade: "fencing", JobType: "fence-install"}, nil)
	if len(got.Additions) != 1 {
		t.Fatalf("additions = %d, want 1", len(got.Additions))
	}
	add := got.Additions[0]
	if add.ScopeItem != "Haul away old fencing" || add.Source != "learned" {
		t.Fatalf("unexpected addition: %+v", add)
	}
	// addRate 1.0 capped at 90
	if add.Confidence != 90 {
		t.Fatalf("confidence = %d, want 90", add.Confidence)
	}
	if !strings.Contains(add.Reason, "100%") {
		t.Fatalf("reason should cite the add rate, got %q", add.Reason)
	}
	if add.WinRateImpact != nil {
		t.Fatalf("win rate impact should be nil without both outcomes, got %d", *add.WinRateImpact)
	}
}

func TestSuggestScopeItems_AddRateFloorIsStrict(t *testing.T) {
	db := newTestDB(t)
	svc := newRecService(t, db)
	// 7 of 10 is exactly the floor and must not fire.
	seedScopePattern(t, db, "fencing", "fence-install", "Stain and seal", 7, 3, 0, 0)

	got := svc.SuggestScopeItems(context.Background(), RecommendationContext{Trade: "fencing", JobType: "fence-install"}, nil)
	if len(got.Additions) != 0 {
		t.Fatalf("expected no additions at the exact rate floor, got %+v", got.Additions)
	}
}

func TestSuggestScopeItems_AdditionJustAboveFloor(t *testing.T) {
	db := newTestDB(t)
	svc := newRecService(t, db)
	// 5 of 7 = 71.4%
	seedScopePattern(t, db, "fencing", "fence-install", "Set posts in concrete", 5, 2, 0, 0)

	got := svc.SuggestScopeItems(context.Background(), RecommendationContext{Trade: "fencing", JobType: "fence-install"}, nil)
	if len(got.Additions) != 1 {
		t.Fatalf("additions = %d, want 1", len(got.Additions))
	}
	if got.Additions[0].Confidence != 71 {
		t.Fatalf("confidence = %d, want 71", got.Additions[0].Confidence)
	}
}

func TestSuggestScopeItems_BelowMinimumSamples(t *testing.T) {
	db := newTestDB(t)
	svc := newRecService(t, db)
	seedScopePattern(t, db, "fencing", "fence-install", "Haul away old fencing", 4, 0, 0, 0)

	got := svc.SuggestScopeItems(context.Background(), RecommendationContext{Trade: "fencing", JobType: "fence-install"}, nil)
	if len(got.Additions) != 0 {
		t.Fatalf("4 samples is under the threshold, got %+v", got.Additions)
	}
}

func TestSuggestScopeItems_Removal(t *testing.T) {
	db := newTestDB(t)
	svc := newRecService(t, db)
	seedScopePattern(t, db, "fencing", "fence-install", "Paint both sides", 2, 3, 0, 0)

	current := []string{"Paint both sides"}
	got := svc.SuggestScopeItems(context.Background(), RecommendationContext{Trade: "fencing", JobType: "fence-install"}, current)
	if len(got.Removals) != 1 {
		t.Fatalf("removals = %d, want 1", len(got.Removals))
	}
	// removeRate 0.6, floor(60)
	if got.Removals[0].Confidence != 60 {
		t.Fatalf("confidence = %d, want 60", got.Removals[0].Confidence)
	}
}

func TestSuggestScopeItems_RemovalCapOrdersByRemovedCount(t *testing.T) {
	db := newTestDB(t)
	svc := newRecService(t, db)
	// Confidence order (b, c, d, a) differs from removed-count order
	// (a, c, b, d); the cap has to follow removed counts.
	seedScopePattern(t, db, "fencing", "fence-install", "item-a", 9, 10, 0, 0)
	seedScopePattern(t, db, "fencing", "fence-install", "item-b", 1, 4, 0, 0)
	seedScopePattern(t, db, "fencing", "fence-install", "item-c", 1, 5, 0, 0)
	seedScopePattern(t, db, "fencing", "fence-install", "item-d", 2, 3, 0, 0)

	current := []string{"item-a", "item-b", "item-c", "item-d"}
	got := svc.SuggestScopeItems(context.Background(), RecommendationContext{Trade: "fencing", JobType: "fence-install"}, current)
	if len(got.Removals) != 3 {
		t.Fatalf("removals = %d, want 3", len(got.Removals))
	}
	want := []string{"item-a", "item-c", "item-b"}
	for i, w := range want {
		if got.Removals[i].ScopeItem != w {
			t.Fatalf("removal %d = %q, want %q", i, got.Removals[i].ScopeItem, w)
		}
	}
}

func TestSuggestScopeItems_WinRateImpact(t *testing.T) {
	db := newTestDB(t)
	svc := newRecService(t, db)
	seedScopePattern(t, db, "fencing", "fence-install", "Haul away old fencing", 6, 0, 3, 1)

	got := svc.SuggestScopeItems(context.Background(), RecommendationContext{Trade: "fencing", JobType: "fence-install"}, nil)
	if len(got.Additions) != 1 || got.Additions[0].WinRateImpact == nil {
		t.Fatalf("expected one addition with win rate impact, got %+v", got.Additions)
	}
	// win rate 0.75 -> (0.75-0.5)*100
	if *got.Additions[0].WinRateImpact != 25 {
		t.Fatalf("win rate impact = %d, want 25", *got.Additions[0].WinRateImpact)
	}
}

func TestSuggestScopeItems_KnowledgeDefaults(t *testing.T) {
	svc := newRecService(t, newTestDB(t))

	got := svc.SuggestScopeItems(context.Background(), RecommendationContext{Trade: "plumbing", JobType: "water-heater-install"}, nil)
	found := false
	for _, add := range got.Additions {
		if add.ScopeItem == "Install expansion tank" {
			found = true
			if add.Source != "knowledge" {
				t.Fatalf("source = %q, want knowledge", add.Source)
			}
			// "typically" components carry 50
			if add.Confidence != 50 {
				t.Fatalf("confidence = %d, want 50", add.Confidence)
			}
		}
	}
	if !found {
		t.Fatalf("expansion tank not suggested: %+v", got.Additions)
	}
}

func TestSuggestScopeItems_KnowledgeSuppressedByCoverage(t *testing.T) {
	svc := newRecService(t, newTestDB(t))

	current := []string{"Install new expansion tank at cold inlet"}
	got := svc.SuggestScopeItems(context.Background(), RecommendationContext{Trade: "plumbing", JobType: "water-heater-install"}, current)
	for _, add := range got.Additions {
		if add.ScopeItem == "Install expansion tank" {
			t.Fatalf("covered component still suggested: %+v", add)
		}
	}
}

func TestSuggestScopeItems_ReadsAreIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := newRecService(t, db)
	seedScopePattern(t, db, "fencing", "fence-install", "Haul away old fencing", 5, 0, 0, 0)

	rctx := RecommendationContext{Trade: "fencing", JobType: "fence-install"}
	first := svc.SuggestScopeItems(context.Background(), rctx, nil)
	second := svc.SuggestScopeItems(context.Background(), rctx, nil)
	if len(first.Additions) != len(second.Additions) {
		t.Fatalf("repeated reads diverged: %d vs %d", len(first.Additions), len(second.Additions))
	}
	if first.Additions[0].Confidence != second.Additions[0].Confidence {
		t.Fatalf("repeated reads changed confidence")
	}
}

func seedPricingEvents(t *testing.T, db *gorm.DB, userID uuid.UUID, trade, jobType, zip string, jobSize, count int, adjustment float64) {
	t.Helper()
	log := newTestLogger(t)
	repo := repos.NewPricingPatternRepo(db, log)
	rows := make([]*types.PricingPattern, 0, count)
	for i := 0; i < count; i++ {
		uid := userID
		rows = append(rows, &types.PricingPattern{
			ID:                uuid.New(),
			UserID:            &uid,
			Trade:             trade,
			JobType:           jobType,
			JobSize:           jobSize,
			Zip:               zip,
			AdjustmentPercent: adjustment,
		})
	}
	if err := repo.CreateEvents(context.Background(), nil, rows); err != nil {
		t.Fatalf("seed pricing events: %v", err)
	}
}

func TestSuggestPricing_NoDataIsIdentity(t *testing.T) {
	svc := newRecService(t, newTestDB(t))

	got := svc.SuggestPricing(authedCtx(uuid.New()), RecommendationContext{Trade: "plumbing", JobType: "toilet-install", Zip: "78704"}, 400, 650, 2)
	if got.SuggestedLow != 400 || got.SuggestedHigh != 650 {
		t.Fatalf("band = %d-%d, want 400-650", got.SuggestedLow, got.SuggestedHigh)
	}
	if got.Confidence != 50 || got.AdjustmentPercent != 0 {
		t.Fatalf("expected neutral suggestion, got %+v", got)
	}
}

func TestSuggestPricing_OwnHistory(t *testing.T) {
	db := newTestDB(t)
	svc := newRecService(t, db)
	userID := uuid.New()
	seedPricingEvents(t, db, userID, "plumbing", "toilet-install", "78704", 2, 3, 10)

	got := svc.SuggestPricing(authedCtx(userID), RecommendationContext{Trade: "plumbing", JobType: "toilet-install", Zip: "78704"}, 1000, 2000, 2)
	if got.SuggestedLow != 1100 || got.SuggestedHigh != 2200 {
		t.Fatalf("band = %d-%d, want 1100-2200", got.SuggestedLow, got.SuggestedHigh)
	}
	// 60 + 3*3
	if got.Confidence != 69 {
		t.Fatalf("confidence = %d, want 69", got.Confidence)
	}
}

func TestSuggestPricing_OwnHistoryBelowThreshold(t *testing.T) {
	db := newTestDB(t)
	svc := newRecService(t, db)
	userID := uuid.New()
	seedPricingEvents(t, db, userID, "plumbing", "toilet-install", "", 2, 2, 25)

	got := svc.SuggestPricing(authedCtx(userID), RecommendationContext{Trade: "plumbing", JobType: "toilet-install"}, 1000, 2000, 2)
	if got.Confidence != 50 || got.AdjustmentPercent != 0 {
		t.Fatalf("2 samples should fall back to neutral, got %+v", got)
	}
}

func TestSuggestPricing_ZipAggregate(t *testing.T) {
	db := newTestDB(t)
	svc := newRecService(t, db)
	log := newTestLogger(t)
	repo := repos.NewPricingPatternRepo(db, log)
	if err := repo.UpsertZipAggregate(context.Background(), nil, "78704", "plumbing", "toilet-install", -10, 6); err != nil {
		t.Fatalf("seed zip aggregate: %v", err)
	}

	got := svc.SuggestPricing(authedCtx(uuid.New()), RecommendationContext{Trade: "plumbing", JobType: "toilet-install", Zip: "78704"}, 1000, 2000, 2)
	if got.SuggestedLow != 900 || got.SuggestedHigh != 1800 {
		t.Fatalf("band = %d-%d, want 900-1800", got.SuggestedLow, got.SuggestedHigh)
	}
	// 50 + 6/2
	if got.Confidence != 53 {
		t.Fatalf("confidence = %d, want 53", got.Confidence)
	}
}

func TestScaleBandRounds(t *testing.T) {
	if got := scaleBand(333, 10); got != 366 {
		t.Fatalf("scaleBand(333, 10) = %d, want 366", got)
	}
	if got := scaleBand(100, -10); got != 90 {
		t.Fatalf("scaleBand(100, -10) = %d, want 90", got)
	}
	if got := scaleBand(100, 0); got != 100 {
		t.Fatalf("scaleBand(100, 0) = %d, want 100", got)
	}
}
