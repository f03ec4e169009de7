package services

import (
  "context"
  "encoding/json"
  "fmt"
  "sort"
  "time"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "github.com/scopegen/scopegen-backend/internal/logger"
  "github.com/scopegen/scopegen-backend/internal/repos"
  "github.com/scopegen/scopegen-backend/internal/types"
)

const scopeWatermarkJob = "scope_patterns"

// AggregationService rolls the raw action log into the summary tables.
// The worker is the only background loop in the process; a failed pass
// is logged and skipped, never fatal, and partially applied passes are
// acceptable because every write is an upsert.
//
// Scope counters are increment-only, so that pass walks forward from a
// stored watermark and re-runs cannot double-count. The pricing and
// geographic passes overwrite their keys wholesale and need no
// watermark.
type AggregationService interface {
  StartWorker(ctx context.Context)
  RunOnce(ctx context.Context) error
}

type aggregationService struct {
  db            *gorm.DB
  log           *logger.Logger
  eventRepo     repos.UserActionEventRepo
  scopeRepo     repos.ScopeItemPatternRepo
  priceRepo     repos.PricingPatternRepo
  geoRepo       repos.GeographicPatternRepo
  watermarkRepo repos.AggregationWatermarkRepo
  prefs         PreferencesService

  // windowDays bounds the scope/pricing passes, recentWindowDays the
  // geographic and preference passes. The two are deliberately
  // independent knobs.
  windowDays       int
  recentWindowDays int
  interval         time.Duration
}

func NewAggregationService(
  db *gorm.DB,
  baseLog *logger.Logger,
  eventRepo repos.UserActionEventRepo,
  scopeRepo repos.ScopeItemPatternRepo,
  priceRepo repos.PricingPatternRepo,
  geoRepo repos.GeographicPatternRepo,
  watermarkRepo repos.AggregationWatermarkRepo,
  prefs PreferencesService,
  windowDays int,
  recentWindowDays int,
  interval time.Duration,
) AggregationService {
  if windowDays <= 0 {
    windowDays = 7
  }
  if recentWindowDays <= 0 {
    recentWindowDays = 30
  }
  if interval <= 0 {
    interval = time.Hour
  }
  return &aggregationService{
    db:               db,
    log:              baseLog.With("service", "AggregationService"),
    eventRepo:        eventRepo,
    scopeRepo:        scopeRepo,
    priceRepo:        priceRepo,
    geoRepo:          geoRepo,
    watermarkRepo:    watermarkRepo,
    prefs:            prefs,
    windowDays:       windowDays,
    recentWindowDays: recentWindowDays,
    interval:         interval,
  }
}

func (s *aggregationService) StartWorker(ctx context.Context) {
  go func() {
    ticker := time.NewTicker(s.interval)
    defer ticker.Stop()
    for {
      select {
      case <-ctx.Done():
        return
      case <-ticker.C:
        if err := s.RunOnce(ctx); err != nil {
          s.log.Error("Aggregation run finished with errors", "error", err)
        }
      }
    }
  }()
}

func (s *aggregationService) RunOnce(ctx context.Context) error {
  now := time.Now().UTC()
  var failed int

  if err := s.aggregateScopePatterns(ctx, now); err != nil {
    s.log.Error("Scope pattern pass failed", "error", err)
    failed++
  }
  if err := s.aggregatePricingPatterns(ctx, now); err != nil {
    s.log.Error("Pricing pattern pass failed", "error", err)
    failed++
  }
  if err := s.aggregateGeographicPatterns(ctx, now); err != nil {
    s.log.Error("Geographic pattern pass failed", "error", err)
    failed++
  }
  if err := s.refreshPreferences(ctx, now); err != nil {
    s.log.Error("Preference refresh pass failed", "error", err)
    failed++
  }

  if failed > 0 {
    return fmt.Errorf("%d of 4 aggregation passes failed", failed)
  }
  return nil
}

// ---- scope patterns ----

func (s *aggregationService) aggregateScopePatterns(ctx context.Context, now time.Time) error {
  since, err := s.watermarkRepo.Get(ctx, nil, scopeWatermarkJob)
  if err != nil {
    return fmt.Errorf("read watermark: %w", err)
  }
  windowStart := now.AddDate(0, 0, -s.windowDays)
  if since.Before(windowStart) {
    since = windowStart
  }

  events, err := s.eventRepo.ListWindow(ctx, nil, since, now, []string{
    types.ActionScopeAdd, types.ActionScopeRemove, types.ActionScopeEdit,
    types.ActionProposalWon, types.ActionProposalLost,
  })
  if err != nil {
    return fmt.Errorf("list events: %w", err)
  }
  if len(events) == 0 {
    return nil
  }

  type counts struct {
    added, removed, modified int
    fromTemplate             bool
  }
  grouped := map[repos.ScopePatternKey]*counts{}
  var lastEventAt time.Time

  for _, ev := range events {
    if ev.CreatedAt.After(lastEventAt) {
      lastEventAt = ev.CreatedAt
    }
    switch ev.ActionType {
    case types.ActionScopeAdd, types.ActionScopeRemove, types.ActionScopeEdit:
      item, fromTemplate := scopeItemFromPayload(ev.Payload)
      if item == "" || ev.Trade == "" || ev.JobType == "" {
        continue
      }
      key := repos.ScopePatternKey{Trade: ev.Trade, JobType: ev.JobType, ScopeItem: item}
      c := grouped[key]
      if c == nil {
        c = &counts{}
        grouped[key] = c
      }
      switch ev.ActionType {
      case types.ActionScopeAdd:
        c.added++
      case types.ActionScopeRemove:
        c.removed++
      case types.ActionScopeEdit:
        c.modified++
      }
      if fromTemplate {
        c.fromTemplate = true
      }
    case types.ActionProposalWon, types.ActionProposalLost:
      if err := s.rollProposalOutcome(ctx, ev); err != nil {
        s.log.Warn("Could not roll proposal outcome into scope patterns", "error", err)
      }
    }
  }

  for key, c := range grouped {
    if err := s.scopeRepo.IncrementCounts(ctx, nil, key, c.added, c.removed, c.modified, c.fromTemplate); err != nil {
      return fmt.Errorf("increment %q: %w", key.ScopeItem, err)
    }
  }

  if !lastEventAt.IsZero() {
    if err := s.watermarkRepo.Set(ctx, nil, scopeWatermarkJob, lastEventAt); err != nil {
      return fmt.Errorf("advance watermark: %w", err)
    }
  }
  return nil
}

// rollProposalOutcome increments won/lost counters for every scope
// item that was added on the closed proposal.
func (s *aggregationService) rollProposalOutcome(ctx context.Context, ev *types.UserActionEvent) error {
  if ev.ProposalID == nil {
    return nil
  }
  adds, err := s.eventRepo.ListByProposalID(ctx, nil, *ev.ProposalID, []string{types.ActionScopeAdd})
  if err != nil {
    return err
  }
  won, lost := 0, 0
  if ev.ActionType == types.ActionProposalWon {
    won = 1
  } else {
    lost = 1
  }
  seen := map[string]bool{}
  for _, add := range adds {
    item, _ := scopeItemFromPayload(add.Payload)
    if item == "" || seen[item] {
      continue
    }
    seen[item] = true
    key := repos.ScopePatternKey{Trade: add.Trade, JobType: add.JobType, ScopeItem: item}
    if err := s.scopeRepo.IncrementOutcomes(ctx, nil, key, won, lost); err != nil {
      return err
    }
  }
  return nil
}

func scopeItemFromPayload(payload datatypes.JSON) (string, bool) {
  if len(payload) == 0 {
    return "", false
  }
  var p types.ScopeEditPayload
  if err := json.Unmarshal(payload, &p); err != nil {
    return "", false
  }
  return p.ScopeItem, p.FromTemplate
}

// ---- pricing patterns ----

func (s *aggregationService) aggregatePricingPatterns(ctx context.Context, now time.Time) error {
  since := now.AddDate(0, 0, -s.windowDays)
  rows, err := s.priceRepo.ListEventsWindow(ctx, nil, since, now)
  if err != nil {
    return fmt.Errorf("list pricing events: %w", err)
  }

  type zipKey struct{ zip, trade, jobType string }
  sums := map[zipKey]float64{}
  counts := map[zipKey]int{}
  for _, row := range rows {
    if row.Zip == "" || row.Trade == "" || row.JobType == "" {
      continue
    }
    key := zipKey{zip: row.Zip, trade: row.Trade, jobType: row.JobType}
    sums[key] += row.AdjustmentPercent
    counts[key]++
  }

  for key, count := range counts {
    avg := sums[key] / float64(count)
    if err := s.priceRepo.UpsertZipAggregate(ctx, nil, key.zip, key.trade, key.jobType, avg, count); err != nil {
      return fmt.Errorf("upsert zip aggregate %s/%s: %w", key.zip, key.trade, err)
    }
  }
  return nil
}

// ---- geographic patterns ----

func (s *aggregationService) aggregateGeographicPatterns(ctx context.Context, now time.Time) error {
  since := now.AddDate(0, 0, -s.recentWindowDays)
  events, err := s.eventRepo.ListWindow(ctx, nil, since, now, []string{
    types.ActionProposalWon, types.ActionProposalLost,
    types.ActionPriceAdjust, types.ActionScopeAdd,
  })
  if err != nil {
    return fmt.Errorf("list events: %w", err)
  }

  type geoKey struct{ level, value, trade string }
  wins := map[geoKey]int{}
  losses := map[geoKey]int{}
  priceSums := map[geoKey]float64{}
  priceCounts := map[geoKey]int{}
  scopeItems := map[geoKey]map[string]int{}

  for _, ev := range events {
    for _, gk := range geoKeysFor(ev) {
      switch ev.ActionType {
      case types.ActionProposalWon:
        wins[gk]++
      case types.ActionProposalLost:
        losses[gk]++
      case types.ActionPriceAdjust:
        var p types.PriceAdjustPayload
        if err := json.Unmarshal(ev.Payload, &p); err == nil && p.FinalLow+p.FinalHigh > 0 {
          priceSums[gk] += float64(p.FinalLow+p.FinalHigh) / 2
          priceCounts[gk]++
        }
      case types.ActionScopeAdd:
        item, _ := scopeItemFromPayload(ev.Payload)
        if item == "" {
          continue
        }
        if scopeItems[gk] == nil {
          scopeItems[gk] = map[string]int{}
        }
        scopeItems[gk][item]++
      }
    }
  }

  for gk, w := range wins {
    total := w + losses[gk]
    if total == 0 {
      continue
    }
    value := map[string]any{"win_rate": float64(w) / float64(total)}
    if err := s.replaceGeo(ctx, gk.level, gk.value, gk.trade, types.GeoPatternWinRate, value, total); err != nil {
      return err
    }
  }
  for gk, lossCount := range losses {
    if wins[gk] > 0 {
      continue // already written above
    }
    value := map[string]any{"win_rate": 0.0}
    if err := s.replaceGeo(ctx, gk.level, gk.value, gk.trade, types.GeoPatternWinRate, value, lossCount); err != nil {
      return err
    }
  }
  for gk, count := range priceCounts {
    value := map[string]any{"avg_price": priceSums[gk] / float64(count)}
    if err := s.replaceGeo(ctx, gk.level, gk.value, gk.trade, types.GeoPatternAvgPrice, value, count); err != nil {
      return err
    }
  }
  for gk, items := range scopeItems {
    top, samples := topScopeItems(items, 5)
    value := map[string]any{"items": top}
    if err := s.replaceGeo(ctx, gk.level, gk.value, gk.trade, types.GeoPatternCommonScopeItems, value, samples); err != nil {
      return err
    }
  }
  return nil
}

func (s *aggregationService) replaceGeo(ctx context.Context, level, value, trade, patternType string, patternValue map[string]any, samples int) error {
  raw, err := json.Marshal(patternValue)
  if err != nil {
    return err
  }
  return s.geoRepo.Replace(ctx, nil, &types.GeographicPattern{
    GeoLevel:     level,
    GeoValue:     value,
    Trade:        trade,
    PatternType:  patternType,
    PatternValue: datatypes.JSON(raw),
    SampleCount:  samples,
    Confidence:   minInt(100, samples*5),
  })
}

func geoKeysFor(ev *types.UserActionEvent) []struct{ level, value, trade string } {
  var keys []struct{ level, value, trade string }
  if ev.Trade == "" {
    return keys
  }
  if ev.Zip != "" {
    keys = append(keys, struct{ level, value, trade string }{types.GeoLevelZipcode, ev.Zip, ev.Trade})
  }
  if ev.City != "" {
    keys = append(keys, struct{ level, value, trade string }{types.GeoLevelCity, ev.City, ev.Trade})
  }
  if ev.State != "" {
    keys = append(keys, struct{ level, value, trade string }{types.GeoLevelState, ev.State, ev.Trade})
  }
  if ev.Neighborhood != "" {
    keys = append(keys, struct{ level, value, trade string }{types.GeoLevelNeighborhood, ev.Neighborhood, ev.Trade})
  }
  return keys
}

func topScopeItems(items map[string]int, limit int) ([]string, int) {
  type pair struct {
    item  string
    count int
  }
  pairs := make([]pair, 0, len(items))
  samples := 0
  for item, count := range items {
    pairs = append(pairs, pair{item: item, count: count})
    samples += count
  }
  sort.Slice(pairs, func(i, j int) bool {
    if pairs[i].count != pairs[j].count {
      return pairs[i].count > pairs[j].count
    }
    return pairs[i].item < pairs[j].item
  })
  if len(pairs) > limit {
    pairs = pairs[:limit]
  }
  out := make([]string, 0, len(pairs))
  for _, p := range pairs {
    out = append(out, p.item)
  }
  return out, samples
}

// ---- learned preferences ----

func (s *aggregationService) refreshPreferences(ctx context.Context, now time.Time) error {
  since := now.AddDate(0, 0, -s.recentWindowDays)
  ids, err := s.eventRepo.ActiveUserIDs(ctx, nil, since)
  if err != nil {
    return fmt.Errorf("list active users: %w", err)
  }
  for _, id := range ids {
    if err := s.prefs.RefreshUser(ctx, id); err != nil {
      s.log.Warn("Preference refresh failed for user", "user_id", id.String(), "error", err)
    }
  }
  return nil
}
