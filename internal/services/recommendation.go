package services

import (
  "context"
  "encoding/json"
  "fmt"
  "math"
  "sort"
  "strings"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/scopegen/scopegen-backend/internal/clients/redis"
  "github.com/scopegen/scopegen-backend/internal/knowledge"
  "github.com/scopegen/scopegen-backend/internal/logger"
  "github.com/scopegen/scopegen-backend/internal/repos"
  "github.com/scopegen/scopegen-backend/internal/requestdata"
  "github.com/scopegen/scopegen-backend/internal/types"
)

// RecommendationContext is the context object recommendation reads
// take: trade and job type slugs plus geographic tags.
type RecommendationContext struct {
  Trade   string `json:"trade"`
  JobType string `json:"job_type"`
  Zip     string `json:"zip"`
  City    string `json:"city"`
  State   string `json:"state"`
}

type PhotoCategorySuggestion struct {
  Category   string `json:"category"`
  Confidence int    `json:"confidence"`
  Reason     string `json:"reason"`
}

type ScopeSuggestion struct {
  ScopeItem     string `json:"scope_item"`
  Confidence    int    `json:"confidence"`
  Reason        string `json:"reason"`
  WinRateImpact *int   `json:"win_rate_impact,omitempty"`
  Source        string `json:"source"` // learned | knowledge
}

type ScopeSuggestions struct {
  Additions []ScopeSuggestion `json:"additions"`
  Removals  []ScopeSuggestion `json:"removals"`
}

type PricingSuggestion struct {
  SuggestedLow      int      `json:"suggested_low"`
  SuggestedHigh     int      `json:"suggested_high"`
  Confidence        int      `json:"confidence"`
  AdjustmentPercent float64  `json:"adjustment_percent"`
  Reason            string   `json:"reason"`
  LocalWinRate      *float64 `json:"local_win_rate,omitempty"`
}

// Thresholds and caps for the suggestion heuristics. The numbers are
// hand-tuned product behavior, not statistics; they must not drift.
const (
  photoOwnMinSamples   = 3
  photoCrossMinSamples = 10
  scopeMinTotal        = 5
  scopeAddMinCount     = 5
  scopeRemoveMinCount  = 3
  scopeAddRateFloor    = 0.7
  scopeRemoveRateFloor = 0.5
  pricingOwnMinSamples = 3
  pricingZipMinSamples = 5
  maxScopeAdditions    = 5
  maxScopeRemovals     = 3
)

const genericPricingReason = "Not enough pricing history yet, keeping the standard estimate range"

// RecommendationService is the read layer over the summary tables.
// Every operation fails open: a database error degrades to the static
// fallback (photo, pricing) or an empty result (scope), never to an
// error the UI would have to handle.
type RecommendationService interface {
  SuggestPhotoCategory(ctx context.Context, rctx RecommendationContext, position int) *PhotoCategorySuggestion
  SuggestScopeItems(ctx context.Context, rctx RecommendationContext, currentScope []string) *ScopeSuggestions
  SuggestPricing(ctx context.Context, rctx RecommendationContext, baseLow, baseHigh, jobSize int) *PricingSuggestion
  JobTypeKnowledge(jobType string) *knowledge.JobTypeKnowledge
}

type recommendationService struct {
  db        *gorm.DB
  log       *logger.Logger
  scopeRepo repos.ScopeItemPatternRepo
  priceRepo repos.PricingPatternRepo
  photoRepo repos.PhotoCategorizationRepo
  geoRepo   repos.GeographicPatternRepo
  cache     redis.Cache
  cacheTTL  time.Duration
}

func NewRecommendationService(
  db *gorm.DB,
  baseLog *logger.Logger,
  scopeRepo repos.ScopeItemPatternRepo,
  priceRepo repos.PricingPatternRepo,
  photoRepo repos.PhotoCategorizationRepo,
  geoRepo   repos.GeographicPatternRepo,
  cache redis.Cache,
  cacheTTL time.Duration,
) RecommendationService {
  return &recommendationService{
    db:        db,
    log:       baseLog.With("service", "RecommendationService"),
    scopeRepo: scopeRepo,
    priceRepo: priceRepo,
    photoRepo: photoRepo,
    geoRepo:   geoRepo,
    cache:     cache,
    cacheTTL:  cacheTTL,
  }
}

func (s *recommendationService) JobTypeKnowledge(jobType string) *knowledge.JobTypeKnowledge {
  return knowledge.Lookup(jobType)
}

// ---- photo ----

func (s *recommendationService) SuggestPhotoCategory(ctx context.Context, rctx RecommendationContext, position int) *PhotoCategorySuggestion {
  if position < 1 {
    position = 1
  }
  rctx = rctx.normalized()
  if rctx.Trade == "" || rctx.JobType == "" {
    return staticPhotoDefault(position)
  }

  userID := callerID(ctx)
  cacheKey := fmt.Sprintf("rec:photo:%s:%s:%s:%d", userID, rctx.Trade, rctx.JobType, position)
  var cached PhotoCategorySuggestion
  if s.cacheGet(ctx, cacheKey, &cached) {
    return &cached
  }

  result := s.photoCategory(ctx, rctx, userID, position)
  s.cacheSet(ctx, cacheKey, result)
  return result
}

func (s *recommendationService) photoCategory(ctx context.Context, rctx RecommendationContext, userID uuid.UUID, position int) *PhotoCategorySuggestion {
  if userID != uuid.Nil {
    own, err := s.photoRepo.TopCategoryAt(ctx, nil, &userID, rctx.Trade, rctx.JobType, position)
    if err != nil {
      s.log.Warn("Photo suggestion own-history read failed, degrading", "error", err)
      return staticPhotoDefault(position)
    }
    if own != nil && own.Count >= photoOwnMinSamples {
      return &PhotoCategorySuggestion{
        Category:   own.Category,
        Confidence: minInt(95, 60+int(own.Count)*5),
        Reason:     fmt.Sprintf("You usually file photo %d as %q on %s jobs", position, own.Category, rctx.JobType),
      }
    }
  }

  cross, err := s.photoRepo.TopCategoryAt(ctx, nil, nil, rctx.Trade, rctx.JobType, position)
  if err != nil {
    s.log.Warn("Photo suggestion cross-user read failed, degrading", "error", err)
    return staticPhotoDefault(position)
  }
  if cross != nil && cross.Count >= photoCrossMinSamples {
    return &PhotoCategorySuggestion{
      Category:   cross.Category,
      Confidence: minInt(85, 50+int(cross.Count)/5),
      Reason:     fmt.Sprintf("Contractors usually file photo %d as %q on %s jobs", position, cross.Category, rctx.JobType),
    }
  }

  return staticPhotoDefault(position)
}

// Static positional defaults, used before any learning data exists.
var photoDefaultConfidence = [5]int{60, 58, 55, 52, 50}

func staticPhotoDefault(position int) *PhotoCategorySuggestion {
  switch {
  case position == 1:
    return &PhotoCategorySuggestion{Category: "hero", Confidence: 70, Reason: "First photo is usually the hero shot"}
  case position >= 2 && position <= 6:
    return &PhotoCategorySuggestion{
      Category:   "existing",
      Confidence: photoDefaultConfidence[position-2],
      Reason:     "Early photos usually document existing conditions",
    }
  default:
    return &PhotoCategorySuggestion{Category: "other", Confidence: 40, Reason: "No positional pattern this deep in the upload"}
  }
}

// ---- scope ----

func (s *recommendationService) SuggestScopeItems(ctx context.Context, rctx RecommendationContext, currentScope []string) *ScopeSuggestions {
  rctx = rctx.normalized()
  empty := &ScopeSuggestions{Additions: []ScopeSuggestion{}, Removals: []ScopeSuggestion{}}
  if rctx.Trade == "" || rctx.JobType == "" {
    return empty
  }

  userID := callerID(ctx)
  cacheKey := fmt.Sprintf("rec:scope:%s:%s:%s:%s", userID, rctx.Trade, rctx.JobType, scopeFingerprint(currentScope))
  var cached ScopeSuggestions
  if s.cacheGet(ctx, cacheKey, &cached) {
    return &cached
  }

  patterns, err := s.scopeRepo.ListByTradeJobType(ctx, nil, rctx.Trade, rctx.JobType)
  if err != nil {
    s.log.Warn("Scope suggestion read failed, returning empty result", "error", err)
    return empty
  }

  present := make(map[string]bool, len(currentScope))
  for _, item := range currentScope {
    present[normalizeScopeItem(item)] = true
  }

  type removalCandidate struct {
    suggestion   ScopeSuggestion
    removedCount int
  }
  var removals []removalCandidate

  result := &ScopeSuggestions{Additions: []ScopeSuggestion{}, Removals: []ScopeSuggestion{}}
  for _, p := range patterns {
    total := p.AddedCount + p.RemovedCount
    if total < scopeMinTotal {
      continue
    }
    addRate := float64(p.AddedCount) / float64(total)
    removeRate := float64(p.RemovedCount) / float64(total)
    inScope := present[normalizeScopeItem(p.ScopeItem)]

    if !inScope && addRate > scopeAddRateFloor && p.AddedCount >= scopeAddMinCount {
      if len(result.Additions) < maxScopeAdditions {
        pct := int(math.Floor(addRate * 100))
        result.Additions = append(result.Additions, ScopeSuggestion{
          ScopeItem:     p.ScopeItem,
          Confidence:    minInt(90, pct),
          Reason:        fmt.Sprintf("Added on %d%% of recent %s proposals (%d of %d)", pct, rctx.JobType, p.AddedCount, total),
          WinRateImpact: winRateImpact(p.WonCount, p.LostCount),
          Source:        "learned",
        })
      }
      continue
    }
    if inScope && removeRate > scopeRemoveRateFloor && p.RemovedCount >= scopeRemoveMinCount {
      pct := int(math.Floor(removeRate * 100))
      removals = append(removals, removalCandidate{
        suggestion: ScopeSuggestion{
          ScopeItem:     p.ScopeItem,
          Confidence:    minInt(80, pct),
          Reason:        fmt.Sprintf("Removed on %d%% of recent %s proposals (%d of %d)", pct, rctx.JobType, p.RemovedCount, total),
          WinRateImpact: winRateImpact(p.WonCount, p.LostCount),
          Source:        "learned",
        },
        removedCount: p.RemovedCount,
      })
    }
  }

  // Most-removed first, matching the added_count ordering on the add side.
  sort.SliceStable(removals, func(i, j int) bool {
    if removals[i].removedCount != removals[j].removedCount {
      return removals[i].removedCount > removals[j].removedCount
    }
    return removals[i].suggestion.ScopeItem < removals[j].suggestion.ScopeItem
  })
  if len(removals) > maxScopeRemovals {
    removals = removals[:maxScopeRemovals]
  }
  for _, r := range removals {
    result.Removals = append(result.Removals, r.suggestion)
  }

  s.mergeKnowledgeAdditions(rctx.JobType, currentScope, result)

  s.cacheSet(ctx, cacheKey, result)
  return result
}

// mergeKnowledgeAdditions appends hand-authored defaults under the
// learned suggestions, skipping components the current scope already
// covers textually.
func (s *recommendationService) mergeKnowledgeAdditions(jobType string, currentScope []string, result *ScopeSuggestions) {
  k := knowledge.Lookup(jobType)
  if k == nil {
    return
  }
  scopeText := strings.ToLower(strings.Join(currentScope, "\n"))
  suggested := make(map[string]bool, len(result.Additions))
  for _, a := range result.Additions {
    suggested[normalizeScopeItem(a.ScopeItem)] = true
  }
  for _, comp := range k.RequiredComponents {
    if len(result.Additions) >= maxScopeAdditions {
      return
    }
    if !comp.DefaultInclude {
      continue
    }
    if suggested[normalizeScopeItem(comp.Name)] {
      continue
    }
    if coveredByScope(scopeText, comp) {
      continue
    }
    confidence := 50
    if comp.Inclusion == knowledge.IncludeAlways {
      confidence = 60
    }
    result.Additions = append(result.Additions, ScopeSuggestion{
      ScopeItem:  comp.Name,
      Confidence: confidence,
      Reason:     fmt.Sprintf("%s jobs %s include this", jobType, comp.Inclusion),
      Source:     "knowledge",
    })
  }
}

func coveredByScope(scopeText string, comp knowledge.Component) bool {
  if scopeText == "" {
    return false
  }
  if strings.Contains(scopeText, strings.ToLower(comp.Name)) {
    return true
  }
  for _, kw := range comp.CoveredBy {
    if strings.Contains(scopeText, strings.ToLower(kw)) {
      return true
    }
  }
  return false
}

func winRateImpact(won, lost int) *int {
  if won == 0 || lost == 0 {
    return nil
  }
  winRate := float64(won) / float64(won+lost)
  impact := int(math.Floor((winRate - 0.5) * 100))
  return &impact
}

// ---- pricing ----

func (s *recommendationService) SuggestPricing(ctx context.Context, rctx RecommendationContext, baseLow, baseHigh, jobSize int) *PricingSuggestion {
  rctx = rctx.normalized()
  if jobSize < 1 || jobSize > 3 {
    jobSize = 2
  }
  if rctx.Trade == "" || rctx.JobType == "" {
    return s.genericPricing(ctx, rctx, baseLow, baseHigh)
  }

  userID := callerID(ctx)
  cacheKey := fmt.Sprintf("rec:pricing:%s:%s:%s:%s:%d:%d:%d", userID, rctx.Trade, rctx.JobType, rctx.Zip, jobSize, baseLow, baseHigh)
  var cached PricingSuggestion
  if s.cacheGet(ctx, cacheKey, &cached) {
    return &cached
  }

  result := s.pricing(ctx, rctx, userID, baseLow, baseHigh, jobSize)
  s.cacheSet(ctx, cacheKey, result)
  return result
}

func (s *recommendationService) pricing(ctx context.Context, rctx RecommendationContext, userID uuid.UUID, baseLow, baseHigh, jobSize int) *PricingSuggestion {
  if userID != uuid.Nil {
    own, err := s.priceRepo.UserAverage(ctx, nil, userID, rctx.Trade, rctx.JobType, jobSize)
    if err != nil {
      s.log.Warn("Pricing suggestion own-history read failed, degrading", "error", err)
      return s.genericPricing(ctx, rctx, baseLow, baseHigh)
    }
    if own != nil && own.Count >= pricingOwnMinSamples {
      return s.adjustedPricing(ctx, rctx, baseLow, baseHigh, own.Avg,
        minInt(90, 60+int(own.Count)*3),
        fmt.Sprintf("You typically adjust %s estimates by %+.0f%% (%d past jobs)", rctx.JobType, own.Avg, own.Count))
    }
  }

  if rctx.Zip != "" {
    agg, err := s.priceRepo.ZipAggregate(ctx, nil, rctx.Zip, rctx.Trade, rctx.JobType)
    if err != nil {
      s.log.Warn("Pricing suggestion zip-aggregate read failed, degrading", "error", err)
      return s.genericPricing(ctx, rctx, baseLow, baseHigh)
    }
    if agg != nil && agg.SampleCount >= pricingZipMinSamples {
      return s.adjustedPricing(ctx, rctx, baseLow, baseHigh, agg.AdjustmentPercent,
        minInt(80, 50+agg.SampleCount/2),
        fmt.Sprintf("Local pricing in %s runs %+.0f%% against the standard range (%d jobs)", rctx.Zip, agg.AdjustmentPercent, agg.SampleCount))
    }
  }

  return s.genericPricing(ctx, rctx, baseLow, baseHigh)
}

func (s *recommendationService) genericPricing(ctx context.Context, rctx RecommendationContext, baseLow, baseHigh int) *PricingSuggestion {
  return &PricingSuggestion{
    SuggestedLow:      baseLow,
    SuggestedHigh:     baseHigh,
    Confidence:        50,
    AdjustmentPercent: 0,
    Reason:            genericPricingReason,
    LocalWinRate:      s.localWinRate(ctx, rctx),
  }
}

func (s *recommendationService) adjustedPricing(ctx context.Context, rctx RecommendationContext, baseLow, baseHigh int, adjustment float64, confidence int, reason string) *PricingSuggestion {
  return &PricingSuggestion{
    SuggestedLow:      scaleBand(baseLow, adjustment),
    SuggestedHigh:     scaleBand(baseHigh, adjustment),
    Confidence:        confidence,
    AdjustmentPercent: adjustment,
    Reason:            reason,
    LocalWinRate:      s.localWinRate(ctx, rctx),
  }
}

func scaleBand(base int, adjustmentPercent float64) int {
  return int(math.Round(float64(base) * (1 + adjustmentPercent/100)))
}

// localWinRate surfaces the zip-level win rate alongside the pricing
// suggestion. It feeds no further modeling.
func (s *recommendationService) localWinRate(ctx context.Context, rctx RecommendationContext) *float64 {
  if rctx.Zip == "" || rctx.Trade == "" {
    return nil
  }
  row, err := s.geoRepo.GetByKey(ctx, nil, types.GeoLevelZipcode, rctx.Zip, rctx.Trade, "", types.GeoPatternWinRate)
  if err != nil {
    s.log.Warn("Win rate read failed, omitting", "error", err)
    return nil
  }
  if row == nil || len(row.PatternValue) == 0 {
    return nil
  }
  var value struct {
    WinRate float64 `json:"win_rate"`
  }
  if err := json.Unmarshal(row.PatternValue, &value); err != nil {
    return nil
  }
  return &value.WinRate
}

// ---- shared helpers ----

func (r RecommendationContext) normalized() RecommendationContext {
  r.Trade = knowledge.Normalize(r.Trade)
  r.JobType = knowledge.Normalize(r.JobType)
  r.Zip = strings.TrimSpace(r.Zip)
  r.City = strings.TrimSpace(r.City)
  r.State = strings.TrimSpace(r.State)
  return r
}

func callerID(ctx context.Context) uuid.UUID {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil {
    return uuid.Nil
  }
  return rd.UserID
}

func normalizeScopeItem(item string) string {
  return strings.ToLower(strings.TrimSpace(item))
}

func scopeFingerprint(currentScope []string) string {
  items := make([]string, 0, len(currentScope))
  for _, item := range currentScope {
    items = append(items, normalizeScopeItem(item))
  }
  sort.Strings(items)
  return fmt.Sprintf("%x", len(items))+"-"+shortHash(strings.Join(items, "|"))
}

func shortHash(s string) string {
  var h uint64 = 14695981039346656037
  for i := 0; i < len(s); i++ {
    h ^= uint64(s[i])
    h *= 1099511628211
  }
  return fmt.Sprintf("%016x", h)
}

func (s *recommendationService) cacheGet(ctx context.Context, key string, dest any) bool {
  if s.cache == nil {
    return false
  }
  ok, err := s.cache.GetJSON(ctx, key, dest)
  if err != nil {
    s.log.Debug("Cache read failed, going to the database", "error", err)
    return false
  }
  return ok
}

func (s *recommendationService) cacheSet(ctx context.Context, key string, val any) {
  if s.cache == nil {
    return
  }
  if err := s.cache.SetJSON(ctx, key, val, s.cacheTTL); err != nil {
    s.log.Debug("Cache write failed, continuing", "error", err)
  }
}

func minInt(a, b int) int {
  if a < b {
    return a
  }
  return b
}
