package services

import (
  "context"
  "encoding/json"
  "fmt"
  "sort"
  "strconv"
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "github.com/scopegen/scopegen-backend/internal/clients/redis"
  "github.com/scopegen/scopegen-backend/internal/logger"
  "github.com/scopegen/scopegen-backend/internal/repos"
  "github.com/scopegen/scopegen-backend/internal/requestdata"
  "github.com/scopegen/scopegen-backend/internal/types"
)

// Adaptation thresholds: a profile starts silently applying learned
// defaults only after both are met.
const (
  adaptationMinDays    = 7
  adaptationMinActions = 10
)

// Profile is the document returned to clients. IsAdapted is derived on
// every read from FirstSeen and TotalActions, never persisted.
type Profile struct {
  UserID       uuid.UUID                `json:"user_id"`
  FirstSeen    time.Time                `json:"first_seen"`
  TotalActions int                      `json:"total_actions"`
  IsAdapted    bool                     `json:"is_adapted"`
  Preferences  types.LearnedPreferences `json:"preferences"`
}

// PreferencesService is the single authoritative store for per-user
// learned defaults. Clients read it through the cache; the aggregator
// refreshes it and invalidates.
type PreferencesService interface {
  GetProfile(ctx context.Context) (*Profile, error)
  RefreshUser(ctx context.Context, userID uuid.UUID) error
}

type preferencesService struct {
  db               *gorm.DB
  log              *logger.Logger
  userRepo         repos.UserRepo
  eventRepo        repos.UserActionEventRepo
  photoRepo        repos.PhotoCategorizationRepo
  prefsRepo        repos.LearnedPreferencesRepo
  cache            redis.Cache
  cacheTTL         time.Duration
  recentWindowDays int
}

func NewPreferencesService(
  db *gorm.DB,
  baseLog *logger.Logger,
  userRepo repos.UserRepo,
  eventRepo repos.UserActionEventRepo,
  photoRepo repos.PhotoCategorizationRepo,
  prefsRepo repos.LearnedPreferencesRepo,
  cache redis.Cache,
  cacheTTL time.Duration,
  recentWindowDays int,
) PreferencesService {
  if recentWindowDays <= 0 {
    recentWindowDays = 30
  }
  return &preferencesService{
    db:               db,
    log:              baseLog.With("service", "PreferencesService"),
    userRepo:         userRepo,
    eventRepo:        eventRepo,
    photoRepo:        photoRepo,
    prefsRepo:        prefsRepo,
    cache:            cache,
    cacheTTL:         cacheTTL,
    recentWindowDays: recentWindowDays,
  }
}

func profileCacheKey(userID uuid.UUID) string {
  return "prefs:" + userID.String()
}

func (s *preferencesService) GetProfile(ctx context.Context) (*Profile, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    return nil, fmt.Errorf("not authenticated")
  }

  var profile Profile
  if s.cache != nil {
    ok, err := s.cache.GetJSON(ctx, profileCacheKey(rd.UserID), &profile)
    if err != nil {
      s.log.Debug("Profile cache read failed, going to the database", "error", err)
    } else if ok {
      profile.IsAdapted = isAdapted(profile.FirstSeen, profile.TotalActions, time.Now().UTC())
      return &profile, nil
    }
  }

  users, err := s.userRepo.GetByIDs(ctx, nil, []uuid.UUID{rd.UserID})
  if err != nil {
    return nil, err
  }
  if len(users) == 0 || users[0] == nil {
    return nil, fmt.Errorf("user not found")
  }
  user := users[0]

  profile = Profile{
    UserID:    user.ID,
    FirstSeen: user.CreatedAt,
  }
  row, err := s.prefsRepo.GetByUserID(ctx, nil, rd.UserID)
  if err != nil {
    return nil, err
  }
  if row != nil {
    profile.TotalActions = row.TotalActions
    if len(row.Preferences) > 0 {
      if err := json.Unmarshal(row.Preferences, &profile.Preferences); err != nil {
        s.log.Warn("Stored preferences did not parse, serving empty tree", "user_id", rd.UserID.String(), "error", err)
        profile.Preferences = types.LearnedPreferences{}
      }
    }
  }

  if s.cache != nil {
    if err := s.cache.SetJSON(ctx, profileCacheKey(rd.UserID), &profile, s.cacheTTL); err != nil {
      s.log.Debug("Profile cache write failed, continuing", "error", err)
    }
  }

  profile.IsAdapted = isAdapted(profile.FirstSeen, profile.TotalActions, time.Now().UTC())
  return &profile, nil
}

func isAdapted(firstSeen time.Time, totalActions int, now time.Time) bool {
  if firstSeen.IsZero() {
    return false
  }
  return now.Sub(firstSeen) >= adaptationMinDays*24*time.Hour && totalActions >= adaptationMinActions
}

// RefreshUser recomputes the LearnedPreferences tree from the user's
// recent action history and overwrites the stored row.
func (s *preferencesService) RefreshUser(ctx context.Context, userID uuid.UUID) error {
  if userID == uuid.Nil {
    return nil
  }
  since := time.Now().UTC().AddDate(0, 0, -s.recentWindowDays)

  events, err := s.eventRepo.GetByUserID(ctx, nil, userID, since)
  if err != nil {
    return fmt.Errorf("list user events: %w", err)
  }
  photos, err := s.photoRepo.ListByUserSince(ctx, nil, userID, since)
  if err != nil {
    return fmt.Errorf("list photo records: %w", err)
  }
  totalActions, err := s.eventRepo.CountByUserID(ctx, nil, userID)
  if err != nil {
    return fmt.Errorf("count user actions: %w", err)
  }

  prefs := buildPreferences(events, photos)
  raw, err := json.Marshal(prefs)
  if err != nil {
    return err
  }
  if err := s.prefsRepo.Upsert(ctx, nil, userID, int(totalActions), datatypes.JSON(raw)); err != nil {
    return fmt.Errorf("upsert preferences: %w", err)
  }

  if s.cache != nil {
    if err := s.cache.Delete(ctx, profileCacheKey(userID)); err != nil {
      s.log.Debug("Profile cache invalidation failed", "user_id", userID.String(), "error", err)
    }
  }
  return nil
}

// buildPreferences distills one user's event window into the tree the
// clients consume. Thresholds are small on purpose: these are personal
// habits, not cross-user statistics.
func buildPreferences(events []*types.UserActionEvent, photos []*types.PhotoCategorizationRecord) types.LearnedPreferences {
  prefs := types.LearnedPreferences{}

  // Pricing: overall and grouped average adjustments.
  var adjSum float64
  var adjCount int
  adjByJobType := map[string][]float64{}
  adjByRegion := map[string][]float64{}

  // Scope: add/remove counts per (jobType, item).
  addCounts := map[string]map[string]int{}
  removeCounts := map[string]map[string]int{}

  // Workflow: activity per job type / area, photo and scope volume per proposal.
  jobTypeCounts := map[string]int{}
  areaCounts := map[string]int{}
  photosPerProposal := map[uuid.UUID]int{}
  scopePerProposal := map[uuid.UUID]int{}

  for _, ev := range events {
    if ev.JobType != "" {
      jobTypeCounts[ev.JobType]++
    }
    if ev.Zip != "" {
      areaCounts[ev.Zip]++
    }
    switch ev.ActionType {
    case types.ActionPriceAdjust:
      var p types.PriceAdjustPayload
      if err := json.Unmarshal(ev.Payload, &p); err != nil {
        continue
      }
      adj := AdjustmentPercent(p.SuggestedLow, p.SuggestedHigh, p.FinalLow, p.FinalHigh)
      adjSum += adj
      adjCount++
      if ev.JobType != "" {
        adjByJobType[ev.JobType] = append(adjByJobType[ev.JobType], adj)
      }
      if ev.Zip != "" {
        adjByRegion[ev.Zip] = append(adjByRegion[ev.Zip], adj)
      }
    case types.ActionScopeAdd, types.ActionScopeRemove:
      var p types.ScopeEditPayload
      if err := json.Unmarshal(ev.Payload, &p); err != nil || p.ScopeItem == "" || ev.JobType == "" {
        continue
      }
      target := addCounts
      if ev.ActionType == types.ActionScopeRemove {
        target = removeCounts
      }
      if target[ev.JobType] == nil {
        target[ev.JobType] = map[string]int{}
      }
      target[ev.JobType][p.ScopeItem]++
      if ev.ProposalID != nil && ev.ActionType == types.ActionScopeAdd {
        scopePerProposal[*ev.ProposalID]++
      }
    case types.ActionPhotoCategorize:
      if ev.ProposalID != nil {
        photosPerProposal[*ev.ProposalID]++
      }
    }
  }

  if adjCount > 0 {
    prefs.Pricing.DefaultAdjustmentPercent = adjSum / float64(adjCount)
  }
  prefs.Pricing.ByJobType = averageMap(adjByJobType)
  prefs.Pricing.ByRegion = averageMap(adjByRegion)

  prefs.Scope.AddByJobType = habitualItems(addCounts, removeCounts, 3)
  prefs.Scope.RemoveByJobType = habitualItems(removeCounts, addCounts, 3)
  prefs.Scope.AlwaysAdd = flattenHabits(prefs.Scope.AddByJobType)
  prefs.Scope.AlwaysRemove = flattenHabits(prefs.Scope.RemoveByJobType)

  prefs.Photos = photoHabits(photos)

  prefs.Workflow.CommonJobTypes = topKeys(jobTypeCounts, 3)
  prefs.Workflow.CommonAreas = topKeys(areaCounts, 3)
  prefs.Workflow.AvgPhotoCount = averagePerKey(photosPerProposal)
  prefs.Workflow.AvgScopeCount = averagePerKey(scopePerProposal)

  return prefs
}

func averageMap(in map[string][]float64) map[string]float64 {
  if len(in) == 0 {
    return nil
  }
  out := make(map[string]float64, len(in))
  for k, vals := range in {
    var sum float64
    for _, v := range vals {
      sum += v
    }
    out[k] = sum / float64(len(vals))
  }
  return out
}

// habitualItems keeps items the user did at least minCount times in
// one direction and never in the opposite one.
func habitualItems(counts, opposite map[string]map[string]int, minCount int) map[string][]string {
  out := map[string][]string{}
  for jobType, items := range counts {
    for item, count := range items {
      if count < minCount {
        continue
      }
      if opposite[jobType][item] > 0 {
        continue
      }
      out[jobType] = append(out[jobType], item)
    }
    sort.Strings(out[jobType])
  }
  if len(out) == 0 {
    return nil
  }
  return out
}

func flattenHabits(byJobType map[string][]string) []string {
  seen := map[string]bool{}
  var items []string
  for _, list := range byJobType {
    for _, item := range list {
      if !seen[item] {
        seen[item] = true
        items = append(items, item)
      }
    }
  }
  sort.Strings(items)
  return items
}

func photoHabits(photos []*types.PhotoCategorizationRecord) types.PhotoPreferences {
  prefs := types.PhotoPreferences{}
  byPosition := map[int]map[string]int{}
  captions := map[string][]string{}
  captionSeen := map[string]map[string]bool{}

  for _, p := range photos {
    if byPosition[p.Position] == nil {
      byPosition[p.Position] = map[string]int{}
    }
    byPosition[p.Position][p.Category]++
    if p.Caption != "" {
      if captionSeen[p.Category] == nil {
        captionSeen[p.Category] = map[string]bool{}
      }
      if !captionSeen[p.Category][p.Caption] && len(captions[p.Category]) < 5 {
        captionSeen[p.Category][p.Caption] = true
        captions[p.Category] = append(captions[p.Category], p.Caption)
      }
    }
  }

  for position, cats := range byPosition {
    best, bestCount := "", 0
    for cat, count := range cats {
      if count > bestCount || (count == bestCount && cat < best) {
        best, bestCount = cat, count
      }
    }
    if bestCount >= 2 {
      if prefs.CategoryByPosition == nil {
        prefs.CategoryByPosition = map[string]string{}
      }
      prefs.CategoryByPosition[strconv.Itoa(position)] = best
    }
  }
  if len(captions) > 0 {
    prefs.CaptionsByCategory = captions
  }
  return prefs
}

func topKeys(counts map[string]int, limit int) []string {
  type pair struct {
    key   string
    count int
  }
  pairs := make([]pair, 0, len(counts))
  for k, c := range counts {
    pairs = append(pairs, pair{key: k, count: c})
  }
  sort.Slice(pairs, func(i, j int) bool {
    if pairs[i].count != pairs[j].count {
      return pairs[i].count > pairs[j].count
    }
    return pairs[i].key < pairs[j].key
  })
  if len(pairs) > limit {
    pairs = pairs[:limit]
  }
  out := make([]string, 0, len(pairs))
  for _, p := range pairs {
    out = append(out, p.key)
  }
  return out
}

func averagePerKey(counts map[uuid.UUID]int) float64 {
  if len(counts) == 0 {
    return 0
  }
  total := 0
  for _, c := range counts {
    total += c
  }
  return float64(total) / float64(len(counts))
}
