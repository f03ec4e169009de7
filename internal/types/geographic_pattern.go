package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	GeoLevelState        = "state"
	GeoLevelCity         = "city"
	GeoLevelZipcode      = "zipcode"
	GeoLevelNeighborhood = "neighborhood"
)

const (
	GeoPatternAvgPrice         = "avg_price"
	GeoPatternPriceMultiplier  = "price_multiplier"
	GeoPatternCommonScopeItems = "common_scope_items"
	GeoPatternCommonMaterials  = "common_materials"
	GeoPatternWinRate          = "win_rate"
	GeoPatternCommonOptions    = "common_options"
)

// GeographicPattern is recomputed wholesale each aggregation pass;
// the aggregator overwrites the row for a key rather than merging.
type GeographicPattern struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	GeoLevel     string         `gorm:"column:geo_level;not null;uniqueIndex:idx_geo_pattern_key" json:"geo_level"`
	GeoValue     string         `gorm:"column:geo_value;not null;uniqueIndex:idx_geo_pattern_key" json:"geo_value"`
	Trade        string         `gorm:"column:trade;uniqueIndex:idx_geo_pattern_key" json:"trade"`
	JobType      string         `gorm:"column:job_type;uniqueIndex:idx_geo_pattern_key" json:"job_type"`
	PatternType  string         `gorm:"column:pattern_type;not null;uniqueIndex:idx_geo_pattern_key" json:"pattern_type"`
	PatternValue datatypes.JSON `gorm:"type:jsonb;column:pattern_value" json:"pattern_value"`
	SampleCount  int            `gorm:"column:sample_count;not null;default:0" json:"sample_count"`
	Confidence   int            `gorm:"column:confidence;not null;default:0" json:"confidence"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
}

func (GeographicPattern) TableName() string { return "geographic_pattern" }
