package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/scopegen/scopegen-backend/internal/logger"
	"github.com/scopegen/scopegen-backend/internal/requestdata"
	"github.com/scopegen/scopegen-backend/internal/types"
)

// newTestDB opens a fresh in-memory sqlite database migrated with the
// learning pipeline tables. Each test gets its own named database so
// parallel tests never share state.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&types.User{},
		&types.UserToken{},
		&types.UserActionEvent{},
		&types.ScopeItemPattern{},
		&types.PricingPattern{},
		&types.GeographicPattern{},
		&types.PhotoCategorizationRecord{},
		&types.UserLearnedPreferences{},
		&types.Proposal{},
		&types.DraftRun{},
		&types.AggregationWatermark{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func authedCtx(userID uuid.UUID) context.Context {
	return requestdata.WithRequestData(context.Background(), &requestdata.RequestData{UserID: userID})
}

func mustJSON(t *testing.T, v any) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return datatypes.JSON(raw)
}
