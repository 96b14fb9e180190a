package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/repo"
	"github.com/tbourn/callqa-backend/internal/utils"
)

// dateParserProbe is parsed on every health check.
const dateParserProbe = "16.09.2025 11:13"

// DateParserCheck reports the date parser self-test.
type DateParserCheck struct {
	TestInput  string     `json:"testInput"`
	TestOutput *time.Time `json:"testOutput"`
	Working    bool       `json:"working"`
}

// Health is the result of a health check.
type Health struct {
	Status     string                        `json:"status"`
	Timestamp  time.Time                     `json:"timestamp"`
	Database   string                        `json:"database"`
	Version    string                        `json:"version,omitempty"`
	DateParser *DateParserCheck              `json:"dateParser,omitempty"`
	Reviews    map[domain.ReviewStatus]int64 `json:"reviews,omitempty"`
	Error      string                        `json:"error,omitempty"`
}

// Healthy reports whether the check passed.
func (h *Health) Healthy() bool { return h.Status == "healthy" }

// HealthService checks the database and the date parser.
type HealthService struct {
	DB       *gorm.DB
	Version  string
	Location *time.Location
	Now      Clock
}

// Check pings the database, runs the date parser on a fixed input and
// reports review counts by status.
func (s *HealthService) Check(ctx context.Context) *Health {
	now := s.Now.now()
	unhealthy := &Health{
		Status:    "unhealthy",
		Timestamp: now,
		Database:  "disconnected",
		Error:     "Database connection failed",
	}

	sqlDB, err := s.DB.DB()
	if err != nil {
		return unhealthy
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unhealthy
	}
	reviews, err := repo.CountReviewsByStatus(ctx, s.DB)
	if err != nil {
		return unhealthy
	}

	probe := &DateParserCheck{TestInput: dateParserProbe}
	if t, ok := utils.ParseRussianDate(dateParserProbe, s.Location); ok {
		t = t.UTC()
		probe.TestOutput = &t
		probe.Working = true
	}
	return &Health{
		Status:     "healthy",
		Timestamp:  now,
		Database:   "connected",
		Version:    s.Version,
		DateParser: probe,
		Reviews:    reviews,
	}
}
