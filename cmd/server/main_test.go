package main

import (
	"context"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/repo"
)

func TestPurgeIdempotency(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:purge?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&domain.Idempotency{}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := repo.CreateIdempotency(ctx, db, "u1", "c1", "old", "r1", 200, -time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateIdempotency(ctx, db, "u1", "c1", "fresh", "r2", 200, time.Hour); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		purgeIdempotency(ctx, db, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		var n int64
		db.Model(&domain.Idempotency{}).Count(&n)
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expired key not purged, %d rows left", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("purge loop did not stop on cancel")
	}
}
