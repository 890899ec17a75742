package db

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/semaphore/internal/config"
	"github.com/zulandar/semaphore/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		host     string
		port     int
		database string
		want     string
	}{
		{
			name:     "default local",
			user:     "root",
			host:     "127.0.0.1",
			port:     3306,
			database: "jobs",
			want:     "root@tcp(127.0.0.1:3306)/jobs?parseTime=true",
		},
		{
			name:     "custom host and port",
			user:     "semaphore",
			host:     "db.vpc.internal",
			port:     3307,
			database: "rq",
			want:     "semaphore@tcp(db.vpc.internal:3307)/rq?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.user, tt.host, tt.port, tt.database)
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "postgres"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), `unsupported driver "postgres"`) {
		t.Errorf("error = %q, want unsupported driver", err.Error())
	}
}

func TestOpen_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	gdb, err := Open(config.DatabaseConfig{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	if !gdb.Migrator().HasTable(&models.Worker{}) {
		t.Error("workers table was not created")
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 1 {
		t.Errorf("AllModels() returned %d models, want 1", got)
	}
}

func TestUpsertWorker_InsertThenUpdate(t *testing.T) {
	gdb := testDB(t)
	hb := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	w := &models.Worker{Name: "w1", Hostname: "h1", Queues: "default", State: "busy", SuccessfulJobs: 3, LastHeartbeat: hb}
	if err := UpsertWorker(gdb, w); err != nil {
		t.Fatalf("insert: %v", err)
	}

	w2 := &models.Worker{Name: "w1", Hostname: "h1", Queues: "default", State: "idle", SuccessfulJobs: 4, LastHeartbeat: hb.Add(time.Minute)}
	if err := UpsertWorker(gdb, w2); err != nil {
		t.Fatalf("update: %v", err)
	}

	var rows []models.Worker
	if err := gdb.Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].State != "idle" || rows[0].SuccessfulJobs != 4 {
		t.Errorf("row = %+v, want state idle and 4 successful jobs", rows[0])
	}
}

func TestUpsertWorker_RequiresName(t *testing.T) {
	if err := UpsertWorker(testDB(t), &models.Worker{}); err == nil {
		t.Fatal("expected error for empty name")
	}
}
