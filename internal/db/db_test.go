package db

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/tonelist/internal/config"
	"github.com/friendsincode/tonelist/internal/models"
)

func TestOpenSQLiteMigratesQueues(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "tonelist.db")
	database, err := Open(config.DatabaseSQLite, dsn, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer Close(database)

	if !database.Migrator().HasTable(&models.QueueRecord{}) {
		t.Fatal("expected queues table after migration")
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	if _, err := Open("oracle", "", zerolog.Nop()); err == nil {
		t.Fatal("expected unknown backend to fail")
	}
}
