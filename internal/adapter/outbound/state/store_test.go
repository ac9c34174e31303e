package state

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestFileStateStore_LoadMissingReturnsDefault(t *testing.T) {
	s := NewFileStateStore(filepath.Join(t.TempDir(), "state.json"), testLogger())

	st, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if st.Version != "1" || len(st.Templates) != 0 || len(st.Versions) != 0 {
		t.Errorf("Load() default = %+v", st)
	}
	if s.Exists() {
		t.Error("Exists() = true before any save")
	}
}

func TestFileStateStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStateStore(path, testLogger())

	now := time.Now().UTC().Truncate(time.Second)
	st := s.DefaultState()
	st.Templates = []policy.Template{{
		ID:        "t-1",
		Domain:    policy.DomainChat,
		Name:      "global chat",
		ScopeType: policy.ScopeGlobal,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	st.Versions = []policy.Version{{
		ID:         "v-1",
		TemplateID: "t-1",
		Number:     1,
		Status:     policy.StatusDraft,
		Config:     policy.Config{"retention_days": float64(30)},
		CreatedBy:  "tester",
		CreatedAt:  now,
	}}

	if err := s.Save(st); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(loaded.Templates) != 1 || loaded.Templates[0].ID != "t-1" {
		t.Errorf("Load().Templates = %+v", loaded.Templates)
	}
	if len(loaded.Versions) != 1 || loaded.Versions[0].Number != 1 {
		t.Errorf("Load().Versions = %+v", loaded.Versions)
	}

	// Atomic save leaves no temp file behind.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Save() left a .tmp file behind")
	}
}

func TestFileStateStore_SaveCreatesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStateStore(path, testLogger())

	if err := s.Save(s.DefaultState()); err != nil {
		t.Fatalf("first Save() error: %v", err)
	}
	if err := s.Save(s.DefaultState()); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("expected backup file after second save: %v", err)
	}
}

func TestFileStateStore_LoadRejectsCorruptJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{broken"), 0600); err != nil {
		t.Fatal(err)
	}
	s := NewFileStateStore(path, testLogger())
	if _, err := s.Load(); err == nil {
		t.Error("Load() accepted corrupt JSON")
	}
}
