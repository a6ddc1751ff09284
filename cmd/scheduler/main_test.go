package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/example/autoscaler-scheduler/internal/config"
)

var referenceNow = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

func newTestApp(t *testing.T, fs afero.Fs) (*app, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := config.Default()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "scheduler.db")
	return &app{
		stdout:     &out,
		stderr:     &bytes.Buffer{},
		fs:         fs,
		now:        func() time.Time { return referenceNow },
		loadConfig: func() (config.Config, error) { return cfg, nil },
	}, &out
}

func execute(a *app, args ...string) error {
	root := a.rootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func writePolicy(t *testing.T, fs afero.Fs, name, body string) {
	t.Helper()
	if err := afero.WriteFile(fs, name, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestValidateCommand(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writePolicy(t, fs, "/valid.json", `{"timezone":"UTC","specific_schedule":[{"start_date_time":"2024-01-02T16:05","end_date_time":"2024-01-02T17:05","instance_min_count":1,"instance_max_count":2}]}`)
	writePolicy(t, fs, "/dup.json", `{"timezone":"UTC","recurring_schedule":[{"start_time":"09:00","end_time":"10:00","day_of_week":[1,2,2],"instance_min_count":1,"instance_max_count":2}]}`)
	writePolicy(t, fs, "/broken.json", `{"timezone":`)

	t.Run("valid policy", func(t *testing.T) {
		t.Parallel()
		a, out := newTestApp(t, fs)
		if err := execute(a, "validate", "--file", "/valid.json", "--app-id", "app-1"); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if !strings.HasPrefix(out.String(), "app-1: policy is valid") {
			t.Fatalf("unexpected output %q", out.String())
		}
	})

	t.Run("rejected policy exits 1", func(t *testing.T) {
		t.Parallel()
		a, out := newTestApp(t, fs)
		err := execute(a, "validate", "--file", "/dup.json", "--app-id", "app-1")
		var exit exitError
		if !errors.As(err, &exit) || exit.code != 1 {
			t.Fatalf("expected exit status 1, got %v", err)
		}
		if got := strings.TrimSpace(out.String()); got != "recurring_schedule 0 day_of_week values must be unique" {
			t.Fatalf("unexpected output %q", got)
		}
	})

	t.Run("messages in japanese", func(t *testing.T) {
		t.Parallel()
		a, out := newTestApp(t, fs)
		_ = execute(a, "validate", "--file", "/dup.json", "--app-id", "app-1", "--lang", "ja")
		if got := strings.TrimSpace(out.String()); got != "recurring_schedule 0 の day_of_week に重複した値があります" {
			t.Fatalf("unexpected output %q", got)
		}
	})

	t.Run("malformed document", func(t *testing.T) {
		t.Parallel()
		a, out := newTestApp(t, fs)
		err := execute(a, "validate", "--file", "/broken.json", "--app-id", "app-1")
		if !errors.As(err, new(exitError)) {
			t.Fatalf("expected exit error, got %v", err)
		}
		if !strings.Contains(out.String(), "Request body is not valid JSON") {
			t.Fatalf("unexpected output %q", out.String())
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		a, _ := newTestApp(t, fs)
		err := execute(a, "validate", "--file", "/nope.json", "--app-id", "app-1")
		if err == nil || errors.As(err, new(exitError)) {
			t.Fatalf("expected open error, got %v", err)
		}
	})

	t.Run("requires app id", func(t *testing.T) {
		t.Parallel()
		a, _ := newTestApp(t, fs)
		if err := execute(a, "validate", "--file", "/valid.json"); err == nil {
			t.Fatal("expected missing flag error")
		}
	})
}

func TestMigrateCommand(t *testing.T) {
	t.Parallel()

	t.Run("embedded migrations apply once", func(t *testing.T) {
		t.Parallel()
		a, out := newTestApp(t, afero.NewMemMapFs())
		if err := execute(a, "migrate"); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		if !strings.HasPrefix(out.String(), "applied 1 migration(s)") {
			t.Fatalf("unexpected output %q", out.String())
		}

		out.Reset()
		if err := execute(a, "migrate"); err != nil {
			t.Fatalf("second migrate: %v", err)
		}
		if !strings.HasPrefix(out.String(), "applied 0 migration(s)") {
			t.Fatalf("expected nothing pending, got %q", out.String())
		}

		out.Reset()
		if err := execute(a, "migrate", "--status"); err != nil {
			t.Fatalf("status: %v", err)
		}
		if !strings.Contains(out.String(), "current version: 001") || !strings.Contains(out.String(), "pending: 0") {
			t.Fatalf("unexpected status %q", out.String())
		}
	})

	t.Run("custom directory", func(t *testing.T) {
		t.Parallel()
		fs := afero.NewMemMapFs()
		writePolicy(t, fs, "/migrations/001_probe.sql", "-- Description: probe table\nCREATE TABLE IF NOT EXISTS probe (id INTEGER PRIMARY KEY);\n")
		writePolicy(t, fs, "/migrations/002_probe_name.sql", "-- Description: probe name\nALTER TABLE probe ADD COLUMN name TEXT;\n")
		a, out := newTestApp(t, fs)

		if err := execute(a, "migrate", "--dir", "/migrations", "--status"); err != nil {
			t.Fatalf("status: %v", err)
		}
		if !strings.Contains(out.String(), "current version: none") || !strings.Contains(out.String(), "pending: 2") {
			t.Fatalf("unexpected status %q", out.String())
		}

		out.Reset()
		if err := execute(a, "migrate", "--dir", "/migrations"); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		if !strings.HasPrefix(out.String(), "applied 2 migration(s)") {
			t.Fatalf("unexpected output %q", out.String())
		}
	})
}

func TestServeFailsOnConfiguration(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t, afero.NewMemMapFs())
	a.loadConfig = func() (config.Config, error) { return config.Config{}, errors.New("bad config") }
	if err := execute(a, "serve"); err == nil || err.Error() != "bad config" {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
