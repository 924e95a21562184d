package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestRepositoryConfig_WithDefaults(t *testing.T) {
	cfg := RepositoryConfig{}.WithDefaults()
	if cfg.PortBase != 3000 || cfg.PortIncrement != 10 {
		t.Errorf("unexpected defaults %+v", cfg)
	}

	cfg = RepositoryConfig{PortBase: 8000, PortIncrement: 2}.WithDefaults()
	if cfg.PortBase != 8000 || cfg.PortIncrement != 2 {
		t.Errorf("explicit values should be kept, got %+v", cfg)
	}
}

func TestRepositoryConfig_Merge(t *testing.T) {
	base := RepositoryConfig{
		SetupScript:   "setup.sh",
		PortBase:      3000,
		PortIncrement: 10,
		Env:           map[string]string{"A": "1", "B": "2"},
	}
	merged := base.Merge(RepositoryConfig{
		ArchiveScript: "archive.sh",
		PortBase:      4000,
		Env:           map[string]string{"B": "3", "C": "4"},
	})

	if merged.SetupScript != "setup.sh" {
		t.Errorf("SetupScript = %q", merged.SetupScript)
	}
	if merged.ArchiveScript != "archive.sh" {
		t.Errorf("ArchiveScript = %q", merged.ArchiveScript)
	}
	if merged.PortBase != 4000 || merged.PortIncrement != 10 {
		t.Errorf("unexpected ports %d/%d", merged.PortBase, merged.PortIncrement)
	}
	want := map[string]string{"A": "1", "B": "3", "C": "4"}
	for k, v := range want {
		if merged.Env[k] != v {
			t.Errorf("Env[%s] = %q, want %q", k, merged.Env[k], v)
		}
	}
	if base.Env["B"] != "2" {
		t.Error("Merge must not mutate the receiver's env map")
	}
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusCreating, StatusActive, StatusWaiting, StatusIdle, StatusError, StatusArchived} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if Status("running").Valid() {
		t.Error("unknown status should be invalid")
	}
}

func TestWorkspace_SetErrorAndTouch(t *testing.T) {
	ws := &Workspace{}
	ws.SetError(errors.New("tmux: no server running"))
	if ws.Metadata["error"] != "tmux: no server running" {
		t.Errorf("metadata = %v", ws.Metadata)
	}

	now := time.UnixMilli(1_700_000_000_123)
	ws.Touch(now)
	if ws.UpdatedAt != 1_700_000_000_123 || ws.LastActivityAt != 1_700_000_000_123 {
		t.Errorf("Touch did not set timestamps: %+v", ws)
	}
	if !ws.UpdatedAt.Time().Equal(now) {
		t.Errorf("Time() = %v, want %v", ws.UpdatedAt.Time(), now)
	}
}

func TestEvent_WireFormat(t *testing.T) {
	tests := []struct {
		name   string
		event  Event
		keys   []string
		absent []string
	}{
		{"output", OutputEvent("hello"), []string{"type", "data", "timestamp"}, []string{"status", "error", "workspaceId"}},
		{"status", StatusEvent(StatusIdle), []string{"type", "status", "timestamp"}, []string{"data", "error"}},
		{"error", ErrorEvent("boom"), []string{"type", "error", "timestamp"}, []string{"data", "status"}},
		{"connected", ConnectedEvent("ws-1"), []string{"type", "workspaceId", "timestamp"}, []string{"data", "status"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatal(err)
			}
			var fields map[string]any
			if err := json.Unmarshal(raw, &fields); err != nil {
				t.Fatal(err)
			}
			if fields["type"] != tt.name {
				t.Errorf("type = %v, want %s", fields["type"], tt.name)
			}
			for _, k := range tt.keys {
				if _, ok := fields[k]; !ok {
					t.Errorf("missing key %q in %s", k, raw)
				}
			}
			for _, k := range tt.absent {
				if _, ok := fields[k]; ok {
					t.Errorf("unexpected key %q in %s", k, raw)
				}
			}
		})
	}
}
