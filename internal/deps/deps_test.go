package deps

import (
	"strings"
	"testing"

	"voiceguard/internal/config"
)

func TestRequirementsFollowConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Recognition.Local.Enabled = false

	reqs := Requirements(cfg)
	if len(reqs) != 2 {
		t.Fatalf("got %d requirements", len(reqs))
	}

	cfg.Recognition.Local.Enabled = true
	reqs = Requirements(cfg)
	if len(reqs) != 3 {
		t.Fatalf("got %d requirements with local recognition", len(reqs))
	}
	last := reqs[len(reqs)-1]
	if !last.Optional {
		t.Fatal("local recognizer must be optional")
	}
}

func TestCheckBinaries(t *testing.T) {
	statuses := CheckBinaries([]Requirement{
		{Name: "shell", Command: "sh"},
		{Name: "phantom", Command: "voiceguard-no-such-binary"},
		{Name: "blank", Command: "  "},
	})

	if !statuses[0].Available {
		t.Fatalf("sh should resolve: %s", statuses[0].Detail)
	}
	if statuses[1].Available {
		t.Fatal("missing binary reported as available")
	}
	if !strings.Contains(statuses[1].Detail, "not found") {
		t.Fatalf("detail = %q", statuses[1].Detail)
	}
	if statuses[2].Available || statuses[2].Detail != "command not configured" {
		t.Fatalf("blank command status = %+v", statuses[2])
	}
}

func TestValidateNamesMissingRequired(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.CaptureCommand = "voiceguard-no-such-binary"
	cfg.Shutdown.Command = "sh"
	cfg.Recognition.Local.Enabled = true
	cfg.Recognition.Local.Command = "voiceguard-also-missing"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("missing capture binary must fail validation")
	}
	if !strings.Contains(err.Error(), "audio capture") {
		t.Fatalf("err = %v", err)
	}
	// Optional recognizer absence is not fatal.
	if strings.Contains(err.Error(), "local recognizer") {
		t.Fatalf("optional dependency must not be fatal: %v", err)
	}
}
