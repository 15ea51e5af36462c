package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"voiceguard/internal/config"
)

// Requirement defines an external dependency VoiceGuard relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements derives the external binary list from the configuration.
func Requirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{
		{
			Name:        "audio capture",
			Command:     cfg.Audio.CaptureCommand,
			Description: "records microphone PCM for the helper",
		},
		{
			Name:        "shutdown",
			Command:     cfg.Shutdown.Command,
			Description: "performs the machine shutdown",
		},
	}
	if cfg.Recognition.Local.Enabled {
		reqs = append(reqs, Requirement{
			Name:        "local recognizer",
			Command:     cfg.Recognition.Local.Command,
			Description: "offline speech recognition engine",
			Optional:    true,
		})
	}
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Validate returns an error naming every missing required dependency.
func Validate(cfg *config.Config) error {
	var missing []string
	for _, status := range CheckBinaries(Requirements(cfg)) {
		if !status.Available && !status.Optional {
			missing = append(missing, fmt.Sprintf("%s (%s)", status.Name, status.Detail))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing dependencies: %s", strings.Join(missing, "; "))
	}
	return nil
}
