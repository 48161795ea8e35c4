package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"recap/internal/media/command"
)

// Requirement defines an external program recap relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// VersionArgs, when set, are run to capture a version line.
	VersionArgs []string
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string
	Command     string
	Path        string
	Description string
	Optional    bool
	Available   bool
	Version     string
	Detail      string
}

// Satisfied reports whether the requirement is present or optional.
func (s Status) Satisfied() bool { return s.Available || s.Optional }

const versionTimeout = 5 * time.Second

// CheckBinaries resolves each requirement on PATH and, where asked, captures
// its version line through run.
func CheckBinaries(ctx context.Context, run command.Runner, requirements []Requirement) []Status {
	run = command.Or(run)
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
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Path = resolved
		status.Available = true
		if len(req.VersionArgs) > 0 {
			status.Version = version(ctx, run, resolved, req.VersionArgs)
		}
		results = append(results, status)
	}
	return results
}

func version(ctx context.Context, run command.Runner, binary string, args []string) string {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := run(ctx, binary, args...)
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line)
}

// Missing returns the required statuses that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Satisfied() {
			missing = append(missing, s)
		}
	}
	return missing
}
