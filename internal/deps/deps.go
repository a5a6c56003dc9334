package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names one external tool and the configured command used to
// invoke it: a bare name looked up on PATH or an explicit path.
type Requirement struct {
	Name    string
	Command string
	Purpose string
}

// Status is the outcome of resolving one Requirement. Path is the resolved
// executable when Available.
type Status struct {
	Name      string
	Command   string
	Purpose   string
	Path      string
	Available bool
	Detail    string
}

// CheckBinaries resolves every requirement; one missing tool does not stop
// the others from being checked.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, resolve(req))
	}
	return results
}

func resolve(req Requirement) Status {
	status := Status{
		Name:    req.Name,
		Command: strings.TrimSpace(req.Command),
		Purpose: strings.TrimSpace(req.Purpose),
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Path = path
	status.Available = true
	return status
}
