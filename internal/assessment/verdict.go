package assessment

import "strings"

const (
	VerdictAccepted         = "Accepted"
	VerdictWrongAnswer      = "Wrong Answer"
	VerdictRuntimeError     = "Runtime Error"
	VerdictCompilationError = "Compilation Error"
)

// ExecutionOutcome is what a sandbox reports for a single run.
type ExecutionOutcome struct {
	Status        string
	Stdout        string
	Stderr        string
	CompileOutput string
	Message       string
}

// NormalizeOutput converts CRLF to LF and strips trailing whitespace.
func NormalizeOutput(s string) string {
	return strings.TrimRight(strings.ReplaceAll(s, "\r\n", "\n"), " \t\r\n\v\f")
}

// HardFailure reports whether the run failed regardless of its output.
func HardFailure(outcome ExecutionOutcome) bool {
	if strings.TrimSpace(outcome.CompileOutput) != "" || strings.TrimSpace(outcome.Stderr) != "" {
		return true
	}
	status := strings.ToLower(outcome.Status)
	return strings.Contains(status, "error") || strings.Contains(status, "time limit")
}

// DeriveVerdict compares normalized output with the expected output. Runs
// without an expectation keep the sandbox status. A hard failure is never
// Accepted when an expectation exists, even if the sandbox said so.
func DeriveVerdict(outcome ExecutionOutcome, expected string) string {
	want := NormalizeOutput(expected)
	if want == "" {
		return outcome.Status
	}
	if HardFailure(outcome) {
		return failureStatus(outcome)
	}
	if NormalizeOutput(outcome.Stdout) == want {
		return VerdictAccepted
	}
	return VerdictWrongAnswer
}

func failureStatus(outcome ExecutionOutcome) string {
	status := strings.TrimSpace(outcome.Status)
	if status != "" && !strings.EqualFold(status, VerdictAccepted) {
		return outcome.Status
	}
	if strings.TrimSpace(outcome.CompileOutput) != "" {
		return VerdictCompilationError
	}
	return VerdictRuntimeError
}
