package engine

import "fmt"

// Severity orders diagnostic conditions from least to most severe. The
// ordering is total: a stop policy compares severities directly.
type Severity int

const (
	SeverityInformation Severity = iota
	SeverityWarning
	SeverityRecoverableError
	SeverityFatalError
)

// String returns the display name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInformation:
		return "Information"
	case SeverityWarning:
		return "Warning"
	case SeverityRecoverableError:
		return "Recoverable Error"
	case SeverityFatalError:
		return "Fatal Error"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ParseSeverity maps a configuration keyword to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "information", "info":
		return SeverityInformation, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "error":
		return SeverityRecoverableError, nil
	case "fatal":
		return SeverityFatalError, nil
	default:
		return 0, fmt.Errorf("unknown severity %q (want information, warning, error, or fatal)", s)
	}
}
