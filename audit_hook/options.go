package audithook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithActions limits the extension to the given actions. Names that are not
// in AllActions are dropped.
func WithActions(actions ...string) Option {
	known := make(map[string]bool)
	for _, a := range AllActions() {
		known[a] = true
	}
	return func(e *Extension) {
		e.enabled = make(map[string]bool, len(actions))
		for _, a := range actions {
			if known[a] {
				e.enabled[a] = true
			}
		}
	}
}

// WithQueues limits the extension to events about the named queues.
// Cancellations carry only a job id and always pass.
func WithQueues(queues ...string) Option {
	return func(e *Extension) {
		e.queues = make(map[string]bool, len(queues))
		for _, q := range queues {
			e.queues[q] = true
		}
	}
}

// WithMinSeverity drops events below the given severity
// (SeverityInfo < SeverityWarning < SeverityCritical).
func WithMinSeverity(severity string) Option {
	return func(e *Extension) { e.minSeverity = severityRank(severity) }
}

// WithLogger sets the logger used to report recorder errors.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}

func severityRank(s string) int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	default:
		return 0
	}
}
