package scheduler

import (
	"fmt"
	"strings"

	"activity_scraper/internal/domain/acquisition"
)

// FailurePolicy decides whether a failed cycle ends the recurring loop.
type FailurePolicy string

const (
	// PolicyContinue keeps the loop alive after any failure; the next tick is the retry.
	PolicyContinue FailurePolicy = "continue"
	// PolicyStopOnUnexpected retries transport and timeout failures but stops on anything else.
	PolicyStopOnUnexpected FailurePolicy = "stop-on-unexpected"
	// PolicyStop ends the loop on the first failed cycle.
	PolicyStop FailurePolicy = "stop"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyContinue, nil
	case PolicyContinue, PolicyStopOnUnexpected, PolicyStop:
		return p, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want %s, %s or %s)", s, PolicyContinue, PolicyStopOnUnexpected, PolicyStop)
	}
}

// ShouldStop reports whether a failure of the given kind ends the loop.
func (p FailurePolicy) ShouldStop(kind acquisition.FailureKind) bool {
	if kind == acquisition.KindNone {
		return false
	}
	switch p {
	case PolicyStop:
		return true
	case PolicyStopOnUnexpected:
		return kind == acquisition.KindUnexpected
	default:
		return false
	}
}
