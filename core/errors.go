package core

import "errors"

// Sentinel errors for the engine's failure taxonomy. Callers distinguish
// "retry next cycle" from "fatal misconfiguration" with errors.Is rather
// than by inspecting error strings.
var (
	// ErrGeometryUnavailable marks a recoverable collaborator failure: the
	// geometry provider failed or returned an invalid sample. The affected
	// pair retries on its next periodic cycle.
	ErrGeometryUnavailable = errors.New("geometry unavailable")

	// ErrConfigurationInvalid marks inconsistent thresholds, hysteresis or
	// durations detected at construction. Fatal; no worker starts.
	ErrConfigurationInvalid = errors.New("configuration invalid")
)

// Note: non-convergence of a prediction is not an error. It is a normal
// terminal state surfaced via AccessPrediction.ConvergenceAchieved=false and
// a depressed confidence score.
