package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess   = 0 // Run finished and met its thresholds
	ExitThreshold = 1 // Accuracy below eval.min_accuracy, or a statement was rejected by check
	ExitError     = 2 // Configuration or runtime error
)

// AccuracyBelowThresholdError indicates the experiment ran to completion but
// its accuracy fell short of eval.min_accuracy.
type AccuracyBelowThresholdError struct {
	Accuracy  float64
	Threshold float64
}

func (e *AccuracyBelowThresholdError) Error() string {
	return fmt.Sprintf("accuracy %.4f is below the required %.4f", e.Accuracy, e.Threshold)
}

// StatementRejectedError is returned by check for an inadmissible statement.
type StatementRejectedError struct {
	Reason error
}

func (e *StatementRejectedError) Error() string {
	return e.Reason.Error()
}

func (e *StatementRejectedError) Unwrap() error { return e.Reason }

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var thresholdErr *AccuracyBelowThresholdError
	var rejectedErr *StatementRejectedError
	if errors.As(err, &thresholdErr) || errors.As(err, &rejectedErr) {
		return ExitThreshold
	}
	return ExitError
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
