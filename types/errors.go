package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks invalid or missing configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNoOpportunity means no route clears the profit floor.
	ErrNoOpportunity = errors.New("no profitable opportunity")
	// ErrRiskRejected means the risk gate refused the trade.
	ErrRiskRejected = errors.New("rejected by risk gate")
	// ErrProvider marks RPC or contract call failures.
	ErrProvider = errors.New("provider error")
	// ErrExecution marks a reverted or failed on-chain transaction.
	ErrExecution = errors.New("execution error")
)

// RiskRejectedError carries the itemized reasons for a rejected trade.
type RiskRejectedError struct {
	Score           int
	Level           RiskLevel
	Issues          []string
	Recommendations []string
}

func (e *RiskRejectedError) Error() string {
	msg := fmt.Sprintf("rejected by risk gate: score %d (%s)", e.Score, e.Level)
	if len(e.Issues) > 0 {
		msg += ": " + strings.Join(e.Issues, "; ")
	}
	return msg
}

// Is lets errors.Is match ErrRiskRejected.
func (e *RiskRejectedError) Is(target error) bool {
	return target == ErrRiskRejected
}

// NewRiskRejectedError builds the error from an assessment.
func NewRiskRejectedError(a *RiskAssessment) *RiskRejectedError {
	return &RiskRejectedError{
		Score:           a.Score,
		Level:           a.Level,
		Issues:          append([]string(nil), a.Issues...),
		Recommendations: append([]string(nil), a.Recommendations...),
	}
}
