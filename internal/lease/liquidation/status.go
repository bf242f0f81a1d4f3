package liquidation

import (
	"encoding/json"
	"fmt"

	"lease_engine/internal/lease/liability"
	"lease_engine/pkg/finance"
)

// Cause tells why a liquidation is needed
type Cause int

const (
	CauseLiability Cause = iota
	CauseOverdue
)

func (c Cause) String() string {
	if c == CauseOverdue {
		return "overdue"
	}
	return "liability"
}

// Kind is the tag of a Status
type Kind int

const (
	KindNoDebt Kind = iota
	KindNoWarning
	KindWarning
	KindPartial
	KindFull
	// KindNotEvaluated marks a response produced without a fresh evaluation
	KindNotEvaluated
)

var kindNames = map[Kind]string{
	KindNoDebt:       "no_debt",
	KindNoWarning:    "no_warning",
	KindWarning:      "warning",
	KindPartial:      "partial_liquidation",
	KindFull:         "full_liquidation",
	KindNotEvaluated: "not_evaluated",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Status is the outcome of an evaluation.
// Level is set for warnings, Amount and Cause for liquidations.
type Status struct {
	Kind   Kind
	Level  liability.Level
	Amount finance.Coin
	Cause  Cause
}

func NoDebt() Status                       { return Status{Kind: KindNoDebt} }
func NoWarning() Status                    { return Status{Kind: KindNoWarning} }
func NotEvaluated() Status                 { return Status{Kind: KindNotEvaluated} }
func Warning(level liability.Level) Status { return Status{Kind: KindWarning, Level: level} }

// Partial asks to sell amount of the asset
func Partial(amount finance.Coin, cause Cause) Status {
	return Status{Kind: KindPartial, Amount: amount, Cause: cause}
}

// Full asks to sell the whole asset
func Full(asset finance.Coin, cause Cause) Status {
	return Status{Kind: KindFull, Amount: asset, Cause: cause}
}

// ParseCause is the inverse of Cause.String
func ParseCause(s string) Cause {
	if s == CauseOverdue.String() {
		return CauseOverdue
	}
	return CauseLiability
}

// IsLiquidation reports whether the status carries a sell instruction
func (s Status) IsLiquidation() bool {
	return s.Kind == KindPartial || s.Kind == KindFull
}

// Severity orders statuses: no debt and no warning rank lowest, then
// the three warning levels, then any liquidation.
func (s Status) Severity() int {
	switch s.Kind {
	case KindWarning:
		return int(s.Level)
	case KindPartial, KindFull:
		return int(liability.LevelMax)
	default:
		return 0
	}
}

func (s Status) String() string {
	switch s.Kind {
	case KindWarning:
		return fmt.Sprintf("warning(%s)", s.Level)
	case KindPartial, KindFull:
		return fmt.Sprintf("%s(%s, %s)", s.Kind, s.Amount, s.Cause)
	default:
		return s.Kind.String()
	}
}

type statusJSON struct {
	Kind   string        `json:"kind"`
	Level  string        `json:"level,omitempty"`
	Amount *finance.Coin `json:"amount,omitempty"`
	Cause  string        `json:"cause,omitempty"`
}

func (s Status) MarshalJSON() ([]byte, error) {
	out := statusJSON{Kind: s.Kind.String()}
	switch s.Kind {
	case KindWarning:
		out.Level = s.Level.String()
	case KindPartial, KindFull:
		amount := s.Amount
		out.Amount = &amount
		out.Cause = s.Cause.String()
	}
	return json.Marshal(out)
}
