package domain

import "github.com/shopspring/decimal"

// DecisionRule identifies which rule of the outcome cascade fired.
type DecisionRule int

const (
	RuleFallback DecisionRule = iota // safe default: optimize for profit
	RuleBlacklist
	RuleWhitelist
	RuleLossCap
	RuleProfitTargetPending
	RuleProfitTargetMet
)

func (r DecisionRule) String() string {
	switch r {
	case RuleBlacklist:
		return "blacklist"
	case RuleWhitelist:
		return "whitelist"
	case RuleLossCap:
		return "loss_cap"
	case RuleProfitTargetPending:
		return "profit_target_pending"
	case RuleProfitTargetMet:
		return "profit_target_met"
	default:
		return "fallback"
	}
}

// Decision is the target outcome chosen for a round.
type Decision struct {
	Outcome        Direction
	Rule           DecisionRule
	ExpectedProfit decimal.Decimal
	Subject        string // bettor address that triggered a list bias, if any
	Reason         string
}

// FallbackDecision is the profit-optimizing default used when the cascade fails.
func FallbackDecision(a ProfitAnalysis, reason string) Decision {
	out := a.Recommended
	if !out.Valid() {
		out = DirectionUp
	}
	return Decision{
		Outcome:        out,
		Rule:           RuleFallback,
		ExpectedProfit: a.ProfitIf(out),
		Reason:         reason,
	}
}
