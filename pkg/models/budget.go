package models

// BudgetPeriod defines the time window for a budget policy.
type BudgetPeriod string

const (
	BudgetDaily   BudgetPeriod = "daily"
	BudgetMonthly BudgetPeriod = "monthly"
)

// BudgetPolicy caps generation tokens per period. An empty or "*" Operation
// applies to every operation.
type BudgetPolicy struct {
	Operation string       `json:"operation,omitempty" yaml:"operation,omitempty"`
	MaxTokens int64        `json:"max_tokens" yaml:"max_tokens"`
	Period    BudgetPeriod `json:"period" yaml:"period"`
}

// BudgetStatus shows current usage against a policy.
type BudgetStatus struct {
	Policy    BudgetPolicy `json:"policy"`
	Used      int64        `json:"used"`
	Remaining int64        `json:"remaining"`
}
