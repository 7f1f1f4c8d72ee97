package models

import "github.com/shopspring/decimal"

// Consequence categories an admin must acknowledge before a cascade runs.
const (
	ConsequenceProducts           = "products"
	ConsequenceOrders             = "orders"
	ConsequenceCategories         = "categories"
	ConsequenceFundsDeleted       = "funds_deleted"
	ConsequenceFundsDisassociated = "funds_disassociated"
	ConsequenceBusinessRecord     = "business_record"
)

type FundImpact struct {
	ID                string          `db:"id" json:"id"`
	Title             string          `db:"title" json:"title"`
	ContributionCount int             `db:"contribution_count" json:"contribution_count"`
	TotalContributed  decimal.Decimal `db:"total_contributed" json:"total_contributed"`
}

// CascadePlan is the impact of deleting one business. DeletableFunds and
// DisassociatedFunds never share a fund.
type CascadePlan struct {
	BusinessID         string       `json:"business_id"`
	BusinessName       string       `json:"business_name"`
	OwnerUserID        string       `json:"owner_user_id"`
	ProductIDs         []string     `json:"product_ids"`
	OrderIDs           []string     `json:"order_ids"`
	CategoryIDs        []string     `json:"category_ids"`
	DeletableFunds     []FundImpact `json:"deletable_funds"`
	DisassociatedFunds []FundImpact `json:"disassociated_funds"`
}

func (p CascadePlan) Counts() map[string]int {
	return map[string]int{
		ConsequenceProducts:           len(p.ProductIDs),
		ConsequenceOrders:             len(p.OrderIDs),
		ConsequenceCategories:         len(p.CategoryIDs),
		ConsequenceFundsDeleted:       len(p.DeletableFunds),
		ConsequenceFundsDisassociated: len(p.DisassociatedFunds),
	}
}

// Consequences lists every non-empty category plus the business record itself.
func (p CascadePlan) Consequences() []string {
	counts := p.Counts()
	var out []string
	for _, name := range []string{
		ConsequenceProducts,
		ConsequenceOrders,
		ConsequenceCategories,
		ConsequenceFundsDeleted,
		ConsequenceFundsDisassociated,
	} {
		if counts[name] > 0 {
			out = append(out, name)
		}
	}
	return append(out, ConsequenceBusinessRecord)
}

func (p CascadePlan) DeletableFundIDs() []string {
	return fundIDs(p.DeletableFunds)
}

func (p CascadePlan) DisassociatedFundIDs() []string {
	return fundIDs(p.DisassociatedFunds)
}

func fundIDs(funds []FundImpact) []string {
	ids := make([]string, len(funds))
	for i, f := range funds {
		ids[i] = f.ID
	}
	return ids
}

type CascadeProgress struct {
	Percent     int    `json:"percent"`
	ActionLabel string `json:"action_label"`
}

// CascadeResult reports what an execution changed.
type CascadeResult struct {
	BusinessID    string         `json:"business_id"`
	Counts        map[string]int `json:"counts"`
	LastStep      string         `json:"last_step"`
	Transactional bool           `json:"transactional"`
}
