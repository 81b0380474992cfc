/*
Package methods provides the payment method catalog.

PURPOSE:
  A closed lookup table of payment methods consumed as opaque reference
  data by the payment flows. The engine never interprets a method; the
  only business rule lives here: REIMBURSEMENT is restricted to
  expense/payable flows and never valid for revenue.

METHODS:
  CASH, BANK_TRANSFER, E_WALLET  - valid everywhere
  REIMBURSEMENT                  - payable flows only

CACHING:
  Catalog reads go through the Cache interface (see cache.go). The Redis
  implementation backs multi-instance deployments; the in-memory
  implementation serves tests and cache-less setups. The catalog is
  small and closed, so the cache stores the whole serialized set under
  one key.

SEE ALSO:
  - cache.go: Cache interface, Redis and in-memory implementations
  - receivable/payments.go, payable/payments.go: Flow restrictions
*/
package methods

import (
	"errors"
	"fmt"
)

// =============================================================================
// PAYMENT METHOD
// =============================================================================

// Method is one entry of the payment method catalog.
type Method struct {
	ID         string `json:"id"`
	MethodCode string `json:"methodCode"`
	MethodName string `json:"methodName"`
}

const (
	CodeCash          = "CASH"
	CodeBankTransfer  = "BANK_TRANSFER"
	CodeEWallet       = "E_WALLET"
	CodeReimbursement = "REIMBURSEMENT"
)

var (
	ErrUnknownMethod = errors.New("unknown payment method")

	// ErrMethodNotAllowed is returned when a method exists but is not
	// valid for the requested flow (REIMBURSEMENT on a revenue payment).
	ErrMethodNotAllowed = errors.New("payment method not allowed for this flow")
)

// =============================================================================
// FLOW - Which side of the ledger a payment belongs to
// =============================================================================

type Flow string

const (
	FlowReceivable Flow = "receivable" // revenue side
	FlowPayable    Flow = "payable"    // expense/reimbursement side
)

// =============================================================================
// CATALOG
// =============================================================================

// Catalog is the closed set of payment methods.
type Catalog struct {
	byCode map[string]Method
	all    []Method
}

// NewCatalog builds the default closed catalog.
func NewCatalog() *Catalog {
	defaults := []Method{
		{ID: "pm-cash", MethodCode: CodeCash, MethodName: "Cash"},
		{ID: "pm-bank-transfer", MethodCode: CodeBankTransfer, MethodName: "Bank Transfer"},
		{ID: "pm-e-wallet", MethodCode: CodeEWallet, MethodName: "E-Wallet"},
		{ID: "pm-reimbursement", MethodCode: CodeReimbursement, MethodName: "Reimbursement"},
	}

	byCode := make(map[string]Method, len(defaults))
	for _, m := range defaults {
		byCode[m.MethodCode] = m
	}
	return &Catalog{byCode: byCode, all: defaults}
}

// All returns every method in catalog order.
func (c *Catalog) All() []Method {
	out := make([]Method, len(c.all))
	copy(out, c.all)
	return out
}

// Lookup returns the method for code.
func (c *Catalog) Lookup(code string) (Method, error) {
	m, ok := c.byCode[code]
	if !ok {
		return Method{}, fmt.Errorf("%w: %q", ErrUnknownMethod, code)
	}
	return m, nil
}

// ValidateForFlow checks that code names a known method usable by flow.
// REIMBURSEMENT settles an expense against an employee's outlay and has
// no meaning on the revenue side.
func (c *Catalog) ValidateForFlow(code string, flow Flow) (Method, error) {
	m, err := c.Lookup(code)
	if err != nil {
		return Method{}, err
	}
	if m.MethodCode == CodeReimbursement && flow != FlowPayable {
		return Method{}, fmt.Errorf("%w: %s on %s", ErrMethodNotAllowed, code, flow)
	}
	return m, nil
}
