package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// money renders as JSON numbers, matching what clients of the API expect
	decimal.MarshalJSONWithoutQuotes = true
}

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RolePharmacist Role = "pharmacist"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RolePharmacist:
		return true
	}
	return false
}

func ParseRole(value string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(value)))
	if !r.IsValid() {
		return "", fmt.Errorf("invalid role %q", value)
	}
	return r, nil
}

type PaymentMethod string

const (
	PaymentCash      PaymentMethod = "cash"
	PaymentCard      PaymentMethod = "card"
	PaymentUPI       PaymentMethod = "upi"
	PaymentInsurance PaymentMethod = "insurance"
)

func (p PaymentMethod) IsValid() bool {
	switch p {
	case PaymentCash, PaymentCard, PaymentUPI, PaymentInsurance:
		return true
	}
	return false
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	p := PaymentMethod(strings.ToLower(strings.TrimSpace(value)))
	if !p.IsValid() {
		return "", fmt.Errorf("invalid payment method %q", value)
	}
	return p, nil
}

type InventoryAction string

const (
	ActionAdd    InventoryAction = "add"
	ActionSale   InventoryAction = "sale"
	ActionAdjust InventoryAction = "adjust"
)
