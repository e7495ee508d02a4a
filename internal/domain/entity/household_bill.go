package entity

import "encoding/json"

var (
	billTypes    = []string{"electricity", "water", "gas", "heating", "internet", "phone", "tv", "rent", "maintenance", "waste", "other"}
	billStatuses = []string{"pending", "paid", "overdue", "partial"}
)

// HouseholdBill is a recurring utility or housing bill.
type HouseholdBill struct {
	BillType           Optional[string]
	Provider           Optional[string]
	AccountNumber      Optional[string]
	Amount             Optional[float64]
	BillingPeriodStart Optional[string]
	BillingPeriodEnd   Optional[string]
	DueDate            Optional[string]
	PaymentDate        Optional[string]
	Status             Optional[string]
	Consumption        Optional[json.RawMessage]
	Notes              Optional[string]
}

func (b *HouseholdBill) Fields() []Field {
	return []Field{
		{Name: "billType", Column: "bill_type", Type: TypeEnum, Required: true, Enum: billTypes, Slot: &b.BillType},
		{Name: "provider", Column: "provider", Type: TypeString, Required: true, Slot: &b.Provider},
		{Name: "accountNumber", Column: "account_number", Type: TypeString, Slot: &b.AccountNumber},
		{Name: "amount", Column: "amount", Type: TypeNumber, Required: true, NonNegative: true, Slot: &b.Amount},
		{Name: "billingPeriodStart", Column: "billing_period_start", Type: TypeDate, Slot: &b.BillingPeriodStart},
		{Name: "billingPeriodEnd", Column: "billing_period_end", Type: TypeDate, Slot: &b.BillingPeriodEnd},
		{Name: "dueDate", Column: "due_date", Type: TypeDate, Required: true, Slot: &b.DueDate},
		{Name: "paymentDate", Column: "payment_date", Type: TypeDate, Slot: &b.PaymentDate},
		{Name: "status", Column: "status", Type: TypeEnum, Enum: billStatuses, Default: "pending", Slot: &b.Status},
		{Name: "consumption", Column: "consumption", Type: TypeJSONObject, Slot: &b.Consumption},
		{Name: "notes", Column: "notes", Type: TypeString, Slot: &b.Notes},
	}
}
