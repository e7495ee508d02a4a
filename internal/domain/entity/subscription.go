package entity

var billingCycles = []string{"weekly", "monthly", "quarterly", "yearly"}

// Subscription is a recurring paid service.
type Subscription struct {
	Name               Optional[string]
	Provider           Optional[string]
	Category           Optional[string]
	Amount             Optional[float64]
	Currency           Optional[string]
	BillingCycle       Optional[string]
	StartDate          Optional[string]
	NextBillingDate    Optional[string]
	IsActive           Optional[bool]
	AutoRenew          Optional[bool]
	ReminderEnabled    Optional[bool]
	ReminderDaysBefore Optional[int64]
	CancelURL          Optional[string]
	Notes              Optional[string]
}

func (s *Subscription) Fields() []Field {
	return []Field{
		{Name: "name", Column: "name", Type: TypeString, Required: true, Slot: &s.Name},
		{Name: "provider", Column: "provider", Type: TypeString, Slot: &s.Provider},
		{Name: "category", Column: "category", Type: TypeString, Slot: &s.Category},
		{Name: "amount", Column: "amount", Type: TypeNumber, Required: true, NonNegative: true, Slot: &s.Amount},
		{Name: "currency", Column: "currency", Type: TypeString, Default: "RSD", Slot: &s.Currency},
		{Name: "billingCycle", Column: "billing_cycle", Type: TypeEnum, Required: true, Enum: billingCycles, Slot: &s.BillingCycle},
		{Name: "startDate", Column: "start_date", Type: TypeDate, Slot: &s.StartDate},
		{Name: "nextBillingDate", Column: "next_billing_date", Type: TypeDate, Required: true, Slot: &s.NextBillingDate},
		{Name: "isActive", Column: "is_active", Type: TypeBool, Default: true, Slot: &s.IsActive},
		{Name: "autoRenew", Column: "auto_renew", Type: TypeBool, Default: true, Slot: &s.AutoRenew},
		{Name: "reminderEnabled", Column: "reminder_enabled", Type: TypeBool, Default: false, Slot: &s.ReminderEnabled},
		{Name: "reminderDaysBefore", Column: "reminder_days_before", Type: TypeInteger, NonNegative: true, Default: int64(3), Slot: &s.ReminderDaysBefore},
		{Name: "cancelUrl", Column: "cancel_url", Type: TypeString, Slot: &s.CancelURL},
		{Name: "notes", Column: "notes", Type: TypeString, Slot: &s.Notes},
	}
}
