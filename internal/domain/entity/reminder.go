package entity

var (
	reminderTypes    = []string{"warranty", "bill", "subscription", "document", "custom"}
	reminderStatuses = []string{"pending", "sent", "dismissed"}
)

// Reminder is a scheduled notification tied to another entity or free-standing.
type Reminder struct {
	Type         Optional[string]
	RelatedID    Optional[string]
	Title        Optional[string]
	Message      Optional[string]
	ReminderDate Optional[string]
	Status       Optional[string]
}

func (r *Reminder) Fields() []Field {
	return []Field{
		{Name: "type", Column: "type", Type: TypeEnum, Required: true, Enum: reminderTypes, Slot: &r.Type},
		{Name: "relatedId", Column: "related_id", Type: TypeString, Slot: &r.RelatedID},
		{Name: "title", Column: "title", Type: TypeString, Slot: &r.Title},
		{Name: "message", Column: "message", Type: TypeString, Slot: &r.Message},
		{Name: "reminderDate", Column: "reminder_date", Type: TypeDate, Required: true, Slot: &r.ReminderDate},
		{Name: "status", Column: "status", Type: TypeEnum, Enum: reminderStatuses, Default: "pending", Slot: &r.Status},
	}
}
