package entity

import "encoding/json"

var documentTypes = []string{"id_card", "passport", "driving_license", "vehicle_registration", "insurance", "contract", "medical", "warranty", "other"}

// Document is a scanned personal document with an optional expiry.
type Document struct {
	Type               Optional[string]
	Title              Optional[string]
	FileURI            Optional[string]
	ThumbnailURI       Optional[string]
	ExpiryDate         Optional[string]
	ExpiryReminderDays Optional[int64]
	Tags               Optional[json.RawMessage]
	Notes              Optional[string]
}

func (d *Document) Fields() []Field {
	return []Field{
		{Name: "type", Column: "type", Type: TypeEnum, Required: true, Enum: documentTypes, Slot: &d.Type},
		{Name: "title", Column: "title", Type: TypeString, Required: true, Slot: &d.Title},
		{Name: "fileUri", Column: "file_uri", Type: TypeString, Required: true, Slot: &d.FileURI},
		{Name: "thumbnailUri", Column: "thumbnail_uri", Type: TypeString, Slot: &d.ThumbnailURI},
		{Name: "expiryDate", Column: "expiry_date", Type: TypeDate, Slot: &d.ExpiryDate},
		{Name: "expiryReminderDays", Column: "expiry_reminder_days", Type: TypeInteger, NonNegative: true, Slot: &d.ExpiryReminderDays},
		{Name: "tags", Column: "tags", Type: TypeJSONArray, Slot: &d.Tags},
		{Name: "notes", Column: "notes", Type: TypeString, Slot: &d.Notes},
	}
}
