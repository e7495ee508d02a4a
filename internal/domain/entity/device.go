package entity

import "encoding/json"

var (
	deviceCategories = []string{"electronics", "appliances", "furniture", "vehicle", "tools", "other"}
	warrantyStatuses = []string{"active", "expiring", "expired", "in_service"}
)

// Device is a purchased item tracked for its warranty.
type Device struct {
	Brand                Optional[string]
	Model                Optional[string]
	Category             Optional[string]
	SerialNumber         Optional[string]
	PurchaseDate         Optional[string]
	WarrantyDuration     Optional[int64]
	WarrantyExpiry       Optional[string]
	WarrantyStatus       Optional[string]
	ReceiptID            Optional[string]
	ServiceCenterName    Optional[string]
	ServiceCenterAddress Optional[string]
	ServiceCenterPhone   Optional[string]
	ServiceCenterHours   Optional[string]
	Attachments          Optional[json.RawMessage]
	Notes                Optional[string]
}

func (d *Device) Fields() []Field {
	return []Field{
		{Name: "brand", Column: "brand", Type: TypeString, Required: true, Slot: &d.Brand},
		{Name: "model", Column: "model", Type: TypeString, Required: true, Slot: &d.Model},
		{Name: "category", Column: "category", Type: TypeEnum, Enum: deviceCategories, Default: "other", Slot: &d.Category},
		{Name: "serialNumber", Column: "serial_number", Type: TypeString, Slot: &d.SerialNumber},
		{Name: "purchaseDate", Column: "purchase_date", Type: TypeDate, Required: true, Slot: &d.PurchaseDate},
		{Name: "warrantyDuration", Column: "warranty_duration", Type: TypeInteger, NonNegative: true, Default: int64(24), Slot: &d.WarrantyDuration},
		{Name: "warrantyExpiry", Column: "warranty_expiry", Type: TypeDate, Required: true, Slot: &d.WarrantyExpiry},
		{Name: "warrantyStatus", Column: "warranty_status", Type: TypeEnum, Enum: warrantyStatuses, Default: "active", Slot: &d.WarrantyStatus},
		{Name: "receiptId", Column: "receipt_id", Type: TypeString, Slot: &d.ReceiptID},
		{Name: "serviceCenterName", Column: "service_center_name", Type: TypeString, Slot: &d.ServiceCenterName},
		{Name: "serviceCenterAddress", Column: "service_center_address", Type: TypeString, Slot: &d.ServiceCenterAddress},
		{Name: "serviceCenterPhone", Column: "service_center_phone", Type: TypeString, Slot: &d.ServiceCenterPhone},
		{Name: "serviceCenterHours", Column: "service_center_hours", Type: TypeString, Slot: &d.ServiceCenterHours},
		{Name: "attachments", Column: "attachments", Type: TypeJSONArray, Slot: &d.Attachments},
		{Name: "notes", Column: "notes", Type: TypeString, Slot: &d.Notes},
	}
}
