package entity

import "encoding/json"

var paymentMethods = []string{"cash", "card", "transfer", "other"}

// Receipt is a fiscal receipt, usually captured from its QR code.
type Receipt struct {
	MerchantName  Optional[string]
	PIB           Optional[string]
	Date          Optional[string]
	Time          Optional[string]
	TotalAmount   Optional[float64]
	VATAmount     Optional[float64]
	Items         Optional[json.RawMessage]
	PaymentMethod Optional[string]
	Category      Optional[string]
	Notes         Optional[string]
	QRLink        Optional[string]
	ImageURI      Optional[string]
	DeviceID      Optional[string]
}

func (r *Receipt) Fields() []Field {
	return []Field{
		{Name: "merchantName", Column: "merchant_name", Type: TypeString, Required: true, Slot: &r.MerchantName},
		{Name: "pib", Column: "pib", Type: TypeString, Slot: &r.PIB},
		{Name: "date", Column: "receipt_date", Type: TypeDate, Required: true, Slot: &r.Date},
		{Name: "time", Column: "receipt_time", Type: TypeClock, Slot: &r.Time},
		{Name: "totalAmount", Column: "total_amount", Type: TypeNumber, Required: true, NonNegative: true, Slot: &r.TotalAmount},
		{Name: "vatAmount", Column: "vat_amount", Type: TypeNumber, NonNegative: true, Slot: &r.VATAmount},
		{Name: "items", Column: "items", Type: TypeJSONArray, Slot: &r.Items},
		{Name: "paymentMethod", Column: "payment_method", Type: TypeEnum, Enum: paymentMethods, Slot: &r.PaymentMethod},
		{Name: "category", Column: "category", Type: TypeString, Slot: &r.Category},
		{Name: "notes", Column: "notes", Type: TypeString, Slot: &r.Notes},
		{Name: "qrLink", Column: "qr_link", Type: TypeString, Slot: &r.QRLink},
		{Name: "imageUri", Column: "image_uri", Type: TypeString, Slot: &r.ImageURI},
		{Name: "deviceId", Column: "device_id", Type: TypeString, Slot: &r.DeviceID},
	}
}
