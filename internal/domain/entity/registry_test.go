package entity

import (
	"encoding/json"
	"testing"
)

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		token    string
		wantKind Kind
		wantOK   bool
	}{
		{"receipt", KindReceipt, true},
		{"receipts", KindReceipt, true},
		{"householdBill", KindHouseholdBill, true},
		{"household_bill", KindHouseholdBill, true},
		{"settings", KindSettings, true},
		{" device ", KindDevice, true},
		{"invoice", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			d, ok := r.Lookup(tt.token)
			if ok != tt.wantOK {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tt.token, ok, tt.wantOK)
			}
			if ok && d.Kind != tt.wantKind {
				t.Errorf("Lookup(%q) kind = %s, want %s", tt.token, d.Kind, tt.wantKind)
			}
		})
	}
}

func TestRegistry_DeletePolicy(t *testing.T) {
	r := NewRegistry()

	for _, d := range r.Descriptors() {
		want := SoftDelete
		if d.Kind == KindSettings {
			want = HardDelete
		}
		if d.Delete != want {
			t.Errorf("%s delete policy = %v, want %v", d.Kind, d.Delete, want)
		}
	}
	if got := len(r.Descriptors()); got != 7 {
		t.Errorf("Descriptors() len = %d, want 7", got)
	}
}

func TestDecode_ReceiptCreate(t *testing.T) {
	d, _ := NewRegistry().Lookup("receipt")

	decoded, errs := d.Decode(OpCreate, json.RawMessage(`{
		"merchantName": "Maxi",
		"totalAmount": 1250.5,
		"date": "2024-01-15",
		"items": [{"name": "Mleko", "price": 120}],
		"syncStatus": "pending"
	}`))
	if errs != nil {
		t.Fatalf("Decode() errors = %v", errs)
	}

	r := decoded.Payload.(*Receipt)
	if r.MerchantName.Value != "Maxi" {
		t.Errorf("MerchantName = %q, want Maxi", r.MerchantName.Value)
	}
	if r.TotalAmount.Value != 1250.5 {
		t.Errorf("TotalAmount = %v, want 1250.5", r.TotalAmount.Value)
	}
	if !r.Items.Present() {
		t.Error("Items should be present")
	}
	if r.Notes.Set {
		t.Error("Notes should be absent")
	}
}

func TestDecode_MissingRequired(t *testing.T) {
	d, _ := NewRegistry().Lookup("receipt")

	_, errs := d.Decode(OpCreate, json.RawMessage(`{}`))
	if len(errs) != 3 {
		t.Fatalf("Decode() errors = %v, want 3 (merchantName, date, totalAmount)", errs)
	}
	paths := map[string]bool{}
	for _, e := range errs {
		paths[e.Path] = true
	}
	for _, p := range []string{"data.merchantName", "data.date", "data.totalAmount"} {
		if !paths[p] {
			t.Errorf("missing error for %s", p)
		}
	}
}

func TestDecode_Update(t *testing.T) {
	d, _ := NewRegistry().Lookup("receipt")

	decoded, errs := d.Decode(OpUpdate, json.RawMessage(`{"notes": "warranty card inside", "vatAmount": null}`))
	if errs != nil {
		t.Fatalf("Decode() errors = %v", errs)
	}
	r := decoded.Payload.(*Receipt)
	if r.MerchantName.Set {
		t.Error("MerchantName should be absent on update")
	}
	if !r.VATAmount.Set || !r.VATAmount.Null {
		t.Error("VATAmount should be an explicit null")
	}
	if r.Notes.Value != "warranty card inside" {
		t.Errorf("Notes = %q", r.Notes.Value)
	}
}

func TestDecode_StructuralErrors(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name     string
		kind     string
		op       Operation
		data     string
		wantPath string
	}{
		{"Wrong Type", "receipt", OpUpdate, `{"totalAmount": "a lot"}`, "data.totalAmount"},
		{"Negative Amount", "receipt", OpUpdate, `{"totalAmount": -1}`, "data.totalAmount"},
		{"Bad Date", "receipt", OpUpdate, `{"date": "15.01.2024"}`, "data.date"},
		{"Bad Enum", "receipt", OpUpdate, `{"paymentMethod": "crypto"}`, "data.paymentMethod"},
		{"Items Not Array", "receipt", OpUpdate, `{"items": {"a": 1}}`, "data.items"},
		{"Amount Too Large", "receipt", OpUpdate, `{"totalAmount": 1e13}`, "data.totalAmount"},
		{"Amount Too Precise", "receipt", OpUpdate, `{"vatAmount": 12.345}`, "data.vatAmount"},
		{"Integer Overflow", "device", OpUpdate, `{"warrantyDuration": 3000000000}`, "data.warrantyDuration"},
		{"Integer Overflow Settings", "settings", OpUpdate, `{"warrantyExpiryThreshold": 2147483648}`, "data.warrantyExpiryThreshold"},
		{"Fractional Integer", "device", OpUpdate, `{"warrantyDuration": 1.5}`, "data.warrantyDuration"},
		{"Consumption Not Object", "householdBill", OpUpdate, `{"consumption": [1]}`, "data.consumption"},
		{"Bad Clock", "settings", OpUpdate, `{"quietHoursStart": "25:00"}`, "data.quietHoursStart"},
		{"Null Required On Create", "reminder", OpCreate, `{"type": null, "reminderDate": "2024-02-01"}`, "data.type"},
		{"Empty Required String", "device", OpCreate, `{"brand": " ", "model": "X", "purchaseDate": "2024-01-01", "warrantyExpiry": "2026-01-01"}`, "data.brand"},
		{"Data Not Object", "document", OpCreate, `[1,2]`, "data"},
		{"Bad CreatedAt", "subscription", OpCreate, `{"name": "Netflix", "amount": 1200, "billingCycle": "monthly", "nextBillingDate": "2024-03-01", "createdAt": "yesterday"}`, "data.createdAt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := reg.Lookup(tt.kind)
			if !ok {
				t.Fatalf("unknown kind %s", tt.kind)
			}
			_, errs := d.Decode(tt.op, json.RawMessage(tt.data))
			if len(errs) == 0 {
				t.Fatal("Decode() returned no errors")
			}
			found := false
			for _, e := range errs {
				if e.Path == tt.wantPath {
					found = true
				}
			}
			if !found {
				t.Errorf("errors = %v, want one at %s", errs, tt.wantPath)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	s := &Subscription{Currency: Optional[string]{Set: true, Null: true}}
	ApplyDefaults(s)

	if s.Currency.Value != "RSD" || !s.Currency.Present() {
		t.Errorf("Currency = %+v, want RSD", s.Currency)
	}
	if !s.IsActive.Value {
		t.Error("IsActive should default to true")
	}
	if s.ReminderDaysBefore.Value != 3 {
		t.Errorf("ReminderDaysBefore = %d, want 3", s.ReminderDaysBefore.Value)
	}
	if s.Notes.Present() {
		t.Error("Notes has no default and should stay absent")
	}
}

func TestMergePresent(t *testing.T) {
	dst := &Receipt{MerchantName: Some("Maxi"), Notes: Some("old")}
	src := &Receipt{Notes: Some("new"), MerchantName: Optional[string]{Set: true, Null: true}}

	MergePresent(dst, src)

	if dst.MerchantName.Value != "Maxi" {
		t.Errorf("MerchantName = %q, want Maxi (null must not overwrite)", dst.MerchantName.Value)
	}
	if dst.Notes.Value != "new" {
		t.Errorf("Notes = %q, want new", dst.Notes.Value)
	}
}

func TestRecord_Wire(t *testing.T) {
	rec := Record{
		ID: "r1",
		Payload: &Receipt{
			MerchantName: Some("Maxi"),
			TotalAmount:  Some(1250.5),
			Items:        Some(json.RawMessage(`[{"name":"Hleb"}]`)),
			QRLink:       Some("https://suf.purs.gov.rs/v/?vl=abc"),
		},
	}

	out := rec.Wire()
	body, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	json.Unmarshal(body, &decoded)

	if decoded["id"] != "r1" || decoded["syncStatus"] != "synced" {
		t.Errorf("unexpected envelope fields: %v", decoded)
	}
	if decoded["totalAmount"] != 1250.5 {
		t.Errorf("totalAmount = %v, want number 1250.5", decoded["totalAmount"])
	}
	if _, ok := decoded["items"].([]any); !ok {
		t.Errorf("items = %T, want parsed array", decoded["items"])
	}
	if _, ok := decoded["notes"]; ok {
		t.Error("absent notes should be omitted")
	}
}

func TestRecord_WireDropsBrokenJSON(t *testing.T) {
	rec := Record{
		ID:      "d1",
		Payload: &Device{Brand: Some("Gorenje"), Attachments: Some(json.RawMessage(`{broken`))},
	}

	out := rec.Wire()
	if _, ok := out["attachments"]; ok {
		t.Error("unparseable attachments should be omitted")
	}
	if _, err := json.Marshal(out); err != nil {
		t.Errorf("Marshal() error = %v", err)
	}
}

func TestDecode_ColumnBounds(t *testing.T) {
	reg := NewRegistry()
	receipts, _ := reg.Lookup("receipt")
	devices, _ := reg.Lookup("device")

	// Largest values the columns hold still decode.
	for _, data := range []string{
		`{"totalAmount": 999999999999.99}`,
		`{"totalAmount": 0.1, "vatAmount": 12.35}`,
		`{"totalAmount": 1250}`,
	} {
		if _, errs := receipts.Decode(OpUpdate, json.RawMessage(data)); len(errs) != 0 {
			t.Errorf("Decode(%s) = %v, want no errors", data, errs)
		}
	}
	if _, errs := devices.Decode(OpUpdate, json.RawMessage(`{"warrantyDuration": 2147483647}`)); len(errs) != 0 {
		t.Errorf("Decode(max int32) = %v, want no errors", errs)
	}

	_, errs := receipts.Decode(OpUpdate, json.RawMessage(`{"totalAmount": 12.345}`))
	if len(errs) != 1 || errs[0].Message != "must have at most 2 decimal places" {
		t.Errorf("errors = %v, want a decimal places error", errs)
	}
}
