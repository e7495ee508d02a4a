package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"racuni/internal/domain/entity"
)

// MockStore is a mock implementation of Store
type MockStore struct {
	CreateFunc   func(ctx context.Context, m Mutation) error
	UpdateFunc   func(ctx context.Context, m Mutation) error
	DeleteFunc   func(ctx context.Context, m Mutation) error
	ListLiveFunc func(ctx context.Context, d entity.Descriptor, userID string) ([]entity.Record, error)
	StatsFunc    func(ctx context.Context, d entity.Descriptor, userID string) (KindStats, error)
}

func (m *MockStore) Create(ctx context.Context, mut Mutation) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, mut)
	}
	return nil
}

func (m *MockStore) Update(ctx context.Context, mut Mutation) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, mut)
	}
	return nil
}

func (m *MockStore) Delete(ctx context.Context, mut Mutation) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, mut)
	}
	return nil
}

func (m *MockStore) ListLive(ctx context.Context, d entity.Descriptor, userID string) ([]entity.Record, error) {
	if m.ListLiveFunc != nil {
		return m.ListLiveFunc(ctx, d, userID)
	}
	return nil, nil
}

func (m *MockStore) Stats(ctx context.Context, d entity.Descriptor, userID string) (KindStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx, d, userID)
	}
	return KindStats{}, nil
}

const receiptData = `{"merchantName": "Maxi", "totalAmount": 1250.5, "date": "2024-01-15"}`

func TestEnvelope_Validate(t *testing.T) {
	tests := []struct {
		name     string
		envelope Envelope
		wantPath string
	}{
		{"Missing Type", Envelope{EntityID: "r1", Operation: entity.OpDelete}, "entityType"},
		{"Blank ID", Envelope{EntityType: "receipt", EntityID: "  ", Operation: entity.OpDelete}, "entityId"},
		{"Long ID", Envelope{EntityType: "receipt", EntityID: strings.Repeat("x", 129), Operation: entity.OpDelete}, "entityId"},
		{"Missing Operation", Envelope{EntityType: "receipt", EntityID: "r1"}, "operation"},
		{"Unknown Operation", Envelope{EntityType: "receipt", EntityID: "r1", Operation: "upsert"}, "operation"},
		{"Null Data", Envelope{EntityType: "receipt", EntityID: "r1", Operation: entity.OpCreate, Data: json.RawMessage("null")}, "data"},
		{"Missing Data", Envelope{EntityType: "receipt", EntityID: "r1", Operation: entity.OpUpdate}, "data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.envelope.Validate()
			if len(errs) != 1 {
				t.Fatalf("Expected 1 error, got %v", errs)
			}
			if errs[0].Path != tt.wantPath {
				t.Errorf("Expected path %q, got %q", tt.wantPath, errs[0].Path)
			}
		})
	}

	if errs := (Envelope{EntityType: "receipt", EntityID: "r1", Operation: entity.OpDelete}).Validate(); len(errs) != 0 {
		t.Errorf("Delete without data should be valid, got %v", errs)
	}
}

func TestService_Prepare(t *testing.T) {
	s := NewService(entity.NewRegistry(), &MockStore{})

	t.Run("Alias Resolves To Canonical Kind", func(t *testing.T) {
		m, err := s.Prepare("u1", Envelope{
			EntityType: " household_bill ",
			EntityID:   "b1",
			Operation:  entity.OpCreate,
			Data:       json.RawMessage(`{"billType": "water", "provider": "BVK", "amount": 900, "dueDate": "2024-02-01", "createdAt": "2024-01-01"}`),
		})
		if err != nil {
			t.Fatalf("Prepare failed: %v", err)
		}
		if m.Descriptor.Kind != entity.KindHouseholdBill {
			t.Errorf("Expected kind %s, got %s", entity.KindHouseholdBill, m.Descriptor.Kind)
		}
		if m.UserID != "u1" || m.EntityID != "b1" {
			t.Errorf("Unexpected mutation identity: %+v", m)
		}
		if m.ClientCreatedAt == nil || !m.ClientCreatedAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("Expected client createdAt 2024-01-01, got %v", m.ClientCreatedAt)
		}
	})

	t.Run("Delete Skips Payload", func(t *testing.T) {
		m, err := s.Prepare("u1", Envelope{EntityType: "receipt", EntityID: "r1", Operation: entity.OpDelete, Data: json.RawMessage(`{"bogus": 1}`)})
		if err != nil {
			t.Fatalf("Prepare failed: %v", err)
		}
		if m.Payload != nil {
			t.Errorf("Expected nil payload for delete, got %v", m.Payload)
		}
	})

	t.Run("Unknown Type", func(t *testing.T) {
		_, err := s.Prepare("u1", Envelope{EntityType: "invoice", EntityID: "x", Operation: entity.OpDelete})
		if !errors.Is(err, ErrUnknownEntityType) {
			t.Errorf("Expected ErrUnknownEntityType, got %v", err)
		}
	})

	t.Run("Field Errors", func(t *testing.T) {
		_, err := s.Prepare("u1", Envelope{EntityType: "receipt", EntityID: "r1", Operation: entity.OpCreate, Data: json.RawMessage(`{"totalAmount": -5}`)})
		var errs entity.FieldErrors
		if !errors.As(err, &errs) {
			t.Fatalf("Expected FieldErrors, got %v", err)
		}
		paths := make([]string, 0, len(errs))
		for _, e := range errs {
			paths = append(paths, e.Path)
		}
		for _, want := range []string{"data.merchantName", "data.date", "data.totalAmount"} {
			if !slices.Contains(paths, want) {
				t.Errorf("Expected error for %s, got %v", want, paths)
			}
		}
	})
}

func TestService_Push(t *testing.T) {
	var got []Mutation
	store := &MockStore{
		CreateFunc: func(ctx context.Context, m Mutation) error {
			got = append(got, m)
			return nil
		},
		UpdateFunc: func(ctx context.Context, m Mutation) error {
			got = append(got, m)
			return nil
		},
		DeleteFunc: func(ctx context.Context, m Mutation) error {
			return errors.New("connection reset")
		},
	}
	s := NewService(entity.NewRegistry(), store)
	ctx := context.Background()

	res, err := s.Push(ctx, "u1", Envelope{EntityType: "receipt", EntityID: "r1", Operation: entity.OpCreate, Data: json.RawMessage(receiptData)})
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if res.EntityType != entity.KindReceipt || res.Operation != entity.OpCreate || res.EntityID != "r1" {
		t.Errorf("Unexpected result: %+v", res)
	}

	if _, err := s.Push(ctx, "u1", Envelope{EntityType: "receipt", EntityID: "r1", Operation: entity.OpUpdate, Data: json.RawMessage(`{"notes": "weekly"}`)}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(got) != 2 || got[1].Operation != entity.OpUpdate {
		t.Fatalf("Expected create then update, got %+v", got)
	}

	_, err = s.Push(ctx, "u1", Envelope{EntityType: "receipt", EntityID: "r1", Operation: entity.OpDelete})
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("Expected store error to be wrapped, got %v", err)
	}

	if _, err := s.Push(ctx, "u1", Envelope{EntityType: "receipt", EntityID: "r2", Operation: entity.OpCreate, Data: json.RawMessage(`[]`)}); err == nil {
		t.Error("Expected validation error for non-object data")
	}
	if len(got) != 2 {
		t.Errorf("Rejected envelope reached the store")
	}
}

func TestService_Pull(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	newSettings := func(id string, at time.Time) entity.Record {
		d, _ := entity.NewRegistry().Lookup("settings")
		return entity.Record{ID: id, UserID: "u1", Payload: d.New(), CreatedAt: at, UpdatedAt: at}
	}

	store := &MockStore{
		ListLiveFunc: func(ctx context.Context, d entity.Descriptor, userID string) ([]entity.Record, error) {
			switch d.Kind {
			case entity.KindDevice:
				return nil, errors.New("relation does not exist")
			case entity.KindSettings:
				return []entity.Record{newSettings("s-old", older), newSettings("s-new", newer)}, nil
			case entity.KindReceipt:
				return []entity.Record{{ID: "r1", UserID: userID, Payload: d.New(), CreatedAt: older, UpdatedAt: older}}, nil
			}
			return nil, nil
		},
	}
	s := NewService(entity.NewRegistry(), store)

	if _, err := s.Pull(context.Background(), ""); err == nil {
		t.Error("Expected error for empty user ID")
	}

	snap, err := s.Pull(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if len(snap.Failed) != 1 || snap.Failed[0] != "devices" {
		t.Errorf("Expected devices to fail, got %v", snap.Failed)
	}
	if rows, ok := snap.Collections["devices"]; !ok || len(rows) != 0 {
		t.Errorf("Failed kind should be an empty list, got %v", rows)
	}
	if snap.Counts["receipts"] != 1 || snap.Counts["settings"] != 1 || snap.Counts["reminders"] != 0 {
		t.Errorf("Unexpected counts: %v", snap.Counts)
	}
	if snap.Settings == nil || snap.Settings["id"] != "s-new" {
		t.Errorf("Expected newest settings row, got %v", snap.Settings)
	}
	if _, ok := snap.Collections["settings"]; ok {
		t.Error("Settings should not be listed as a collection")
	}
}

func TestService_Diagnose(t *testing.T) {
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	store := &MockStore{
		StatsFunc: func(ctx context.Context, d entity.Descriptor, userID string) (KindStats, error) {
			if d.Kind == entity.KindDocument {
				return KindStats{}, errors.New("timeout")
			}
			if d.Kind == entity.KindReceipt {
				return KindStats{Count: 3, LatestUpdated: &at}, nil
			}
			return KindStats{}, nil
		},
	}
	s := NewService(entity.NewRegistry(), store)

	diag, err := s.Diagnose(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Diagnose failed: %v", err)
	}
	if diag.UserID != "u1" {
		t.Errorf("Expected user u1, got %s", diag.UserID)
	}
	if diag.Counts["receipts"] != 3 || diag.LatestUpdates["receipts"] == nil || !diag.LatestUpdates["receipts"].Equal(at) {
		t.Errorf("Unexpected receipt stats: %d %v", diag.Counts["receipts"], diag.LatestUpdates["receipts"])
	}
	if len(diag.Failed) != 1 || diag.Failed[0] != "documents" {
		t.Errorf("Expected documents to fail, got %v", diag.Failed)
	}
	if _, ok := diag.LatestUpdates["documents"]; !ok {
		t.Error("Failed kind should still be reported")
	}
}
