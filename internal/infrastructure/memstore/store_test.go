package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"racuni/internal/domain/entity"
	"racuni/internal/domain/syncer"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setup(t *testing.T) (*Store, *fakeClock, *entity.Registry) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	s := New()
	s.SetClock(clock.now)
	return s, clock, entity.NewRegistry()
}

func descriptor(t *testing.T, r *entity.Registry, token string) entity.Descriptor {
	t.Helper()
	d, ok := r.Lookup(token)
	if !ok {
		t.Fatalf("unknown token %q", token)
	}
	return d
}

func receiptMutation(d entity.Descriptor, user, id string, op entity.Operation, p *entity.Receipt) syncer.Mutation {
	m := syncer.Mutation{Descriptor: d, UserID: user, EntityID: id, Operation: op}
	if p != nil {
		m.Payload = p
	}
	return m
}

func TestStore_CreateAppliesDefaultsAndTimestamps(t *testing.T) {
	s, clock, reg := setup(t)
	ctx := context.Background()
	d := descriptor(t, reg, "device")

	err := s.Create(ctx, syncer.Mutation{
		Descriptor: d, UserID: "u1", EntityID: "d1", Operation: entity.OpCreate,
		Payload: &entity.Device{
			Brand:          entity.Some("Bosch"),
			Model:          entity.Some("WAN28"),
			PurchaseDate:   entity.Some("2024-01-15"),
			WarrantyExpiry: entity.Some("2026-01-15"),
		},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rec, ok := s.Get(d, "d1")
	if !ok {
		t.Fatal("expected row d1")
	}
	if !rec.CreatedAt.Equal(clock.t) || !rec.UpdatedAt.Equal(clock.t) {
		t.Errorf("timestamps = %v / %v, want %v", rec.CreatedAt, rec.UpdatedAt, clock.t)
	}
	dev := rec.Payload.(*entity.Device)
	if dev.WarrantyStatus.Value != "active" {
		t.Errorf("warrantyStatus default = %q, want active", dev.WarrantyStatus.Value)
	}
	if dev.WarrantyDuration.Value != 24 {
		t.Errorf("warrantyDuration default = %d, want 24", dev.WarrantyDuration.Value)
	}
	if dev.Category.Value != "other" {
		t.Errorf("category default = %q, want other", dev.Category.Value)
	}
}

func TestStore_CreateUsesClientCreatedAt(t *testing.T) {
	s, _, reg := setup(t)
	d := descriptor(t, reg, "receipt")
	created := time.Date(2023, 12, 31, 8, 0, 0, 0, time.UTC)

	m := receiptMutation(d, "u1", "r1", entity.OpCreate, &entity.Receipt{MerchantName: entity.Some("Maxi")})
	m.ClientCreatedAt = &created
	if err := s.Create(context.Background(), m); err != nil {
		t.Fatal(err)
	}

	rec, _ := s.Get(d, "r1")
	if !rec.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, created)
	}
}

func TestStore_CreateIsIdempotentAndRevivesTombstone(t *testing.T) {
	s, clock, reg := setup(t)
	ctx := context.Background()
	d := descriptor(t, reg, "receipt")

	create := receiptMutation(d, "u1", "r1", entity.OpCreate, &entity.Receipt{
		MerchantName: entity.Some("Maxi"),
		TotalAmount:  entity.Some(450.0),
	})
	if err := s.Create(ctx, create); err != nil {
		t.Fatal(err)
	}
	first, _ := s.Get(d, "r1")

	clock.advance(time.Minute)
	if err := s.Delete(ctx, receiptMutation(d, "u1", "r1", entity.OpDelete, nil)); err != nil {
		t.Fatal(err)
	}
	if rec, _ := s.Get(d, "r1"); !rec.IsDeleted {
		t.Fatal("expected tombstone after delete")
	}

	clock.advance(time.Minute)
	if err := s.Create(ctx, create); err != nil {
		t.Fatal(err)
	}
	again, _ := s.Get(d, "r1")
	if again.IsDeleted {
		t.Error("create should clear the tombstone")
	}
	if !again.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", first.CreatedAt, again.CreatedAt)
	}
	if !again.UpdatedAt.After(first.UpdatedAt) {
		t.Error("UpdatedAt should advance on re-create")
	}

	live, err := s.ListLive(ctx, d, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 1 {
		t.Errorf("ListLive() = %d rows, want 1", len(live))
	}
}

func TestStore_CreateForeignRowIsIgnored(t *testing.T) {
	s, _, reg := setup(t)
	ctx := context.Background()
	d := descriptor(t, reg, "receipt")

	if err := s.Create(ctx, receiptMutation(d, "owner", "r1", entity.OpCreate, &entity.Receipt{MerchantName: entity.Some("Maxi")})); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, receiptMutation(d, "intruder", "r1", entity.OpCreate, &entity.Receipt{MerchantName: entity.Some("Idea")})); err != nil {
		t.Fatal(err)
	}

	rec, _ := s.Get(d, "r1")
	if rec.UserID != "owner" {
		t.Errorf("owner = %q, want owner", rec.UserID)
	}
	if got := rec.Payload.(*entity.Receipt).MerchantName.Value; got != "Maxi" {
		t.Errorf("merchantName = %q, want Maxi", got)
	}
}

func TestStore_UpdateMergesPresentFields(t *testing.T) {
	s, _, reg := setup(t)
	ctx := context.Background()
	d := descriptor(t, reg, "receipt")

	if err := s.Create(ctx, receiptMutation(d, "u1", "r1", entity.OpCreate, &entity.Receipt{
		MerchantName: entity.Some("Maxi"),
		TotalAmount:  entity.Some(450.0),
		Notes:        entity.Some("groceries"),
	})); err != nil {
		t.Fatal(err)
	}

	update := &entity.Receipt{
		TotalAmount: entity.Some(500.0),
		Notes:       entity.Optional[string]{Set: true, Null: true},
	}
	if err := s.Update(ctx, receiptMutation(d, "u1", "r1", entity.OpUpdate, update)); err != nil {
		t.Fatal(err)
	}

	rec, _ := s.Get(d, "r1")
	r := rec.Payload.(*entity.Receipt)
	if r.TotalAmount.Value != 500.0 {
		t.Errorf("totalAmount = %v, want 500", r.TotalAmount.Value)
	}
	if r.MerchantName.Value != "Maxi" {
		t.Errorf("merchantName = %q, want Maxi", r.MerchantName.Value)
	}
	if r.Notes.Value != "groceries" {
		t.Errorf("notes = %q, null in update should keep stored value", r.Notes.Value)
	}
}

func TestStore_MissingAndForeignRowsAreNoOps(t *testing.T) {
	s, _, reg := setup(t)
	ctx := context.Background()
	d := descriptor(t, reg, "receipt")

	tests := []struct {
		name string
		m    syncer.Mutation
		fn   func(context.Context, syncer.Mutation) error
	}{
		{"update missing", receiptMutation(d, "u1", "nope", entity.OpUpdate, &entity.Receipt{Notes: entity.Some("x")}), s.Update},
		{"delete missing", receiptMutation(d, "u1", "nope", entity.OpDelete, nil), s.Delete},
		{"update foreign", receiptMutation(d, "u2", "r1", entity.OpUpdate, &entity.Receipt{Notes: entity.Some("x")}), s.Update},
		{"delete foreign", receiptMutation(d, "u2", "r1", entity.OpDelete, nil), s.Delete},
	}

	if err := s.Create(ctx, receiptMutation(d, "u1", "r1", entity.OpCreate, &entity.Receipt{MerchantName: entity.Some("Maxi")})); err != nil {
		t.Fatal(err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(ctx, tt.m); err != nil {
				t.Fatalf("error = %v, want nil", err)
			}
		})
	}

	rec, _ := s.Get(d, "r1")
	r := rec.Payload.(*entity.Receipt)
	if rec.IsDeleted || r.Notes.Present() {
		t.Error("rows owned by another user must not change")
	}
	if _, ok := s.Get(d, "nope"); ok {
		t.Error("update of a missing row must not create it")
	}
}

func TestStore_SettingsDeleteIsHard(t *testing.T) {
	s, _, reg := setup(t)
	ctx := context.Background()
	d := descriptor(t, reg, "settings")

	m := syncer.Mutation{Descriptor: d, UserID: "u1", EntityID: "s1", Operation: entity.OpCreate, Payload: &entity.Settings{Theme: entity.Some("dark")}}
	if err := s.Create(ctx, m); err != nil {
		t.Fatal(err)
	}
	m.Operation, m.Payload = entity.OpDelete, nil
	if err := s.Delete(ctx, m); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get(d, "s1"); ok {
		t.Error("settings row should be removed")
	}
}

func TestStore_ListLiveAndStats(t *testing.T) {
	s, clock, reg := setup(t)
	ctx := context.Background()
	d := descriptor(t, reg, "receipt")

	for _, id := range []string{"r1", "r2", "r3"} {
		if err := s.Create(ctx, receiptMutation(d, "u1", id, entity.OpCreate, &entity.Receipt{MerchantName: entity.Some(id)})); err != nil {
			t.Fatal(err)
		}
		clock.advance(time.Second)
	}
	if err := s.Create(ctx, receiptMutation(d, "u2", "other", entity.OpCreate, &entity.Receipt{MerchantName: entity.Some("x")})); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, receiptMutation(d, "u1", "r2", entity.OpDelete, nil)); err != nil {
		t.Fatal(err)
	}

	live, err := s.ListLive(ctx, d, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 2 || live[0].ID != "r3" || live[1].ID != "r1" {
		t.Errorf("ListLive() ids = %v, want [r3 r1]", ids(live))
	}

	stats, err := s.Stats(ctx, d, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Count != 2 {
		t.Errorf("Count = %d, want 2", stats.Count)
	}
	if stats.LatestUpdated == nil || !stats.LatestUpdated.Equal(live[0].UpdatedAt) {
		t.Errorf("LatestUpdated = %v, want %v", stats.LatestUpdated, live[0].UpdatedAt)
	}

	empty, err := s.Stats(ctx, d, "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if empty.Count != 0 || empty.LatestUpdated != nil {
		t.Errorf("Stats(nobody) = %+v, want zero", empty)
	}
}

func TestStore_ListLiveReturnsCopies(t *testing.T) {
	s, _, reg := setup(t)
	ctx := context.Background()
	d := descriptor(t, reg, "receipt")

	if err := s.Create(ctx, receiptMutation(d, "u1", "r1", entity.OpCreate, &entity.Receipt{MerchantName: entity.Some("Maxi")})); err != nil {
		t.Fatal(err)
	}
	live, _ := s.ListLive(ctx, d, "u1")
	live[0].Payload.(*entity.Receipt).MerchantName = entity.Some("changed")

	rec, _ := s.Get(d, "r1")
	if got := rec.Payload.(*entity.Receipt).MerchantName.Value; got != "Maxi" {
		t.Errorf("stored merchantName = %q, want Maxi", got)
	}
}

func TestStore_SetFault(t *testing.T) {
	s, _, reg := setup(t)
	ctx := context.Background()
	d := descriptor(t, reg, "document")
	boom := errors.New("boom")

	s.SetFault(entity.KindDocument, boom)
	if _, err := s.ListLive(ctx, d, "u1"); !errors.Is(err, boom) {
		t.Errorf("ListLive() error = %v, want boom", err)
	}
	if _, err := s.Stats(ctx, d, "u1"); !errors.Is(err, boom) {
		t.Errorf("Stats() error = %v, want boom", err)
	}

	s.SetFault(entity.KindDocument, nil)
	if _, err := s.ListLive(ctx, d, "u1"); err != nil {
		t.Errorf("ListLive() after clear error = %v", err)
	}
}

func ids(records []entity.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
