package options

import (
	"context"
	"testing"
)

func TestStore_GetReturnsDefaultsUntilSaved(t *testing.T) {
	s := NewStore(NewMemoryRepo(), Defaults())
	o := s.Get()
	if o.APIMaxRequests != 60 || o.RetentionDays != 90 {
		t.Fatalf("unexpected defaults: %+v", o)
	}
}

func TestStore_SavePersistsAndApplies(t *testing.T) {
	repo := NewMemoryRepo()
	s := NewStore(repo, Defaults())

	o := Defaults()
	o.APIMaxRequests = 5
	o.AllowlistMode = AllowlistMandatory
	if err := s.Save(context.Background(), o); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := s.Get(); got.APIMaxRequests != 5 || got.AllowlistMode != AllowlistMandatory {
		t.Fatalf("cache not swapped: %+v", got)
	}

	// A fresh store picks the saved row up on Reload.
	s2 := NewStore(repo, Defaults())
	if err := s2.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := s2.Get(); got.APIMaxRequests != 5 {
		t.Fatalf("reload did not apply saved row: %+v", got)
	}
}

func TestStore_SaveRejectsInvalid(t *testing.T) {
	s := NewStore(NewMemoryRepo(), Defaults())
	o := Defaults()
	o.AllowlistMode = "sometimes"
	if err := s.Save(context.Background(), o); err == nil {
		t.Fatalf("expected validation error")
	}
	if got := s.Get(); got.AllowlistMode != AllowlistOptional {
		t.Fatalf("invalid save must not touch cache: %+v", got)
	}
}

func TestValidate_RetentionDaysRequiredWhenEnabled(t *testing.T) {
	o := Defaults()
	o.RetentionDays = 0
	if err := o.Validate(); err == nil {
		t.Fatalf("expected error")
	}
	o.RetentionEnabled = false
	if err := o.Validate(); err != nil {
		t.Fatalf("disabled retention should not require days: %v", err)
	}
}
