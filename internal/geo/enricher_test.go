package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestLookup_ResolvesPublicIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/8.8.8.8" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"status":"success","countryCode":"US","regionName":"California","city":"Mountain View"}`))
	}))
	defer srv.Close()

	e := NewEnricher(srv.URL, time.Second, nil)
	loc, err := e.Lookup(context.Background(), "8.8.8.8")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if loc.CountryCode != "US" || loc.Region != "California" || loc.City != "Mountain View" {
		t.Fatalf("unexpected location: %+v", loc)
	}
}

func TestLookup_SkipsPrivateAndInvalidIPs(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	e := NewEnricher(srv.URL, time.Second, nil)
	for _, ip := range []string{"10.0.0.5", "127.0.0.1", "not-an-ip", ""} {
		loc, err := e.Lookup(context.Background(), ip)
		if err != nil {
			t.Fatalf("lookup %q: %v", ip, err)
		}
		if loc != (Location{}) {
			t.Fatalf("expected zero location for %q, got %+v", ip, loc)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no upstream calls, got %d", calls.Load())
	}
}

func TestLookup_FailedStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"fail"}`))
	}))
	defer srv.Close()

	e := NewEnricher(srv.URL, time.Second, nil)
	loc, err := e.Lookup(context.Background(), "8.8.8.8")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if loc != (Location{}) {
		t.Fatalf("expected zero location, got %+v", loc)
	}
}

func TestLookup_UpstreamErrorReturnsErrUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewEnricher(srv.URL, time.Second, nil)
	if _, err := e.Lookup(context.Background(), "8.8.8.8"); err == nil {
		t.Fatalf("expected error")
	}
}
