package accesslog

import "testing"

func TestSanitize_RedactsNestedKeys(t *testing.T) {
	in := map[string]any{
		"password": "x",
		"items": []any{
			map[string]any{"token": "y", "sku": "A-1"},
		},
		"customer": map[string]any{
			"CreditCardNumber": "4111111111111111",
			"name":             "Acme",
		},
	}

	out := Sanitize(in)

	if out["password"] != RedactionMarker {
		t.Fatalf("password not redacted: %v", out["password"])
	}
	item := out["items"].([]any)[0].(map[string]any)
	if item["token"] != RedactionMarker {
		t.Fatalf("nested token not redacted: %v", item["token"])
	}
	if item["sku"] != "A-1" {
		t.Fatalf("non-sensitive value changed: %v", item["sku"])
	}
	cust := out["customer"].(map[string]any)
	if cust["CreditCardNumber"] != RedactionMarker {
		t.Fatalf("mixed-case card key not redacted: %v", cust["CreditCardNumber"])
	}
	if cust["name"] != "Acme" {
		t.Fatalf("name changed: %v", cust["name"])
	}

	// Input must not be mutated.
	if in["password"] != "x" {
		t.Fatalf("input mutated")
	}
}

func TestSanitize_SubstringKeysCaught(t *testing.T) {
	in := map[string]any{
		"access_token": "abc",
		"api_key_id":   "k1",
		"user_ssn":     "123-45-6789",
		"quantity":     3,
	}
	out := Sanitize(in)
	for _, k := range []string{"access_token", "api_key_id", "user_ssn"} {
		if out[k] != RedactionMarker {
			t.Fatalf("%s not redacted: %v", k, out[k])
		}
	}
	if out["quantity"] != 3 {
		t.Fatalf("quantity changed: %v", out["quantity"])
	}
}

func TestSanitize_NilStaysNil(t *testing.T) {
	if Sanitize(nil) != nil {
		t.Fatalf("expected nil")
	}
}
