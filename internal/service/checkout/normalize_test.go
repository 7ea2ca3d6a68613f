package checkout

import "testing"

func TestNormalizePrecedence(t *testing.T) {
	customer, shipping := Normalize(RawContact{
		Name:     "Asha",
		FullName: "Asha K",

		CustomerEmail: "asha@example.com",

		PhoneNumber: "+91-900000001",
		Mobile:      "+91-900000002",

		AddressLine: "12 MG Road",
		City:        "Pune",
		Province:    "MH",
		Pincode:     "411001",
	})

	// Первое непустое написание побеждает.
	if customer.Name != "Asha" {
		t.Errorf("expected name Asha, got %s", customer.Name)
	}
	if customer.Email != "asha@example.com" {
		t.Errorf("expected fallback email, got %s", customer.Email)
	}
	if customer.Phone != "+91-900000001" {
		t.Errorf("phone_number outranks mobile, got %s", customer.Phone)
	}
	if shipping.Address != "12 MG Road" || shipping.State != "MH" || shipping.PostalCode != "411001" {
		t.Errorf("alternate spellings not normalized: %+v", shipping)
	}
	// Телефон доставки берётся из контактного, если свой не указан.
	if shipping.Phone != "+91-900000001" {
		t.Errorf("expected customer phone fallback, got %s", shipping.Phone)
	}
}

func TestNormalizeExplicitShippingPhoneWins(t *testing.T) {
	_, shipping := Normalize(RawContact{
		Phone:         "+91-111",
		ShippingPhone: "+91-222",
	})
	if shipping.Phone != "+91-222" {
		t.Errorf("explicit shipping phone must win, got %s", shipping.Phone)
	}
}

func TestNormalizeTrimsWhitespace(t *testing.T) {
	customer, shipping := Normalize(RawContact{
		Name:    "  Asha  ",
		Address: "   ",
		Zip:     " 411001 ",
	})
	if customer.Name != "Asha" {
		t.Errorf("name not trimmed: %q", customer.Name)
	}
	if shipping.Address != "" {
		t.Errorf("whitespace-only field must stay empty, got %q", shipping.Address)
	}
	if shipping.PostalCode != "411001" {
		t.Errorf("postal code not trimmed: %q", shipping.PostalCode)
	}
}
