package checkout

import (
	"strings"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// RawContact — свободная форма контактных полей, приходящая от исторических
// клиентов. Одни и те же данные встречаются под разными именами; нормализация
// выполняется ровно один раз при создании интента и ниже по пайплайну
// не повторяется.
type RawContact struct {
	Name         string `json:"name"`
	FullName     string `json:"full_name"`
	CustomerName string `json:"customer_name"`

	Email         string `json:"email"`
	CustomerEmail string `json:"customer_email"`

	Phone         string `json:"phone"`
	PhoneNumber   string `json:"phone_number"`
	Mobile        string `json:"mobile"`
	ContactNumber string `json:"contact_number"`

	Address        string `json:"address"`
	AddressLine    string `json:"address_line"`
	StreetAddress  string `json:"street_address"`
	ShippingStreet string `json:"shipping_address"`

	City string `json:"city"`
	Town string `json:"town"`

	State    string `json:"state"`
	Province string `json:"province"`
	Region   string `json:"region"`

	PostalCode string `json:"postal_code"`
	Pincode    string `json:"pincode"`
	Zip        string `json:"zip"`
	ZipCode    string `json:"zip_code"`

	ShippingPhone string `json:"shipping_phone"`
}

// Normalize сводит альтернативные написания полей к каноничной форме.
// Порядок приоритета фиксированный: явное shipping-поле, затем контактные
// fallback-и в порядке объявления.
func Normalize(raw RawContact) (domain.CustomerInfo, domain.ShippingAddress) {
	customer := domain.CustomerInfo{
		Name:  firstNonEmpty(raw.Name, raw.FullName, raw.CustomerName),
		Email: firstNonEmpty(raw.Email, raw.CustomerEmail),
		Phone: firstNonEmpty(raw.Phone, raw.PhoneNumber, raw.Mobile, raw.ContactNumber),
	}

	shipping := domain.ShippingAddress{
		Address:    firstNonEmpty(raw.Address, raw.AddressLine, raw.StreetAddress, raw.ShippingStreet),
		City:       firstNonEmpty(raw.City, raw.Town),
		State:      firstNonEmpty(raw.State, raw.Province, raw.Region),
		PostalCode: firstNonEmpty(raw.PostalCode, raw.Pincode, raw.Zip, raw.ZipCode),
		Phone:      firstNonEmpty(raw.ShippingPhone, customer.Phone),
	}

	return customer, shipping
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
