package enums

import (
	"fmt"
	"strings"
)

// ReferenceKind selects a reference data table.
type ReferenceKind string

const (
	ReferenceCustomer ReferenceKind = "customer"
	ReferenceEmployee ReferenceKind = "employee"
	ReferenceProduct  ReferenceKind = "product"
	ReferencePrice    ReferenceKind = "price"
)

var validReferenceKinds = []ReferenceKind{
	ReferenceCustomer,
	ReferenceEmployee,
	ReferenceProduct,
	ReferencePrice,
}

func (k ReferenceKind) String() string {
	return string(k)
}

func (k ReferenceKind) IsValid() bool {
	for _, candidate := range validReferenceKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseReferenceKind accepts singular or plural forms ("customers").
func ParseReferenceKind(value string) (ReferenceKind, error) {
	normalized := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(value)), "s")
	for _, candidate := range validReferenceKinds {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reference kind %q", value)
}
