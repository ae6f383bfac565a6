package reference

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
)

// Entity is any reference row returned by Search or Get.
type Entity interface {
	EntityKind() enums.ReferenceKind
	EntityID() string
}

type CustomerDTO struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Address     *string `json:"address,omitempty"`
	PaymentTerm *string `json:"payment_term,omitempty"`
}

func (CustomerDTO) EntityKind() enums.ReferenceKind { return enums.ReferenceCustomer }
func (c CustomerDTO) EntityID() string             { return c.ID }

type EmployeeDTO struct {
	ID             string     `json:"id"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	BirthDate      *time.Time `json:"birth_date,omitempty"`
	Gender         *string    `json:"gender,omitempty"`
	HireDate       *time.Time `json:"hire_date,omitempty"`
	SeparationDate *time.Time `json:"separation_date,omitempty"`
}

func (EmployeeDTO) EntityKind() enums.ReferenceKind { return enums.ReferenceEmployee }
func (e EmployeeDTO) EntityID() string             { return e.ID }

type ProductDTO struct {
	ID          string  `json:"id"`
	Description *string `json:"description,omitempty"`
	Unit        *string `json:"unit,omitempty"`
}

func (ProductDTO) EntityKind() enums.ReferenceKind { return enums.ReferenceProduct }
func (p ProductDTO) EntityID() string             { return p.ID }

type PriceRecordDTO struct {
	ProductID     string          `json:"product_id"`
	EffectiveDate time.Time       `json:"effective_date"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

func (PriceRecordDTO) EntityKind() enums.ReferenceKind { return enums.ReferencePrice }
func (p PriceRecordDTO) EntityID() string {
	return p.ProductID + "@" + p.EffectiveDate.Format("2006-01-02")
}

func FromCustomer(m models.Customer) CustomerDTO {
	return CustomerDTO{ID: m.ID, Name: m.Name, Address: m.Address, PaymentTerm: m.PaymentTerm}
}

func FromEmployee(m models.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:             m.ID,
		FirstName:      m.FirstName,
		LastName:       m.LastName,
		BirthDate:      m.BirthDate,
		Gender:         m.Gender,
		HireDate:       m.HireDate,
		SeparationDate: m.SeparationDate,
	}
}

func FromProduct(m models.Product) ProductDTO {
	return ProductDTO{ID: m.ID, Description: m.Description, Unit: m.Unit}
}

func FromPriceRecord(m models.PriceRecord) PriceRecordDTO {
	return PriceRecordDTO{ProductID: m.ProductID, EffectiveDate: m.EffectiveDate, UnitPrice: m.UnitPrice}
}
