package seed

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Document is the YAML seed file layout. Dates and prices are kept as text
// until they are parsed so that YAML never coerces them through floats.
type Document struct {
	Customers []CustomerEntry `yaml:"customers" validate:"dive"`
	Employees []EmployeeEntry `yaml:"employees" validate:"dive"`
	Products  []ProductEntry  `yaml:"products" validate:"dive"`
	Prices    []PriceEntry    `yaml:"prices" validate:"dive"`
}

type CustomerEntry struct {
	ID          string `yaml:"id" validate:"required,max=16"`
	Name        string `yaml:"name" validate:"required"`
	Address     string `yaml:"address"`
	PaymentTerm string `yaml:"payment_term"`
}

type EmployeeEntry struct {
	ID             string `yaml:"id" validate:"required,max=16"`
	FirstName      string `yaml:"first_name" validate:"required"`
	LastName       string `yaml:"last_name" validate:"required"`
	BirthDate      string `yaml:"birth_date"`
	Gender         string `yaml:"gender"`
	HireDate       string `yaml:"hire_date"`
	SeparationDate string `yaml:"separation_date"`
}

type ProductEntry struct {
	ID          string `yaml:"id" validate:"required,max=16"`
	Description string `yaml:"description"`
	Unit        string `yaml:"unit"`
}

type PriceEntry struct {
	ProductID     string `yaml:"product_id" validate:"required"`
	EffectiveDate string `yaml:"effective_date" validate:"required"`
	UnitPrice     string `yaml:"unit_price" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Parse decodes and validates a seed document. Unknown keys are rejected.
func Parse(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := validate.Struct(&doc); err != nil {
		return nil, describe(err)
	}
	return &doc, nil
}

func describe(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("invalid seed file: %w", err)
	}
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, fmt.Sprintf("%s %s", strings.TrimPrefix(fe.Namespace(), "Document."), fe.Tag()))
	}
	return fmt.Errorf("invalid seed file: %s", strings.Join(parts, "; "))
}
