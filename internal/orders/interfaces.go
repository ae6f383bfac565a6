package orders

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesledger/internal/access"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
	"github.com/angelmondragon/salesledger/pkg/outbox"
)

// Repository defines persistence operations for order headers and lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]models.Order, error)
	UpdateOrderHeader(ctx context.Context, id string, header Header) error
	DeleteOrder(ctx context.Context, id string) error
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	FindLineItems(ctx context.Context, orderID string) ([]models.OrderLineItem, error)
	DeleteLineItems(ctx context.Context, orderID string) error
	UpdateLineItemQuantity(ctx context.Context, orderID, productID string, quantity int) (*models.OrderLineItem, error)
	DeleteLineItem(ctx context.Context, orderID, productID string) (*models.OrderLineItem, error)
	CountOrders(ctx context.Context) (int64, error)
	CountActiveCustomers(ctx context.Context) (int64, error)
}

type referenceReader interface {
	FindCustomer(ctx context.Context, id string) (*models.Customer, error)
	FindEmployee(ctx context.Context, id string) (*models.Employee, error)
	FindProductsByIDs(ctx context.Context, ids []string) (map[string]models.Product, error)
}

type priceResolver interface {
	CurrentPrices(ctx context.Context, productIDs []string) (map[string]decimal.Decimal, error)
}

type authorizer interface {
	Resolve(ctx context.Context, principalID uuid.UUID) (*access.Principal, error)
	Authorize(ctx context.Context, principalID uuid.UUID, action enums.OrderAction) (*access.Principal, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}
