package orders

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesledger/internal/access"
	"github.com/angelmondragon/salesledger/pkg/dates"
	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/logger"
	"github.com/angelmondragon/salesledger/pkg/metrics"
	"github.com/angelmondragon/salesledger/pkg/outbox"
	"github.com/angelmondragon/salesledger/pkg/outbox/payloads"
)

// Write steps reported on failed multi-step writes.
const (
	StepInsertHeader = "insert_header"
	StepUpdateHeader = "update_header"
	StepInsertLines  = "insert_lines"
	StepDeleteLines  = "delete_lines"
	StepUpdateLine   = "update_line"
	StepDeleteLine   = "delete_line"
	StepDeleteHeader = "delete_header"
	StepEmitEvent    = "emit_event"
)

const orderIDSavepoint = "order_id"

// Mutator performs the order writes. Each operation authorizes the caller
// against the store, validates everything before writing and applies all of
// its steps in one transaction together with its outbox event.
type Mutator interface {
	CreateOrder(ctx context.Context, principal access.Principal, input CreateOrderInput) (string, error)
	UpdateOrderHeader(ctx context.Context, principal access.Principal, orderID string, header HeaderInput) error
	ReplaceOrderLineItems(ctx context.Context, principal access.Principal, orderID string, lines []LineInput) error
	UpdateLineItemQuantity(ctx context.Context, principal access.Principal, orderID, productID string, quantity int) error
	DeleteLineItem(ctx context.Context, principal access.Principal, orderID, productID string) error
	DeleteOrder(ctx context.Context, principal access.Principal, orderID string) error
}

type MutatorParams struct {
	Repo       Repository
	Reference  referenceReader
	Prices     priceResolver
	Access     authorizer
	TX         txRunner
	Outbox     outboxPublisher
	Logger     *logger.Logger
	Metrics    *metrics.OperationMetrics
	IDs        IDGenerator
	IDAttempts int
	Now        func() time.Time
}

type mutator struct {
	repo       Repository
	reference  referenceReader
	prices     priceResolver
	access     authorizer
	tx         txRunner
	outbox     outboxPublisher
	logg       *logger.Logger
	metrics    *metrics.OperationMetrics
	newID      IDGenerator
	idAttempts int
	now        func() time.Time
}

func NewMutator(params MutatorParams) (Mutator, error) {
	switch {
	case params.Repo == nil:
		return nil, errors.New("orders repository required")
	case params.Reference == nil:
		return nil, errors.New("reference reader required")
	case params.Prices == nil:
		return nil, errors.New("price resolver required")
	case params.Access == nil:
		return nil, errors.New("access service required")
	case params.TX == nil:
		return nil, errors.New("transaction runner required")
	case params.Outbox == nil:
		return nil, errors.New("outbox publisher required")
	}
	m := &mutator{
		repo:       params.Repo,
		reference:  params.Reference,
		prices:     params.Prices,
		access:     params.Access,
		tx:         params.TX,
		outbox:     params.Outbox,
		logg:       params.Logger,
		metrics:    params.Metrics,
		newID:      params.IDs,
		idAttempts: params.IDAttempts,
		now:        params.Now,
	}
	if m.newID == nil {
		m.newID = RandomID
	}
	if m.idAttempts <= 0 {
		m.idAttempts = DefaultIDAttempts
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	return m, nil
}

func (m *mutator) CreateOrder(ctx context.Context, principal access.Principal, input CreateOrderInput) (string, error) {
	var orderID string
	err := m.run(ctx, "order_create", principal, strings.TrimSpace(input.Header.ID), func(ctx context.Context, actor *access.Principal) error {
		id, err := m.createOrder(ctx, actor, input)
		orderID = id
		return err
	})
	if err != nil {
		return "", err
	}
	return orderID, nil
}

func (m *mutator) createOrder(ctx context.Context, actor *access.Principal, input CreateOrderInput) (string, error) {
	requestedID := strings.TrimSpace(input.Header.ID)
	if len(requestedID) > MaxIDLength {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "order id %q exceeds %d characters", requestedID, MaxIDLength).
			WithDetails(map[string]string{"id": requestedID})
	}
	header, err := normalizeHeader(input.Header)
	if err != nil {
		return "", err
	}
	lines, err := normalizeLines(input.Lines)
	if err != nil {
		return "", err
	}
	if err := m.checkParties(ctx, header); err != nil {
		return "", err
	}
	charged, err := m.pricesFor(ctx, lines)
	if err != nil {
		return "", err
	}

	createdBy := actor.ID
	order := &models.Order{
		ID:         requestedID,
		OrderDate:  header.Date,
		CustomerID: header.CustomerID,
		EmployeeID: header.EmployeeID,
		CreatedBy:  &createdBy,
	}

	err = m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := m.repo.WithTx(tx)
		if err := m.insertOrder(ctx, tx, repo, order, requestedID != ""); err != nil {
			return err
		}
		items := buildLineItems(order.ID, lines, charged)
		if err := repo.CreateLineItems(ctx, items); err != nil {
			return stepError(err, StepInsertLines)
		}
		eventLines, total := eventLines(items)
		return m.emit(ctx, tx, actor, order.ID, enums.EventOrderCreated, payloads.OrderCreatedEvent{
			OrderID:    order.ID,
			OrderDate:  dates.Format(order.OrderDate),
			CustomerID: order.CustomerID,
			EmployeeID: order.EmployeeID,
			Lines:      eventLines,
			Total:      total,
		})
	})
	if err != nil {
		return order.ID, err
	}
	return order.ID, nil
}

// insertOrder writes the header. Generated ids are retried under a savepoint
// when they collide with an existing order.
func (m *mutator) insertOrder(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, requested bool) error {
	if requested {
		if err := repo.CreateOrder(ctx, order); err != nil {
			if isDuplicateOrderID(err) {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "order %s already exists", order.ID).WithStep(StepInsertHeader)
			}
			return stepError(err, StepInsertHeader)
		}
		return nil
	}

	for attempt := 1; attempt <= m.idAttempts; attempt++ {
		id, err := m.newID()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order id").WithStep(StepInsertHeader)
		}
		order.ID = id
		if err := tx.SavePoint(orderIDSavepoint).Error; err != nil {
			return stepError(err, StepInsertHeader)
		}
		err = repo.CreateOrder(ctx, order)
		if err == nil {
			return nil
		}
		if rbErr := tx.RollbackTo(orderIDSavepoint).Error; rbErr != nil {
			return stepError(rbErr, StepInsertHeader)
		}
		if !isDuplicateOrderID(err) {
			return stepError(err, StepInsertHeader)
		}
		if m.logg != nil {
			m.logg.Debug(m.logg.WithFields(ctx, map[string]any{"order_id": id, "attempt": attempt}), "order id collision")
		}
	}
	order.ID = ""
	return pkgerrors.Newf(pkgerrors.CodeConflict, "no free order id after %d attempts", m.idAttempts).WithStep(StepInsertHeader)
}

func (m *mutator) UpdateOrderHeader(ctx context.Context, principal access.Principal, orderID string, input HeaderInput) error {
	orderID = strings.TrimSpace(orderID)
	return m.run(ctx, "order_update_header", principal, orderID, func(ctx context.Context, actor *access.Principal) error {
		if orderID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
		}
		header, err := normalizeHeader(input)
		if err != nil {
			return err
		}
		if err := m.checkParties(ctx, header); err != nil {
			return err
		}
		return m.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := m.repo.WithTx(tx).UpdateOrderHeader(ctx, orderID, header); err != nil {
				return notFoundOr(err, orderID, StepUpdateHeader)
			}
			return m.emit(ctx, tx, actor, orderID, enums.EventOrderHeaderUpdated, payloads.OrderHeaderUpdatedEvent{
				OrderID:    orderID,
				OrderDate:  dates.Format(header.Date),
				CustomerID: header.CustomerID,
				EmployeeID: header.EmployeeID,
			})
		})
	})
}

// ReplaceOrderLineItems swaps the full line set. An empty set is rejected.
func (m *mutator) ReplaceOrderLineItems(ctx context.Context, principal access.Principal, orderID string, input []LineInput) error {
	orderID = strings.TrimSpace(orderID)
	return m.run(ctx, "order_replace_lines", principal, orderID, func(ctx context.Context, actor *access.Principal) error {
		if orderID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
		}
		lines, err := normalizeLines(input)
		if err != nil {
			return err
		}
		charged, err := m.pricesFor(ctx, lines)
		if err != nil {
			return err
		}
		return m.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := m.repo.WithTx(tx)
			if _, err := repo.FindOrder(ctx, orderID); err != nil {
				return notFoundOr(err, orderID, StepDeleteLines)
			}
			if err := repo.DeleteLineItems(ctx, orderID); err != nil {
				return stepError(err, StepDeleteLines)
			}
			items := buildLineItems(orderID, lines, charged)
			if err := repo.CreateLineItems(ctx, items); err != nil {
				return stepError(err, StepInsertLines)
			}
			eventLines, total := eventLines(items)
			return m.emit(ctx, tx, actor, orderID, enums.EventOrderLinesReplaced, payloads.OrderLinesReplacedEvent{
				OrderID: orderID,
				Lines:   eventLines,
				Total:   total,
			})
		})
	})
}

// UpdateLineItemQuantity keeps the charged price the line was written with.
func (m *mutator) UpdateLineItemQuantity(ctx context.Context, principal access.Principal, orderID, productID string, quantity int) error {
	orderID = strings.TrimSpace(orderID)
	productID = strings.TrimSpace(productID)
	return m.run(ctx, "order_update_line", principal, orderID, func(ctx context.Context, actor *access.Principal) error {
		if orderID == "" || productID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "order id and product id are required")
		}
		if quantity < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"product_id": productID, "quantity": quantity})
		}
		return m.tx.WithTx(ctx, func(tx *gorm.DB) error {
			item, err := m.repo.WithTx(tx).UpdateLineItemQuantity(ctx, orderID, productID, quantity)
			if err != nil {
				return lineNotFoundOr(err, orderID, productID, StepUpdateLine)
			}
			return m.emit(ctx, tx, actor, orderID, enums.EventOrderLineUpdated, payloads.OrderLineChangedEvent{
				OrderID: orderID,
				Line:    eventLine(*item),
			})
		})
	})
}

func (m *mutator) DeleteLineItem(ctx context.Context, principal access.Principal, orderID, productID string) error {
	orderID = strings.TrimSpace(orderID)
	productID = strings.TrimSpace(productID)
	return m.run(ctx, "order_delete_line", principal, orderID, func(ctx context.Context, actor *access.Principal) error {
		if orderID == "" || productID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "order id and product id are required")
		}
		return m.tx.WithTx(ctx, func(tx *gorm.DB) error {
			item, err := m.repo.WithTx(tx).DeleteLineItem(ctx, orderID, productID)
			if err != nil {
				return lineNotFoundOr(err, orderID, productID, StepDeleteLine)
			}
			return m.emit(ctx, tx, actor, orderID, enums.EventOrderLineDeleted, payloads.OrderLineChangedEvent{
				OrderID: orderID,
				Line:    eventLine(*item),
			})
		})
	})
}

// DeleteOrder removes the lines and then the header.
func (m *mutator) DeleteOrder(ctx context.Context, principal access.Principal, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	return m.run(ctx, "order_delete", principal, orderID, func(ctx context.Context, actor *access.Principal) error {
		if orderID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
		}
		return m.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := m.repo.WithTx(tx)
			if err := repo.DeleteLineItems(ctx, orderID); err != nil {
				return stepError(err, StepDeleteLines)
			}
			if err := repo.DeleteOrder(ctx, orderID); err != nil {
				return notFoundOr(err, orderID, StepDeleteHeader)
			}
			return m.emit(ctx, tx, actor, orderID, enums.EventOrderDeleted, payloads.OrderDeletedEvent{
				OrderID:   orderID,
				DeletedAt: m.now(),
			})
		})
	})
}

var operationActions = map[string]enums.OrderAction{
	"order_create":        enums.OrderActionCreate,
	"order_update_header": enums.OrderActionEdit,
	"order_replace_lines": enums.OrderActionEdit,
	"order_update_line":   enums.OrderActionEdit,
	"order_delete_line":   enums.OrderActionDelete,
	"order_delete":        enums.OrderActionDelete,
}

// run authorizes the caller for op, then runs fn with the freshly loaded
// principal, recording metrics and logging the outcome.
func (m *mutator) run(ctx context.Context, op string, principal access.Principal, orderID string, fn func(ctx context.Context, actor *access.Principal) error) error {
	done := m.metrics.Track(op, metrics.ClassifyError)
	if m.logg != nil && orderID != "" {
		ctx = m.logg.WithOrderID(ctx, orderID)
	}

	actor, err := m.access.Authorize(ctx, principal.ID, operationActions[op])
	if err == nil {
		if m.logg != nil {
			ctx = m.logg.WithPrincipal(ctx, actor.ID.String(), actor.Role.String())
		}
		err = fn(ctx, actor)
	}
	done(err)

	if m.logg != nil {
		logCtx := m.logg.WithField(ctx, "operation", op)
		if err != nil {
			fields := map[string]any{"error_code": pkgerrors.CodeOf(err)}
			if typed := pkgerrors.As(err); typed != nil && typed.Step() != "" {
				fields["step"] = typed.Step()
			}
			m.logg.Warn(m.logg.WithFields(logCtx, fields), "order write failed")
		} else {
			m.logg.Info(logCtx, "order write applied")
		}
	}
	return err
}

func (m *mutator) emit(ctx context.Context, tx *gorm.DB, actor *access.Principal, orderID string, eventType enums.OutboxEventType, data any) error {
	err := m.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         &outbox.ActorRef{PrincipalID: actor.ID, Role: actor.Role.String()},
		Data:          data,
	})
	if err != nil {
		return stepError(err, StepEmitEvent)
	}
	return nil
}

// checkParties verifies the customer and employee references of a header.
func (m *mutator) checkParties(ctx context.Context, header Header) error {
	if header.CustomerID != nil {
		if _, err := m.reference.FindCustomer(ctx, *header.CustomerID); err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown customer %s", *header.CustomerID).
					WithDetails(map[string]string{"customer_id": *header.CustomerID})
			}
			return dbpkg.StoreError(err, "load customer")
		}
	}
	if header.EmployeeID != nil {
		if _, err := m.reference.FindEmployee(ctx, *header.EmployeeID); err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown employee %s", *header.EmployeeID).
					WithDetails(map[string]string{"employee_id": *header.EmployeeID})
			}
			return dbpkg.StoreError(err, "load employee")
		}
	}
	return nil
}

// pricesFor checks every product exists and resolves the price each line is
// charged at. Products without a price record are charged nothing.
func (m *mutator) pricesFor(ctx context.Context, lines []LineInput) (map[string]decimal.Decimal, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := m.reference.FindProductsByIDs(ctx, ids)
	if err != nil {
		return nil, dbpkg.StoreError(err, "load products")
	}
	var missing []string
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown product %s", strings.Join(missing, ", ")).
			WithDetails(map[string][]string{"unknown_products": missing})
	}
	return m.prices.CurrentPrices(ctx, ids)
}

func normalizeHeader(in HeaderInput) (Header, error) {
	date, err := dates.Parse(in.Date)
	if err != nil {
		return Header{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order date").
			WithDetails(map[string]string{"date": in.Date})
	}
	return Header{
		Date:       date,
		CustomerID: optionalID(in.CustomerID),
		EmployeeID: optionalID(in.EmployeeID),
	}, nil
}

func normalizeLines(in []LineInput) ([]LineInput, error) {
	if len(in) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line item is required")
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]LineInput, 0, len(in))
	for i, line := range in {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: product_id is required", i+1)
		}
		if line.Quantity < 1 {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: quantity must be at least 1", i+1).
				WithDetails(map[string]any{"product_id": productID, "quantity": line.Quantity})
		}
		if _, dup := seen[productID]; dup {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "product %s appears more than once", productID).
				WithDetails(map[string]string{"product_id": productID})
		}
		seen[productID] = struct{}{}
		out = append(out, LineInput{ProductID: productID, Quantity: line.Quantity})
	}
	return out, nil
}

func optionalID(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func buildLineItems(orderID string, lines []LineInput, charged map[string]decimal.Decimal) []models.OrderLineItem {
	items := make([]models.OrderLineItem, 0, len(lines))
	for _, line := range lines {
		item := models.OrderLineItem{
			OrderID:   orderID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		}
		if price, ok := charged[line.ProductID]; ok {
			item.ChargedUnitPrice = decimal.NewNullDecimal(price)
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items
}

func eventLine(item models.OrderLineItem) payloads.OrderLine {
	line := payloads.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity}
	if item.ChargedUnitPrice.Valid {
		line.ChargedUnitPrice = item.ChargedUnitPrice.Decimal.StringFixed(2)
	}
	return line
}

func eventLines(items []models.OrderLineItem) ([]payloads.OrderLine, string) {
	lines := make([]payloads.OrderLine, 0, len(items))
	total := decimal.Zero
	for _, item := range items {
		lines = append(lines, eventLine(item))
		if item.ChargedUnitPrice.Valid {
			total = total.Add(item.ChargedUnitPrice.Decimal.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}
	return lines, total.StringFixed(2)
}

// stepError types a store failure and tags the step it happened in.
func stepError(err error, step string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	typed := pkgerrors.As(dbpkg.StoreError(err, strings.ReplaceAll(step, "_", " ")))
	return typed.WithStep(step)
}

func notFoundOr(err error, orderID, step string) error {
	if dbpkg.IsNotFound(err) {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s not found", orderID)
	}
	return stepError(err, step)
}

func lineNotFoundOr(err error, orderID, productID, step string) error {
	if dbpkg.IsNotFound(err) {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s has no line for product %s", orderID, productID)
	}
	return stepError(err, step)
}
