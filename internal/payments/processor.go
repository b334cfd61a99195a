package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/granta-app/granta/internal/db"
	"github.com/granta-app/granta/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store defines the persistence operations the processor needs.
type Store interface {
	GetOrderByProcessorRef(ctx context.Context, ref string) (*models.Order, error)
	CreateOrder(ctx context.Context, o *models.Order) error
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error
	GetEntitlementsByOrderID(ctx context.Context, orderID uuid.UUID) ([]*models.Entitlement, error)
	SuspendEntitlementsByOrderID(ctx context.Context, orderID uuid.UUID) (int64, error)

	GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	CreateCustomer(ctx context.Context, c *models.Customer) error
}

// Issuer grants entitlements for paid orders.
type Issuer interface {
	IssueForOrder(ctx context.Context, orderID, productID uuid.UUID, customerID *uuid.UUID, maxDownloads *int, expiresAt *time.Time) (*models.Entitlement, error)
}

// Result reports what processing an event did, for logging and metrics.
type Result struct {
	OrderID uuid.UUID
	Issued  int
	Revoked int64
	Replay  bool
}

// ErrUnknownEventType is returned for event types Granta does not handle.
// Handlers acknowledge these with 200 so the processor stops retrying.
var ErrUnknownEventType = errors.New("payments: unknown event type")

// Processor turns verified webhook events into orders and entitlements.
type Processor struct {
	store  Store
	issuer Issuer
	logger zerolog.Logger
	now    func() time.Time
}

// NewProcessor creates a webhook event processor.
func NewProcessor(store Store, issuer Issuer, logger zerolog.Logger) *Processor {
	return &Processor{
		store:  store,
		issuer: issuer,
		logger: logger.With().Str("component", "payments").Logger(),
		now:    time.Now,
	}
}

// Process handles a verified event. Completed payments are idempotent by
// processor_ref: a replay finds the existing order and issues only the
// entitlements a previous partial failure left missing.
func (p *Processor) Process(ctx context.Context, event *Event) (*Result, error) {
	switch event.Type {
	case EventPaymentCompleted:
		return p.handleCompleted(ctx, event)
	case EventPaymentRefunded:
		return p.handleRefunded(ctx, event)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, event.Type)
	}
}

func (p *Processor) handleCompleted(ctx context.Context, event *Event) (*Result, error) {
	existing, err := p.store.GetOrderByProcessorRef(ctx, event.ProcessorRef)
	if err == nil {
		return p.replayCompleted(ctx, event, existing)
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	customerID, err := p.resolveCustomer(ctx, event.Customer)
	if err != nil {
		return nil, err
	}

	order := models.NewOrder(event.ProcessorRef, customerID, event.TotalCents, event.Currency)
	order.Status = models.OrderStatusPaid
	for _, line := range event.LineItems {
		item := models.NewOrderItem(order.ID, line.ProductID, line.Quantity, line.UnitPriceCents)
		order.Items = append(order.Items, *item)
	}

	if err := p.store.CreateOrder(ctx, order); err != nil {
		// A concurrent delivery of the same event can lose the race on the
		// processor_ref unique constraint. That is still a replay.
		if db.IsUniqueViolation(err) {
			existing, lookupErr := p.store.GetOrderByProcessorRef(ctx, event.ProcessorRef)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return &Result{OrderID: existing.ID, Replay: true}, nil
		}
		return nil, err
	}

	result := &Result{OrderID: order.ID}
	if err := p.issueLines(ctx, event, order.ID, customerID, nil, result); err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("processor_ref", event.ProcessorRef).
		Str("order_id", order.ID.String()).
		Int("entitlements_issued", result.Issued).
		Msg("payment completed")

	return result, nil
}

// replayCompleted handles a completed event whose order already exists. A
// previous delivery may have failed after creating the order but before
// every digital line item got its entitlement, so the replay issues only
// the grants still missing instead of short-circuiting.
func (p *Processor) replayCompleted(ctx context.Context, event *Event, order *models.Order) (*Result, error) {
	result := &Result{OrderID: order.ID, Replay: true}

	if order.Status == models.OrderStatusRefunded {
		p.logger.Info().
			Str("processor_ref", event.ProcessorRef).
			Str("order_id", order.ID.String()).
			Msg("replayed payment event for refunded order, issuing nothing")
		return result, nil
	}

	granted := make(map[uuid.UUID]struct{})
	entitlements, err := p.store.GetEntitlementsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	for _, ent := range entitlements {
		granted[ent.ProductID] = struct{}{}
	}

	if err := p.issueLines(ctx, event, order.ID, order.CustomerID, granted, result); err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("processor_ref", event.ProcessorRef).
		Str("order_id", order.ID.String()).
		Int("entitlements_issued", result.Issued).
		Msg("replayed payment event, order already processed")

	return result, nil
}

// issueLines grants one entitlement per digital line item, skipping
// products already present in granted.
func (p *Processor) issueLines(ctx context.Context, event *Event, orderID uuid.UUID, customerID *uuid.UUID, granted map[uuid.UUID]struct{}, result *Result) error {
	var expiresAt *time.Time
	if event.ExpiresInDays != nil && *event.ExpiresInDays > 0 {
		t := p.now().AddDate(0, 0, *event.ExpiresInDays)
		expiresAt = &t
	}

	for _, line := range event.LineItems {
		if _, ok := granted[line.ProductID]; ok {
			continue
		}

		product, err := p.store.GetProductByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				p.logger.Warn().
					Str("processor_ref", event.ProcessorRef).
					Str("product_id", line.ProductID.String()).
					Msg("payment references unknown product, skipping line")
				continue
			}
			return err
		}
		if !product.IsDigitalCapable() {
			continue
		}

		// One grant per line regardless of quantity.
		if _, err := p.issuer.IssueForOrder(ctx, orderID, product.ID, customerID, event.MaxDownloads, expiresAt); err != nil {
			return fmt.Errorf("issue entitlement for order %s: %w", orderID, err)
		}
		result.Issued++
	}

	return nil
}

func (p *Processor) handleRefunded(ctx context.Context, event *Event) (*Result, error) {
	order, err := p.store.GetOrderByProcessorRef(ctx, event.ProcessorRef)
	if err != nil {
		return nil, err
	}

	if order.Status != models.OrderStatusRefunded {
		if err := p.store.UpdateOrderStatus(ctx, order.ID, models.OrderStatusRefunded); err != nil {
			return nil, err
		}
	}

	revoked, err := p.store.SuspendEntitlementsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("processor_ref", event.ProcessorRef).
		Str("order_id", order.ID.String()).
		Int64("entitlements_revoked", revoked).
		Msg("payment refunded")

	return &Result{OrderID: order.ID, Revoked: revoked}, nil
}

// resolveCustomer finds or creates the buyer. Guest checkouts (no customer
// block, or no email) produce orders with no customer attached.
func (p *Processor) resolveCustomer(ctx context.Context, ec *EventCustomer) (*uuid.UUID, error) {
	if ec == nil || ec.Email == "" {
		return nil, nil
	}

	existing, err := p.store.GetCustomerByEmail(ctx, ec.Email)
	if err == nil {
		return &existing.ID, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	customer := models.NewCustomer(ec.Email, ec.Name, ec.Company)
	if err := p.store.CreateCustomer(ctx, customer); err != nil {
		if db.IsUniqueViolation(err) {
			existing, lookupErr := p.store.GetCustomerByEmail(ctx, ec.Email)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return &existing.ID, nil
		}
		return nil, err
	}
	return &customer.ID, nil
}
