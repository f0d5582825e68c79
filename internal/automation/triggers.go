package automation

import "opsflow/internal/models"

// Platform event types with registered triggers. The surrounding application
// may register more at startup; these cover the built-in business modules.
const (
	EventCustomerCreated        = "CUSTOMER_CREATED"
	EventOrderPlaced            = "ORDER_PLACED"
	EventInvoicePaid            = "INVOICE_PAID"
	EventInventoryStockAdjusted = "INVENTORY_STOCK_ADJUSTED"
	EventLoyaltyPointsEarned    = "LOYALTY_POINTS_EARNED"
	EventPriceChanged           = "PRICE_CHANGED"
)

// RegisterDefaultTriggers installs the standard context builder for every
// built-in event type. All built-in events share one shape: the tenant scope
// comes from the event envelope and the optional brand scope from a brandId
// payload field.
func RegisterDefaultTriggers(registry *TriggerRegistry) error {
	for _, eventType := range []string{
		EventCustomerCreated,
		EventOrderPlaced,
		EventInvoicePaid,
		EventInventoryStockAdjusted,
		EventLoyaltyPointsEarned,
		EventPriceChanged,
	} {
		if err := registry.Register(eventType, EnvelopeTriggerBuilder); err != nil {
			return err
		}
	}
	return nil
}

// EnvelopeTriggerBuilder derives the trigger context from the event envelope
// itself: companyId from the event, brandId from the payload when present.
func EnvelopeTriggerBuilder(evt models.DomainEvent) TriggerContext {
	tctx := TriggerContext{
		CompanyID: evt.CompanyID,
		Payload:   evt.Payload,
	}
	if brand, ok := evt.Payload["brandId"].(string); ok {
		tctx.BrandID = brand
	}
	return tctx
}
