package enums

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const AggregateOrder OutboxAggregateType = "order"

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder
}

// OutboxEventType is published as the event_type message attribute.
type OutboxEventType string

const (
	// EventOrderConfirmed is queued at most once per order.
	EventOrderConfirmed     OutboxEventType = "order_confirmed"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventOrderCancelled     OutboxEventType = "order_cancelled"
)

var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderConfirmed:     AggregateOrder,
	EventOrderStatusChanged: AggregateOrder,
	EventOrderCancelled:     AggregateOrder,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate is the aggregate type every event of this type must carry.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}
