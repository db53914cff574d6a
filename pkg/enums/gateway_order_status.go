package enums

// GatewayOrderStatus mirrors the lifecycle of a provider order on our side.
type GatewayOrderStatus string

const (
	GatewayOrderStatusCreated GatewayOrderStatus = "created"
	GatewayOrderStatusPaid    GatewayOrderStatus = "paid"
	GatewayOrderStatusExpired GatewayOrderStatus = "expired"
)

var gatewayOrderStatuses = newValueSet("gateway order status",
	GatewayOrderStatusCreated, GatewayOrderStatusPaid, GatewayOrderStatusExpired)

func (s GatewayOrderStatus) String() string { return string(s) }

func (s GatewayOrderStatus) IsValid() bool { return gatewayOrderStatuses.has(s) }
