package orders

import "github.com/angelmondragon/storefront/pkg/enums"

// allowedTransitions is the order state machine. Terminal states have no entry.
// A pending order may ship directly without passing through processing.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusProcessing, enums.OrderStatusShipped, enums.OrderStatusCancelled, enums.OrderStatusRefunded},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCancelled, enums.OrderStatusRefunded},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered, enums.OrderStatusRefunded},
}

// cancellableStatuses are the states a customer may cancel from.
var cancellableStatuses = []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusProcessing}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func isCancellable(status enums.OrderStatus) bool {
	for _, s := range cancellableStatuses {
		if s == status {
			return true
		}
	}
	return false
}
