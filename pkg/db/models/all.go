package models

// All lists every persisted model in dependency order. Used for test schemas and dev sqlite.
func All() []any {
	return []any{
		&Product{},
		&Variant{},
		&StockLocation{},
		&InventoryLevel{},
		&Reservation{},
		&ReservationLine{},
		&Order{},
		&OrderItem{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
