package procurement

// Операторы транзакции регистрации заказа в порядке выполнения.
const (
	insertPurchaseOrderSQL = `
		INSERT INTO purchase_orders (project_id, supplier_id, user_id, status, order_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	insertDeliverySQL = `
		INSERT INTO deliveries (purchase_order_id, arrival_date, transport_mode, distance_km, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	insertPurchaseOrderLineSQL = `
		INSERT INTO purchase_order_lines (purchase_order_id, line_no, part_id, qty, unit_price, due_date)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertDeliveryInclusionSQL = `
		INSERT INTO delivery_inclusions (delivery_id, purchase_order_id, line_no, delivered_qty, inspection)
		VALUES ($1, $2, $3, $4, $5)`

	// Инкремент одним условным оператором, без read-modify-write.
	upsertInventorySQL = `
		INSERT INTO inventory (warehouse_id, part_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (warehouse_id, part_id)
		DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity`

	insertOutboxMessageSQL = `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6, $6)`
)
