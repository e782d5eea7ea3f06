package database

// Order queries
const (
	InsertOrderSQL = `
		INSERT INTO orders (id, restaurant_id, customer_id, table_id, total_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	InsertOrderItemSQL = `
		INSERT INTO order_items (order_id, menu_item_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)`

	InsertOrderStatusLogSQL = `
		INSERT INTO order_status_log (order_id, from_status, to_status, changed_by)
		VALUES ($1, $2, $3, $4)`

	GetOrderSQL = `
		SELECT id, restaurant_id, customer_id, table_id, total_amount, status, created_at, updated_at
		FROM orders WHERE id = $1`

	GetOrderItemsSQL = `
		SELECT id, order_id, menu_item_id, quantity, unit_price
		FROM order_items WHERE order_id = $1
		ORDER BY id ASC`

	DeleteOrderItemsSQL = `
		DELETE FROM order_items WHERE order_id = $1`

	// Compare-and-set: the expected current status is part of the predicate,
	// so exactly one of two racing updates can win.
	UpdateOrderStatusCASSQL = `
		UPDATE orders SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`

	UpdateOrderTotalSQL = `
		UPDATE orders SET total_amount = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'new'`

	ListOrdersByCustomerSQL = `
		SELECT id, restaurant_id, customer_id, table_id, total_amount, status, created_at, updated_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	ListOrdersByRestaurantSQL = `
		SELECT id, restaurant_id, customer_id, table_id, total_amount, status, created_at, updated_at
		FROM orders
		WHERE restaurant_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	CountActiveOrdersForTableSQL = `
		SELECT COUNT(*) FROM orders
		WHERE table_id = $1 AND status IN ('new', 'ready', 'served')`
)

// Table queries
const (
	GetTableSQL = `
		SELECT id, restaurant_id, title, capacity, status
		FROM tables WHERE id = $1`

	GetTableForUpdateSQL = `
		SELECT id, restaurant_id, title, capacity, status
		FROM tables WHERE id = $1
		FOR UPDATE`

	SetTableStatusSQL = `
		UPDATE tables SET status = $2 WHERE id = $1`

	ListTablesByRestaurantSQL = `
		SELECT id, restaurant_id, title, capacity, status
		FROM tables
		WHERE restaurant_id = $1
		ORDER BY title ASC`
)

// Catalog queries
const (
	ResolveMenuItemsSQL = `
		SELECT id, unit_price, alcoholic, active
		FROM menu_items
		WHERE restaurant_id = $1 AND id = ANY($2)`
)

// Billing queries
const (
	SelectBillableForTableSQL = `
		SELECT id, restaurant_id, customer_id, table_id, total_amount, status, created_at, updated_at
		FROM orders
		WHERE restaurant_id = $1 AND table_id = $2
		  AND status IN ('ready', 'served')
		  AND created_at >= $3
		ORDER BY created_at ASC
		FOR UPDATE`

	SelectBillableForCustomerSQL = `
		SELECT id, restaurant_id, customer_id, table_id, total_amount, status, created_at, updated_at
		FROM orders
		WHERE restaurant_id = $1 AND customer_id = $2
		  AND status IN ('ready', 'served')
		  AND created_at >= $3
		ORDER BY created_at ASC
		FOR UPDATE`

	InsertBillSQL = `
		INSERT INTO bills (id, restaurant_id, table_id, customer_ids, order_ids,
			gross_total, service_charge, vat_alcohol, vat_food, service_tax, net_amount,
			payment_status, payment_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at`

	MarkOrdersBilledSQL = `
		UPDATE orders SET status = 'billed', updated_at = NOW()
		WHERE id = ANY($1)`

	GetBillSQL = `
		SELECT id, restaurant_id, table_id, customer_ids, order_ids,
			gross_total, service_charge, vat_alcohol, vat_food, service_tax, net_amount,
			payment_status, payment_method, created_at
		FROM bills WHERE id = $1`

	ListBillsByRestaurantSQL = `
		SELECT id, restaurant_id, table_id, customer_ids, order_ids,
			gross_total, service_charge, vat_alcohol, vat_food, service_tax, net_amount,
			payment_status, payment_method, created_at
		FROM bills
		WHERE restaurant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	UpdateBillPaymentSQL = `
		UPDATE bills SET payment_status = $3, payment_method = $4
		WHERE id = $1 AND restaurant_id = $2 AND payment_status = 'pending'`

	GetTaxRatesSQL = `
		SELECT tax_name, tax_percentage
		FROM tax_rates WHERE restaurant_id = $1`
)

// Admission queries
const (
	GetSubscriptionPlanSQL = `
		SELECT restaurant_id, daily_customer_limit, monthly_customer_limit,
			menu_category_limit, menu_item_limit, table_limit, active, period_start
		FROM subscription_plans WHERE restaurant_id = $1`

	EnsureVisitorLedgerSQL = `
		INSERT INTO visitor_ledgers (restaurant_id, day, visitors)
		VALUES ($1, $2, '{}')
		ON CONFLICT (restaurant_id, day) DO NOTHING`

	// The ledger row lock is the serialization point for admission.
	GetVisitorLedgerForUpdateSQL = `
		SELECT visitors FROM visitor_ledgers
		WHERE restaurant_id = $1 AND day = $2
		FOR UPDATE`

	AppendVisitorSQL = `
		UPDATE visitor_ledgers SET visitors = array_append(visitors, $3)
		WHERE restaurant_id = $1 AND day = $2`

	MonthlyVisitorCountSQL = `
		SELECT COALESCE(SUM(cardinality(visitors)), 0)
		FROM visitor_ledgers
		WHERE restaurant_id = $1 AND day >= $2 AND day < $3`

	// Menu quota checks lock the plan row so count-compare-flip is atomic
	// per restaurant.
	LockPlanForQuotaSQL = `
		SELECT menu_item_limit, menu_category_limit
		FROM subscription_plans
		WHERE restaurant_id = $1 AND active
		FOR UPDATE`

	CountActiveMenuItemsSQL = `
		SELECT COUNT(*) FROM menu_items WHERE restaurant_id = $1 AND active`

	CountActiveMenuCategoriesSQL = `
		SELECT COUNT(*) FROM menu_categories WHERE restaurant_id = $1 AND active`

	ActivateMenuItemSQL = `
		UPDATE menu_items SET active = true
		WHERE restaurant_id = $1 AND id = $2 AND NOT active`

	ActivateMenuCategorySQL = `
		UPDATE menu_categories SET active = true
		WHERE restaurant_id = $1 AND id = $2 AND NOT active`

	MenuItemExistsSQL = `
		SELECT EXISTS (
			SELECT 1 FROM menu_items WHERE restaurant_id = $1 AND id = $2
		)`

	MenuCategoryExistsSQL = `
		SELECT EXISTS (
			SELECT 1 FROM menu_categories WHERE restaurant_id = $1 AND id = $2
		)`
)
