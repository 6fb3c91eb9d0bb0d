package database

// Migration queries
const (
	createMigrationsTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			migration_name VARCHAR(255) NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`

	selectMigrationsSQL = `SELECT migration_name FROM schema_migrations`

	recordMigrationSQL = `INSERT INTO schema_migrations (migration_name) VALUES ($1)`
)

// Cart line queries
const (
	AddLineSQL = `
		INSERT INTO cart_lines (order_id, product_id, quantity)
		VALUES ($1, $2, 1)
		ON CONFLICT (order_id, product_id) DO UPDATE SET quantity = cart_lines.quantity + 1
		RETURNING quantity`

	LockLineSQL = `
		SELECT quantity FROM cart_lines
		WHERE order_id = $1 AND product_id = $2
		FOR UPDATE`

	DecrementLineSQL = `
		UPDATE cart_lines SET quantity = quantity - 1
		WHERE order_id = $1 AND product_id = $2
		RETURNING quantity`

	DeleteLineSQL = `
		DELETE FROM cart_lines
		WHERE order_id = $1 AND product_id = $2
		RETURNING quantity`

	GetQuantitySQL = `
		SELECT quantity FROM cart_lines
		WHERE order_id = $1 AND product_id = $2`

	GetLinesSQL = `
		SELECT order_id, product_id, quantity
		FROM cart_lines
		WHERE order_id = $1
		ORDER BY product_id`
)

// Add-on and charge membership queries
const (
	DeleteAddOnSQL = `DELETE FROM order_addons WHERE order_id = $1 AND item_id = $2`
	InsertAddOnSQL = `INSERT INTO order_addons (order_id, item_id) VALUES ($1, $2)`
	GetAddOnIDsSQL = `SELECT item_id FROM order_addons WHERE order_id = $1 ORDER BY item_id`

	DeleteChargeSQL = `DELETE FROM order_charges WHERE order_id = $1 AND charges_id = $2`
	InsertChargeSQL = `INSERT INTO order_charges (order_id, charges_id) VALUES ($1, $2)`
	GetChargeIDsSQL = `SELECT charges_id FROM order_charges WHERE order_id = $1 ORDER BY charges_id`
)

// Price snapshot queries
const (
	GetPriceSQL = `
		SELECT order_id, base_price, discount_price, total_price
		FROM order_prices WHERE order_id = $1`

	PutPriceSQL = `
		INSERT INTO order_prices (order_id, base_price, discount_price, total_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO UPDATE SET
			base_price = EXCLUDED.base_price,
			discount_price = EXCLUDED.discount_price,
			total_price = EXCLUDED.total_price`

	LockPriceSQL = `
		SELECT order_id, base_price, discount_price, total_price
		FROM order_prices WHERE order_id = $1
		FOR UPDATE`

	UpdatePriceSQL = `
		UPDATE order_prices SET base_price = $2, discount_price = $3, total_price = $4
		WHERE order_id = $1`

	DeletePriceSQL = `DELETE FROM order_prices WHERE order_id = $1`
)

// Order queries
const (
	orderColumns = `order_id, order_type, order_status, charges_included,
		COALESCE(customer_id, 0), COALESCE(address_id, 0), created_at, updated_at`

	InsertOrderSQL = `
		INSERT INTO cart_orders (order_id, order_type, order_status, charges_included, customer_id, address_id, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, 0), NULLIF($6, 0), $7)`

	UpdateOrderSQL = `
		UPDATE cart_orders SET
			order_type = $2,
			order_status = $3,
			charges_included = $4,
			customer_id = NULLIF($5, 0),
			address_id = NULLIF($6, 0),
			updated_at = $7
		WHERE order_id = $1`

	GetOrderSQL = `SELECT ` + orderColumns + ` FROM cart_orders WHERE order_id = $1`

	ListOrdersSQL = `
		SELECT ` + orderColumns + `
		FROM cart_orders
		WHERE NOT $1 OR order_status = 'PROCESSING'
		ORDER BY created_at DESC, order_id DESC`

	SetOrderStatusSQL = `
		UPDATE cart_orders SET order_status = $2, updated_at = $3
		WHERE order_id = $1`

	DeleteOrderSQL = `DELETE FROM cart_orders WHERE order_id = $1`

	LatestProcessingSQL = `
		SELECT order_id FROM cart_orders
		WHERE order_status = 'PROCESSING'
		ORDER BY created_at DESC, order_id DESC
		LIMIT 1`

	NextOrderIDSQL = `SELECT nextval('cart_order_id_seq')`

	GetSelectedSQL = `SELECT order_id FROM selected_order WHERE singleton`

	// SetSelectedSQL only writes a processing order (or 0) and announces the
	// new id on SelectionChannel in the same statement.
	SetSelectedSQL = `
		WITH updated AS (
			UPDATE selected_order SET order_id = $1::INTEGER
			WHERE singleton AND ($1::INTEGER = 0 OR EXISTS (
				SELECT 1 FROM cart_orders WHERE order_id = $1::INTEGER AND order_status = 'PROCESSING'))
			RETURNING order_id
		)
		SELECT order_id, pg_notify('` + SelectionChannel + `', order_id::TEXT) FROM updated`

	SelectionLockSQL = `SELECT pg_advisory_xact_lock($1)`
)

const (
	// SelectionChannel carries every committed selected order id.
	SelectionChannel = "selected_order_changed"

	selectionLockID int64 = 727_002
)

// Catalog queries
const (
	GetProductSQL = `
		SELECT product_id, product_name, product_price, product_availability
		FROM products WHERE product_id = $1`

	GetAddOnPriceSQL = `SELECT item_price, is_applicable FROM addon_items WHERE item_id = $1`

	GetChargePriceSQL = `SELECT charges_price, is_applicable FROM charges WHERE charges_id = $1`

	GetApplicableChargesSQL = `
		SELECT charges_id, charges_name, charges_price, is_applicable
		FROM charges WHERE is_applicable
		ORDER BY charges_id`

	GetCustomerSQL = `
		SELECT customer_id, customer_phone, customer_name, customer_email
		FROM customers WHERE customer_id = $1`

	UpsertCustomerSQL = `
		INSERT INTO customers (customer_phone, customer_name, customer_email)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_phone) DO UPDATE SET customer_phone = customers.customer_phone
		RETURNING customer_id, customer_phone, customer_name, customer_email`

	GetAddressSQL = `
		SELECT address_id, address_name, short_name
		FROM addresses WHERE address_id = $1`

	UpsertAddressSQL = `
		INSERT INTO addresses (address_name, short_name)
		VALUES ($1, $2)
		ON CONFLICT ((LOWER(short_name))) DO UPDATE SET short_name = addresses.short_name
		RETURNING address_id, address_name, short_name`
)
