package postgres

// SQL for the five analytics tables. Every insert is keyed on its
// unique column and uses ON CONFLICT DO NOTHING — the merge-on-conflict
// primitive that makes each stage idempotent without full-table rescans.

const (
	queryInsertEvent = `
		INSERT INTO silver_events (
			event_id, message_id, event_timestamp, event_timestamp_micros,
			user_id, event_name, platform, replay_timestamp, received_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (message_id) DO NOTHING
	`

	queryEventIDsByMessageID = `
		SELECT message_id, event_id
		FROM silver_events
		WHERE message_id = ANY($1)
	`

	// queryUnmergedEvents anti-joins fact_events: the "not already
	// present" guard is always evaluated against persisted state.
	queryUnmergedEvents = `
		SELECT
			event_id, message_id, event_timestamp, event_timestamp_micros,
			user_id, event_name, platform, replay_timestamp, received_at, ingest_seq
		FROM silver_events se
		WHERE NOT EXISTS (
			SELECT 1 FROM fact_events fe WHERE fe.event_id = se.event_id
		)
		ORDER BY ingest_seq ASC
		LIMIT $1
	`

	// queryUserEventHistory feeds session assignment: the full per-user
	// timeline, so ordinals are cumulative over everything normalized.
	queryUserEventHistory = `
		SELECT
			event_id, message_id, event_timestamp, event_timestamp_micros,
			user_id, event_name, platform, replay_timestamp, received_at, ingest_seq
		FROM silver_events
		WHERE user_id = ANY($1)
		ORDER BY user_id, event_timestamp ASC, event_id ASC
	`

	queryUserActivity = `
		SELECT
			user_id,
			(array_agg(platform ORDER BY event_timestamp ASC,  ingest_seq ASC))[1]  AS first_platform,
			(array_agg(platform ORDER BY event_timestamp DESC, ingest_seq DESC))[1] AS last_platform
		FROM silver_events
		WHERE user_id = ANY($1)
		GROUP BY user_id
	`

	queryInsertItem = `
		INSERT INTO silver_items (
			item_record_id, event_id, item_offset,
			item_id, item_name, item_brand, item_variant,
			item_category, item_category2, item_category3, item_category4, item_category5,
			price_in_usd, price, quantity,
			item_revenue_in_usd, item_revenue, item_refund_in_usd, item_refund,
			coupon, affiliation, location_id,
			item_list_id, item_list_name, item_list_index,
			promotion_id, promotion_name, creative_name, creative_slot,
			in_stock, discounts, discount_amount, total_price,
			number_of_installments, installment_price
		)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
			$31, $32, $33, $34, $35
		)
		ON CONFLICT (event_id, item_offset) DO NOTHING
	`

	itemColumns = `
		item_record_id, event_id, item_offset,
		item_id, item_name, item_brand, item_variant,
		item_category, item_category2, item_category3, item_category4, item_category5,
		price_in_usd, price, quantity,
		item_revenue_in_usd, item_revenue, item_refund_in_usd, item_refund,
		coupon, affiliation, location_id,
		item_list_id, item_list_name, item_list_index,
		promotion_id, promotion_name, creative_name, creative_slot,
		in_stock, discounts, discount_amount, total_price,
		number_of_installments, installment_price, line_seq
	`

	// queryUnmergedItems requires the parent fact event to exist: item
	// lines whose event has not been merged yet stay deferred.
	queryUnmergedItems = `
		SELECT ` + itemColumns + `
		FROM silver_items si
		WHERE EXISTS (
			SELECT 1 FROM fact_events fe WHERE fe.event_id = si.event_id
		)
		AND NOT EXISTS (
			SELECT 1 FROM fact_event_items fi WHERE fi.event_item_id = si.item_record_id
		)
		ORDER BY si.line_seq ASC
		LIMIT $1
	`

	queryCountItemsAwaitingFacts = `
		SELECT COUNT(*)
		FROM silver_items si
		WHERE NOT EXISTS (
			SELECT 1 FROM fact_events fe WHERE fe.event_id = si.event_id
		)
	`

	queryLatestItemSnapshots = `
		SELECT DISTINCT ON (item_id) ` + itemColumns + `
		FROM silver_items
		WHERE item_id = ANY($1)
		ORDER BY item_id, line_seq DESC
	`

	queryInsertFactEvent = `
		INSERT INTO fact_events (
			event_id, event_timestamp, user_id, event_name, platform,
			session_id, event_date, event_hour, raw_message_id, processed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING
	`

	queryInsertFactItem = `
		INSERT INTO fact_event_items (
			event_item_id, event_id, item_id, item_name, item_list_name,
			item_list_id, item_category, item_brand, price, total_price,
			quantity, position_in_list, has_discount, discount_amount, in_stock
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (event_item_id) DO NOTHING
	`

	queryCountOrphanedFactItems = `
		SELECT COUNT(*)
		FROM fact_event_items fi
		WHERE NOT EXISTS (
			SELECT 1 FROM fact_events fe WHERE fe.event_id = fi.event_id
		)
	`

	queryUserSessionTotals = `
		SELECT user_id, COUNT(DISTINCT session_id)
		FROM fact_events
		WHERE user_id = ANY($1)
		GROUP BY user_id
	`

	queryNewItemKeys = `
		SELECT DISTINCT si.item_id
		FROM silver_items si
		WHERE si.item_id IS NOT NULL
		AND NOT EXISTS (
			SELECT 1 FROM dim_items di
			WHERE di.item_id = si.item_id AND di.is_current
		)
	`

	queryNewUserKeys = `
		SELECT DISTINCT se.user_id
		FROM silver_events se
		WHERE NOT EXISTS (
			SELECT 1 FROM dim_users du
			WHERE du.user_id = se.user_id AND du.is_current
		)
	`

	// Stale keys are detected against the dimension's own watermark:
	// fact rows processed after last_seen_at. Re-running the pipeline
	// over the same input inserts no new facts, so nothing goes stale.
	queryStaleItemKeys = `
		SELECT DISTINCT di.item_id
		FROM dim_items di
		JOIN fact_event_items fi ON fi.item_id = di.item_id
		JOIN fact_events fe ON fe.event_id = fi.event_id
		WHERE di.is_current AND fe.processed_at > di.last_seen_at
	`

	queryStaleUserSessionDeltas = `
		SELECT du.user_id, COUNT(DISTINCT fe.session_id)
		FROM dim_users du
		JOIN fact_events fe
			ON fe.user_id = du.user_id AND fe.processed_at > du.last_seen_at
		WHERE du.is_current
		GROUP BY du.user_id
	`

	queryInsertDimItem = `
		INSERT INTO dim_items (
			item_sk, item_id, item_name, item_brand,
			item_category, item_category2, item_category3, item_category4, item_category5,
			first_seen_at, last_seen_at, is_current
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	queryInsertDimUser = `
		INSERT INTO dim_users (
			user_sk, user_id, first_platform, last_platform,
			first_seen_at, last_seen_at, total_sessions, is_current
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	queryRefreshDimItems = `
		UPDATE dim_items
		SET last_seen_at = $2
		WHERE is_current AND item_id = ANY($1)
	`

	queryRefreshDimUser = `
		UPDATE dim_users
		SET last_seen_at = $2,
		    last_platform = $3,
		    total_sessions = total_sessions + $4
		WHERE is_current AND user_id = $1
	`

	queryCountDuplicateCurrentItems = `
		SELECT COUNT(*) FROM (
			SELECT item_id FROM dim_items
			WHERE is_current
			GROUP BY item_id
			HAVING COUNT(*) > 1
		) dup
	`

	queryCountDuplicateCurrentUsers = `
		SELECT COUNT(*) FROM (
			SELECT user_id FROM dim_users
			WHERE is_current
			GROUP BY user_id
			HAVING COUNT(*) > 1
		) dup
	`
)
