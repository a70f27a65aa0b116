package bronze

// Envelope is the raw queue message as persisted by the ingestion
// consumer. The bronze store is immutable input: envelopes are never
// rewritten, and downstream stages dedup on MessageID.
type Envelope struct {
	MessageID         string                    `json:"message_id"`
	ReceiptHandle     string                    `json:"receipt_handle,omitempty"`
	Body              EventBody                 `json:"body"`
	Attributes        map[string]any            `json:"attributes,omitempty"`
	MessageAttributes map[string]MessageAttr    `json:"message_attributes,omitempty"`
}

// MessageAttr mirrors a queue message attribute.
type MessageAttr struct {
	StringValue string `json:"StringValue,omitempty"`
	DataType    string `json:"DataType,omitempty"`
}

// EventBody is the interaction event payload inside an envelope.
type EventBody struct {
	// EventTimestamp is epoch microseconds.
	EventTimestamp int64  `json:"event_timestamp"`
	UserID         string `json:"user_id"`
	EventName      string `json:"event_name"`
	Platform       string `json:"platform"`
	Items          []Item `json:"items"`

	// ReplayTimestamp is an ISO-8601 string stamped by the replayer;
	// parsed best-effort downstream, nil-safe here.
	ReplayTimestamp *string `json:"replay_timestamp,omitempty"`
}

// Item is one entry of an event's item array. Numeric fields are
// declared as `any` on purpose: upstream producers emit them as
// numbers, numeric strings, or garbage, and the flattener casts them
// defensively (failed cast -> null column, never a failed row).
type Item struct {
	ItemID        *string `json:"item_id"`
	ItemName      *string `json:"item_name"`
	ItemBrand     *string `json:"item_brand"`
	ItemVariant   *string `json:"item_variant"`
	ItemCategory  *string `json:"item_category"`
	ItemCategory2 *string `json:"item_category2"`
	ItemCategory3 *string `json:"item_category3"`
	ItemCategory4 *string `json:"item_category4"`
	ItemCategory5 *string `json:"item_category5"`

	PriceInUSD       any `json:"price_in_usd"`
	Price            any `json:"price"`
	Quantity         any `json:"quantity"`
	ItemRevenueInUSD any `json:"item_revenue_in_usd"`
	ItemRevenue      any `json:"item_revenue"`
	ItemRefundInUSD  any `json:"item_refund_in_usd"`
	ItemRefund       any `json:"item_refund"`

	Coupon      *string `json:"coupon"`
	Affiliation *string `json:"affiliation"`
	LocationID  *string `json:"location_id"`

	ItemListID    *string `json:"item_list_id"`
	ItemListName  *string `json:"item_list_name"`
	ItemListIndex any     `json:"item_list_index"`

	PromotionID   *string `json:"promotion_id"`
	PromotionName *string `json:"promotion_name"`
	CreativeName  *string `json:"creative_name"`
	CreativeSlot  *string `json:"creative_slot"`

	ItemParams []ItemParam `json:"item_params"`
}

// ItemParam is one key/value entry of an item's dynamic parameter bag.
type ItemParam struct {
	Key   string     `json:"key"`
	Value ParamValue `json:"value"`
}

// ParamValue carries the typed sub-fields of a parameter value.
// Exactly one is normally set; coercion picks the first non-null.
type ParamValue struct {
	StringValue any      `json:"string_value,omitempty"`
	IntValue    *int64   `json:"int_value,omitempty"`
	FloatValue  *float64 `json:"float_value,omitempty"`
	DoubleValue *float64 `json:"double_value,omitempty"`
}
