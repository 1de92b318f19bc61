package schema

import (
	"time"

	"github.com/hamba/avro/v2"
)

const OrderPlacedSchemaTextV1 = `{
	"type": "record",
	"namespace": "storefront.orders",
	"name": "order_placed",
	"fields": [
		{"name": "order_id", "type": "string"},
		{"name": "user_id", "type": "string"},
		{"name": "total_price", "type": "double"},
		{"name": "status", "type": "string"},
		{"name": "created_at", "type": {"type": "long", "logicalType": "timestamp-millis"}},
		{"name": "lines", "type": {
			"type": "array",
			"items": {
				"type": "record",
				"name": "order_line",
				"fields": [
					{"name": "product_id", "type": "string"},
					{"name": "quantity", "type": "int"},
					{"name": "price_at_purchase", "type": "double"}
				]
			}
		}}
	]
}`

type (
	OrderPlacedV1 struct {
		OrderID    string        `avro:"order_id"`
		UserID     string        `avro:"user_id"`
		TotalPrice float64       `avro:"total_price"`
		Status     string        `avro:"status"`
		CreatedAt  time.Time     `avro:"created_at"`
		Lines      []OrderLineV1 `avro:"lines"`
	}

	OrderLineV1 struct {
		ProductID       string  `avro:"product_id"`
		Quantity        int     `avro:"quantity"`
		PriceAtPurchase float64 `avro:"price_at_purchase"`
	}
)

func OrderPlacedV1Avro() avro.Schema {
	return avro.MustParse(OrderPlacedSchemaTextV1)
}
