package schema

import "github.com/hamba/avro/v2"

const CatalogProductSchemaTextV1 = `{
	"type": "record",
	"namespace": "storefront.catalog",
	"name": "catalog_product",
	"fields": [
		{"name": "product_id", "type": "string"},
		{"name": "name", "type": "string"},
		{"name": "category", "type": "string", "default": ""},
		{"name": "sub_category", "type": "string", "default": ""},
		{"name": "brand", "type": "string", "default": ""},
		{"name": "type", "type": "string", "default": ""},
		{"name": "description", "type": "string", "default": ""},
		{"name": "image_url", "type": "string", "default": ""},
		{"name": "price", "type": "double"},
		{"name": "market_price", "type": "double", "default": 0},
		{"name": "rating", "type": "double", "default": 0},
		{"name": "stock", "type": "int"}
	]
}`

type CatalogProductV1 struct {
	ProductID   string  `avro:"product_id"`
	Name        string  `avro:"name"`
	Category    string  `avro:"category"`
	SubCategory string  `avro:"sub_category"`
	Brand       string  `avro:"brand"`
	Type        string  `avro:"type"`
	Description string  `avro:"description"`
	ImageURL    string  `avro:"image_url"`
	Price       float64 `avro:"price"`
	MarketPrice float64 `avro:"market_price"`
	Rating      float64 `avro:"rating"`
	Stock       int     `avro:"stock"`
}

func CatalogProductV1Avro() avro.Schema {
	return avro.MustParse(CatalogProductSchemaTextV1)
}
