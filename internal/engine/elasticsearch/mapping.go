package elasticsearch

// DefaultIndexName is the default Elasticsearch index used for product documents.
const DefaultIndexName = "market_products"

// buildIndexMapping returns the index mapping. Fields are dynamic, so the
// mapping is a set of templates keyed on the field naming convention.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "normalizer": {
        "lowercase_normalizer": {
          "type": "custom",
          "filter": ["lowercase"]
        }
      }
    }
  },
  "mappings": {
    "dynamic_templates": [
      { "prices":      { "match": "*_price",      "mapping": { "type": "scaled_float", "scaling_factor": 10000 } } },
      { "quantities":  { "match": "*_moq",        "mapping": { "type": "integer" } } },
      { "available":   { "match": "*_available",  "mapping": { "type": "byte" } } },
      { "sorts":       { "match": "*_sort",       "mapping": { "type": "integer" } } },
      { "codes":       { "match": "*_code",       "mapping": { "type": "keyword" } } },
      { "code_lists":  { "match": "*_codes",      "mapping": { "type": "keyword" } } },
      { "asset_paths": { "match": "*_asset_path", "mapping": { "type": "keyword", "index": false } } },
      { "asset_types": { "match": "*_asset_type", "mapping": { "type": "keyword" } } },
      { "dimensions":  { "match": "*_dim_?",      "mapping": { "type": "keyword" } } },
      { "base_prices": { "match": "base_price_*", "mapping": { "type": "keyword" } } },
      { "localized":   { "match_mapping_type": "string", "mapping": { "type": "text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256, "normalizer": "lowercase_normalizer" } } } } }
    ],
    "properties": {
      "id":              { "type": "keyword" },
      "code":            { "type": "keyword" },
      "gtin":            { "type": "keyword" },
      "type":            { "type": "keyword" },
      "primary_group":   { "type": "keyword" },
      "secondary_group": { "type": "keyword" },
      "active_from":     { "type": "date" },
      "active_to":       { "type": "date" },
      "last_update":     { "type": "date" }
    }
  }
}`
}
