// Package resource declares the Lightspeed X-Series collections the exporter
// knows how to fetch and flatten. The catalog drives everything downstream:
// endpoint paths, response envelope keys, CSV column sets, nested child
// extraction, and the order resources are exported in.
package resource

import "fmt"

// Tier groups resources by export priority. Reference data is exported first
// so that transactional files can be joined against complete lookup tables.
type Tier string

const (
	// TierReference is small, rarely-changing lookup data.
	TierReference Tier = "reference"

	// TierMaster is medium-sized master data (customers, products).
	TierMaster Tier = "master"

	// TierTransactional is large data that grows over time.
	TierTransactional Tier = "transactional"

	// TierOptional marks endpoints that are not enabled on every account.
	// A failure to fetch one is reported but never fails the run.
	TierOptional Tier = "optional"
)

// Child is a nested collection embedded in a parent record that gets split
// into its own output file, keyed back to the parent.
type Child struct {
	// Name is the output file stem, e.g. "product_variants".
	Name string

	// SourceField is the parent JSON field holding the nested array.
	SourceField string

	// ForeignKey is the child column that carries the parent record's id.
	ForeignKey string

	// Fields is the CSV column set in output order. ForeignKey must be one
	// of them.
	Fields []string
}

// Resource is one API collection. Name doubles as the endpoint path segment
// under /api/2.0/ and as the output file stem.
type Resource struct {
	Name string

	// PayloadKey is the response envelope key holding the record array.
	// Responses that do not match fall back to the "data" key, a key equal
	// to the resource name, and finally a bare array.
	PayloadKey string

	Tier Tier

	// Fields is the CSV column set in output order. Fields absent from a
	// record are written empty; record keys outside this set are dropped.
	Fields []string

	Children []Child
}

// Optional reports whether a missing or failing endpoint is tolerated.
func (r Resource) Optional() bool {
	return r.Tier == TierOptional
}

// Rows extracts the child rows embedded in a parent record. Each row carries
// the parent's id under the child's foreign key column; all other columns
// come from the nested record itself. A parent without the source field, or
// with an empty array, yields no rows.
func (c Child) Rows(parent map[string]interface{}) []map[string]interface{} {
	nested, ok := parent[c.SourceField].([]interface{})
	if !ok || len(nested) == 0 {
		return nil
	}

	rows := make([]map[string]interface{}, 0, len(nested))
	for _, item := range nested {
		record, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		row := make(map[string]interface{}, len(c.Fields))
		for _, field := range c.Fields {
			if field == c.ForeignKey {
				row[field] = parent["id"]
			} else {
				row[field] = record[field]
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// catalog is the full export plan in execution order: reference data first,
// then master data, then transactional data, then optional endpoints.
var catalog = []Resource{
	{
		Name:       "outlets",
		PayloadKey: "data",
		Tier:       TierReference,
		Fields: []string{
			"id", "name", "physical_address_1", "physical_address_2",
			"physical_city", "physical_state", "physical_postcode",
			"physical_country_id", "phone", "email", "timezone",
			"default_tax_id", "currency", "currency_symbol",
		},
	},
	{
		Name:       "registers",
		PayloadKey: "data",
		Tier:       TierReference,
		Fields: []string{
			"id", "name", "outlet_id", "receipt_prefix",
			"receipt_suffix", "receipt_number", "is_open",
		},
	},
	{
		Name:       "users",
		PayloadKey: "data",
		Tier:       TierReference,
		Fields: []string{
			"id", "username", "display_name", "email",
			"outlet_id", "is_active", "created_at",
		},
	},
	{
		Name:       "customer_groups",
		PayloadKey: "data",
		Tier:       TierReference,
		Fields:     []string{"id", "name", "discount_percentage"},
	},
	{
		Name:       "brands",
		PayloadKey: "data",
		Tier:       TierReference,
		Fields:     []string{"id", "name", "description"},
	},
	{
		Name:       "product_types",
		PayloadKey: "data",
		Tier:       TierReference,
		Fields:     []string{"id", "name", "parent_id"},
	},
	{
		Name:       "suppliers",
		PayloadKey: "data",
		Tier:       TierReference,
		Fields: []string{
			"id", "name", "contact_name", "email", "phone",
			"address_1", "address_2", "city", "state",
			"postcode", "country_id",
		},
	},
	{
		Name:       "taxes",
		PayloadKey: "data",
		Tier:       TierReference,
		Fields:     []string{"id", "name", "rate", "outlet_id"},
	},
	{
		Name:       "payment_types",
		PayloadKey: "data",
		Tier:       TierReference,
		Fields:     []string{"id", "name", "outlet_id"},
	},
	{
		Name:       "customers",
		PayloadKey: "data",
		Tier:       TierMaster,
		Fields: []string{
			"id", "customer_code", "first_name", "last_name", "email",
			"phone", "mobile", "company_name", "customer_group_id",
			"enable_loyalty", "loyalty_balance", "note", "gender",
			"date_of_birth", "created_at", "updated_at",
		},
	},
	{
		Name:       "products",
		PayloadKey: "data",
		Tier:       TierMaster,
		Fields: []string{
			"id", "source_id", "handle", "sku", "name", "description",
			"brand_id", "supplier_id", "product_type_id", "supply_price",
			"retail_price", "tag_string", "is_active", "track_inventory",
			"created_at", "updated_at",
		},
		Children: []Child{
			{
				Name:        "product_variants",
				SourceField: "variant_options",
				ForeignKey:  "product_id",
				Fields: []string{
					"id", "product_id", "name", "sku", "barcode",
					"retail_price", "supply_price", "is_active",
				},
			},
		},
	},
	{
		Name:       "inventory",
		PayloadKey: "data",
		Tier:       TierTransactional,
		Fields: []string{
			"id", "product_id", "outlet_id", "quantity_available",
			"reorder_point", "reorder_amount", "updated_at",
		},
	},
	{
		Name:       "sales",
		PayloadKey: "data",
		Tier:       TierTransactional,
		Fields: []string{
			"id", "source_id", "outlet_id", "register_id", "user_id",
			"customer_id", "invoice_number", "receipt_number", "status",
			"note", "total_price", "total_tax", "total_discount",
			"total_loyalty", "created_at", "updated_at", "sale_date",
		},
		Children: []Child{
			{
				Name:        "sale_items",
				SourceField: "line_items",
				ForeignKey:  "sale_id",
				Fields: []string{
					"id", "sale_id", "product_id", "variant_id", "quantity",
					"price", "cost", "price_total", "discount",
					"discount_total", "tax", "tax_total", "status",
				},
			},
			{
				Name:        "sale_payments",
				SourceField: "payments",
				ForeignKey:  "sale_id",
				Fields: []string{
					"id", "sale_id", "register_id", "payment_type_id",
					"amount", "payment_date",
				},
			},
		},
	},
	{
		Name:       "register_sales",
		PayloadKey: "data",
		Tier:       TierOptional,
		Fields: []string{
			"id", "register_id", "opened_at", "closed_at",
			"opening_float", "closing_float", "total_counted",
			"cash_counted", "cash_expected", "cash_difference",
		},
	},
	{
		Name:       "price_books",
		PayloadKey: "data",
		Tier:       TierOptional,
		Fields: []string{
			"id", "name", "outlet_id", "customer_group_id",
			"valid_from", "valid_to", "is_active",
		},
	},
	{
		Name:       "promotions",
		PayloadKey: "data",
		Tier:       TierOptional,
		Fields: []string{
			"id", "name", "type", "value", "start_date",
			"end_date", "is_active",
		},
	},
	{
		Name:       "consignments",
		PayloadKey: "data",
		Tier:       TierOptional,
		Fields: []string{
			"id", "outlet_id", "supplier_id", "invoice_number",
			"consignment_date", "received_at", "total_cost",
			"status", "type",
		},
	},
	{
		Name:       "gift_cards",
		PayloadKey: "data",
		Tier:       TierOptional,
		Fields: []string{
			"id", "number", "balance", "customer_id",
			"expires_at", "created_at", "status",
		},
	},
}

// All returns the full catalog in export order.
func All() []Resource {
	out := make([]Resource, len(catalog))
	copy(out, catalog)
	return out
}

// Names returns the catalog's resource names in export order.
func Names() []string {
	names := make([]string, len(catalog))
	for i, r := range catalog {
		names[i] = r.Name
	}
	return names
}

// Lookup finds a resource by name.
func Lookup(name string) (Resource, bool) {
	for _, r := range catalog {
		if r.Name == name {
			return r, true
		}
	}
	return Resource{}, false
}

// Select resolves a name filter against the catalog, preserving export
// order regardless of the order names were given in. An empty filter selects
// everything. Unknown names are an error.
func Select(names []string) ([]Resource, error) {
	if len(names) == 0 {
		return All(), nil
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := Lookup(name); !ok {
			return nil, fmt.Errorf("unknown resource %q", name)
		}
		wanted[name] = true
	}

	selected := make([]Resource, 0, len(wanted))
	for _, r := range catalog {
		if wanted[r.Name] {
			selected = append(selected, r)
		}
	}
	return selected, nil
}
