// Package params builds export request payloads.
//
// A payload is constructed one of three ways: from a named preset, from a
// preset with an explicit override map applied on top, or from a fully
// custom payload that bypasses presets entirely. Supplying both a preset and
// a custom payload is a configuration error: the two paths must not be
// mixed.
package params

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMixedSpec means a preset and a custom payload were both supplied.
	ErrMixedSpec = errors.New("preset and custom payload must not be mixed")
	// ErrEmptySpec means neither a preset nor a custom payload was supplied.
	ErrEmptySpec = errors.New("either a preset or a custom payload is required")
	// ErrUnknownPreset means the named preset does not exist.
	ErrUnknownPreset = errors.New("unknown parameter preset")
)

// Spec is the normalized parameter configuration for one module, produced by
// the configuration layer. Exactly one of Preset or Custom must be set;
// Overrides only accompany a Preset.
type Spec struct {
	Preset    string
	Overrides map[string]any
	Custom    map[string]any
}

// Presets are the static parameter templates, keyed by name. Dynamic fields
// (the business date) are injected at build time.
var presets = map[string]map[string]any{
	"inventory_query": {
		"unit_type":        "PURCHASE",
		"query_mode":       0,
		"show_batch_unit":  true,
		"filter_item_type": []any{},
		"storehouse_ids":   []any{},
	},
	"org_product_info": {
		"time_type":       0,
		"purchase_scopes": []any{"all", "headquarters"},
		"deleted":         false,
		"category_ids":    []any{},
		"supplier_ids":    []any{},
		"page_number":     0,
		"page_size":       200,
	},
	"store_product_attr": {
		"page_size":                200,
		"page_number":              0,
		"category_levels":          []any{1},
		"product_actual_attribute": true,
	},
	"store_management": {
		"page_size":   200,
		"page_number": 0,
		"wait_assign": false,
	},
	"sales_analysis/dairy_cold_drinks": {
		"date_range":         "DAY",
		"sale_mode":          "DIRECT",
		"query_count":        true,
		"query_no_tax":       false,
		"query_year_compare": false,
		"summary_types":      []any{"STORE", "CATEGORY_LV1", "CATEGORY_LV2", "CATEGORY_LV3", "ITEM"},
	},
	"sales_analysis/store_adjustment": {
		"date_range":    "DAY",
		"sale_mode":     "DIRECT",
		"query_count":   true,
		"summary_types": []any{"STORE", "CATEGORY_LV3"},
	},
	"delivery_analysis/order_delivery": {
		"time_type":      "audit_date",
		"category_level": 1,
		"unit_type":      "PURCHASE",
		"summary_types":  []any{"CATEGORY", "OUT_STORE", "DATE"},
	},
}

// dateFields names, per preset, the payload field that receives the
// business date range (yesterday, as a [from, to] pair).
var dateFields = map[string]string{
	"sales_analysis/dairy_cold_drinks": "bizday",
	"sales_analysis/store_adjustment":  "bizday",
	"delivery_analysis/order_delivery": "audit_date",
}

// PresetNames returns the names of all known presets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}

// Build constructs the payload for spec, injecting dynamic fields as of now.
func Build(spec Spec) (map[string]any, error) {
	return buildAt(spec, time.Now())
}

func buildAt(spec Spec, now time.Time) (map[string]any, error) {
	if spec.Preset != "" && spec.Custom != nil {
		return nil, fmt.Errorf("%w: preset %q", ErrMixedSpec, spec.Preset)
	}
	if spec.Custom != nil {
		return clone(spec.Custom), nil
	}
	if spec.Preset == "" {
		return nil, ErrEmptySpec
	}

	base, ok := presets[spec.Preset]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, spec.Preset)
	}

	payload := clone(base)
	if field, ok := dateFields[spec.Preset]; ok {
		yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")
		payload[field] = []any{yesterday, yesterday}
	}
	for k, v := range spec.Overrides {
		payload[k] = v
	}
	return payload, nil
}

// clone copies one level deep; preset values are treated as immutable, so
// shared nested slices are acceptable as long as callers never mutate them.
func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
