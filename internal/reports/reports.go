// Package reports defines the built-in report units.
//
// Each unit reads its declared input artifacts from the shared store,
// transforms them, and writes one CSV file into the processed area. Units
// are registered once at process start; there is no directory scanning.
package reports

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"reportflow/internal/registry"
	"reportflow/internal/store"
	"reportflow/pkg/types"
)

// Source artifact names the built-in units consume.
const (
	SourceInventoryQuery = "inventory_query"
	SourceOrgProductInfo = "org_product_info"
	SourceSalesAnalysis  = "sales_analysis"
)

// excludedWarehouses are return and transfer depots whose stock is not part
// of sellable inventory.
var excludedWarehouses = map[string]bool{
	"returns_south":  true,
	"returns_east":   true,
	"transfer_depot": true,
}

// Builtin returns the built-in report units, writing outputs under
// processedDir. The slice order is the intended registration order.
func Builtin(processedDir string) []registry.Unit {
	return []registry.Unit{
		{
			Name:         "inventory_summary",
			Description:  "sellable inventory with product categories, excluded depots removed",
			Dependencies: []string{SourceInventoryQuery, SourceOrgProductInfo},
			Run:          inventorySummary(processedDir),
		},
		{
			Name:         "sales_summary",
			Description:  "per-store sales totals",
			Dependencies: []string{SourceSalesAnalysis},
			Run:          salesSummary(processedDir),
		},
		{
			Name:         "category_coverage",
			Description:  "on-hand versus sold quantity per category",
			Dependencies: []string{"inventory_summary", SourceSalesAnalysis},
			Run:          categoryCoverage(processedDir),
		},
	}
}

// input loads a named dependency artifact from the store as a table.
func input(artifacts registry.ArtifactStore, name string) (*table, error) {
	artifact, ok := artifacts.Get(name)
	if !ok {
		return nil, fmt.Errorf("input artifact %q is absent", name)
	}
	return readTable(artifact.Path)
}

// output writes t into the processed area and returns the artifact record.
func output(processedDir, unitName string, t *table) (types.Artifact, error) {
	path := filepath.Join(processedDir, store.TimestampedFilename(unitName, "csv"))
	if err := writeTable(path, t); err != nil {
		return types.Artifact{}, err
	}
	return types.Artifact{
		Name:       unitName,
		Path:       path,
		ProducedAt: time.Now(),
		Producer:   unitName,
	}, nil
}

// inventorySummary drops excluded warehouses from the raw inventory extract
// and annotates each row with the product category from the org product
// file.
func inventorySummary(processedDir string) registry.RunFunc {
	return func(ctx context.Context, artifacts registry.ArtifactStore) (types.Artifact, error) {
		inventory, err := input(artifacts, SourceInventoryQuery)
		if err != nil {
			return types.Artifact{}, err
		}
		products, err := input(artifacts, SourceOrgProductInfo)
		if err != nil {
			return types.Artifact{}, err
		}

		warehouseCol, err := inventory.col("warehouse")
		if err != nil {
			return types.Artifact{}, err
		}
		itemCol, err := inventory.col("item_id")
		if err != nil {
			return types.Artifact{}, err
		}
		prodItemCol, err := products.col("item_id")
		if err != nil {
			return types.Artifact{}, err
		}
		categoryCol, err := products.col("category")
		if err != nil {
			return types.Artifact{}, err
		}

		categories := make(map[string]string, len(products.rows))
		for _, row := range products.rows {
			categories[row[prodItemCol]] = row[categoryCol]
		}

		out := &table{header: append(append([]string{}, inventory.header...), "category")}
		for _, row := range inventory.rows {
			if excludedWarehouses[row[warehouseCol]] {
				continue
			}
			category := categories[row[itemCol]]
			if category == "" {
				category = "uncategorized"
			}
			out.rows = append(out.rows, append(append([]string{}, row...), category))
		}

		return output(processedDir, "inventory_summary", out)
	}
}

// salesSummary aggregates sold quantity and amount per store.
func salesSummary(processedDir string) registry.RunFunc {
	return func(ctx context.Context, artifacts registry.ArtifactStore) (types.Artifact, error) {
		sales, err := input(artifacts, SourceSalesAnalysis)
		if err != nil {
			return types.Artifact{}, err
		}

		storeCol, err := sales.col("store_name")
		if err != nil {
			return types.Artifact{}, err
		}
		quantityCol, err := sales.col("quantity")
		if err != nil {
			return types.Artifact{}, err
		}
		amountCol, err := sales.col("amount")
		if err != nil {
			return types.Artifact{}, err
		}

		type totals struct {
			quantity float64
			amount   float64
		}
		byStore := make(map[string]*totals)
		for _, row := range sales.rows {
			t := byStore[row[storeCol]]
			if t == nil {
				t = &totals{}
				byStore[row[storeCol]] = t
			}
			q, err := strconv.ParseFloat(row[quantityCol], 64)
			if err != nil {
				return types.Artifact{}, fmt.Errorf("bad quantity %q for store %s: %w", row[quantityCol], row[storeCol], err)
			}
			a, err := strconv.ParseFloat(row[amountCol], 64)
			if err != nil {
				return types.Artifact{}, fmt.Errorf("bad amount %q for store %s: %w", row[amountCol], row[storeCol], err)
			}
			t.quantity += q
			t.amount += a
		}

		stores := make([]string, 0, len(byStore))
		for name := range byStore {
			stores = append(stores, name)
		}
		sort.Strings(stores)

		out := &table{header: []string{"store_name", "total_quantity", "total_amount"}}
		for _, name := range stores {
			t := byStore[name]
			out.rows = append(out.rows, []string{
				name,
				strconv.FormatFloat(t.quantity, 'f', -1, 64),
				strconv.FormatFloat(t.amount, 'f', -1, 64),
			})
		}

		return output(processedDir, "sales_summary", out)
	}
}

// categoryCoverage compares on-hand quantity from the inventory summary
// against sold quantity per category.
func categoryCoverage(processedDir string) registry.RunFunc {
	return func(ctx context.Context, artifacts registry.ArtifactStore) (types.Artifact, error) {
		inventory, err := input(artifacts, "inventory_summary")
		if err != nil {
			return types.Artifact{}, err
		}
		sales, err := input(artifacts, SourceSalesAnalysis)
		if err != nil {
			return types.Artifact{}, err
		}

		invCategoryCol, err := inventory.col("category")
		if err != nil {
			return types.Artifact{}, err
		}
		invQuantityCol, err := inventory.col("quantity")
		if err != nil {
			return types.Artifact{}, err
		}
		salesCategoryCol, err := sales.col("category")
		if err != nil {
			return types.Artifact{}, err
		}
		salesQuantityCol, err := sales.col("quantity")
		if err != nil {
			return types.Artifact{}, err
		}

		onHand := make(map[string]float64)
		for _, row := range inventory.rows {
			q, err := strconv.ParseFloat(row[invQuantityCol], 64)
			if err != nil {
				return types.Artifact{}, fmt.Errorf("bad inventory quantity %q: %w", row[invQuantityCol], err)
			}
			onHand[row[invCategoryCol]] += q
		}

		sold := make(map[string]float64)
		for _, row := range sales.rows {
			q, err := strconv.ParseFloat(row[salesQuantityCol], 64)
			if err != nil {
				return types.Artifact{}, fmt.Errorf("bad sales quantity %q: %w", row[salesQuantityCol], err)
			}
			sold[row[salesCategoryCol]] += q
		}

		categories := make(map[string]bool)
		for c := range onHand {
			categories[c] = true
		}
		for c := range sold {
			categories[c] = true
		}
		names := make([]string, 0, len(categories))
		for c := range categories {
			names = append(names, c)
		}
		sort.Strings(names)

		out := &table{header: []string{"category", "on_hand_quantity", "sold_quantity"}}
		for _, c := range names {
			out.rows = append(out.rows, []string{
				c,
				strconv.FormatFloat(onHand[c], 'f', -1, 64),
				strconv.FormatFloat(sold[c], 'f', -1, 64),
			})
		}

		return output(processedDir, "category_coverage", out)
	}
}
