package analytics

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/invio-erp/invio/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PaginatedMaterials is one page of material breakdowns.
type PaginatedMaterials struct {
	Items      []MaterialBreakdown `json:"items"`
	Pagination shared.Pagination   `json:"pagination"`
}

// PaginatedSuppliers is one page of supplier breakdowns.
type PaginatedSuppliers struct {
	Items      []SupplierBreakdown `json:"items"`
	Pagination shared.Pagination   `json:"pagination"`
}

// Service computes grouped statistics over persisted invoices. All queries
// are read-only and safe to run against a dataset an active batch job is
// still writing to.
type Service struct {
	repo  Repository
	cache *Cache
}

// NewService wires a Repository with a Cache helper.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Materials returns the full per-material breakdown for every material
// matching the filters.
func (s *Service) Materials(ctx context.Context, tenantID int64, f Filters) ([]MaterialBreakdown, error) {
	f = f.Normalize()
	key, err := s.cache.BuildKey(ctx, tenantID, "analytics", "materials", f.CacheKey())
	if err != nil {
		return nil, err
	}
	var result []MaterialBreakdown
	err = s.cache.FetchJSON(ctx, key, &result, func(ctx context.Context) (any, error) {
		items, err := s.repo.Items(ctx, tenantID, f)
		if err != nil {
			return nil, err
		}
		breakdowns := groupMaterials(items)
		sortMaterials(breakdowns, f.Sort)
		return breakdowns, nil
	})
	return result, err
}

// MaterialsPaginated returns one page of material breakdowns. Phase one
// picks the page's material ids from a grouped aggregation; phase two
// hydrates detail for those ids only, so cost stays bounded by the page
// size rather than the catalog size.
func (s *Service) MaterialsPaginated(ctx context.Context, tenantID int64, f Filters, page, pageSize int) (PaginatedMaterials, error) {
	f = f.Normalize()
	page, pageSize = clampPage(page, pageSize)

	ids, total, err := s.repo.MaterialPage(ctx, tenantID, f, pageSize, (page-1)*pageSize)
	if err != nil {
		return PaginatedMaterials{}, err
	}

	result := PaginatedMaterials{
		Items:      []MaterialBreakdown{},
		Pagination: shared.NewPagination(page, pageSize, total),
	}
	if len(ids) == 0 {
		return result, nil
	}

	items, err := s.repo.ItemsForMaterials(ctx, tenantID, f, ids)
	if err != nil {
		return PaginatedMaterials{}, err
	}

	byID := map[int64]MaterialBreakdown{}
	for _, b := range groupMaterials(items) {
		byID[b.MaterialID] = b
	}
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			result.Items = append(result.Items, b)
		}
	}
	return result, nil
}

// Suppliers returns the full per-supplier breakdown for every provider
// matching the filters.
func (s *Service) Suppliers(ctx context.Context, tenantID int64, f Filters) ([]SupplierBreakdown, error) {
	f = f.Normalize()
	key, err := s.cache.BuildKey(ctx, tenantID, "analytics", "suppliers", f.CacheKey())
	if err != nil {
		return nil, err
	}
	var result []SupplierBreakdown
	err = s.cache.FetchJSON(ctx, key, &result, func(ctx context.Context) (any, error) {
		invoices, items, err := s.loadSupplierDetail(ctx, tenantID, f, nil)
		if err != nil {
			return nil, err
		}
		breakdowns := groupSuppliers(invoices, items)
		sortSuppliers(breakdowns, f.Sort)
		return breakdowns, nil
	})
	return result, err
}

// SuppliersPaginated returns one page of supplier breakdowns using the same
// two-phase strategy as MaterialsPaginated.
func (s *Service) SuppliersPaginated(ctx context.Context, tenantID int64, f Filters, page, pageSize int) (PaginatedSuppliers, error) {
	f = f.Normalize()
	page, pageSize = clampPage(page, pageSize)

	ids, total, err := s.repo.SupplierPage(ctx, tenantID, f, pageSize, (page-1)*pageSize)
	if err != nil {
		return PaginatedSuppliers{}, err
	}

	result := PaginatedSuppliers{
		Items:      []SupplierBreakdown{},
		Pagination: shared.NewPagination(page, pageSize, total),
	}
	if len(ids) == 0 {
		return result, nil
	}

	invoices, items, err := s.loadSupplierDetail(ctx, tenantID, f, ids)
	if err != nil {
		return PaginatedSuppliers{}, err
	}

	byID := map[int64]SupplierBreakdown{}
	for _, b := range groupSuppliers(invoices, items) {
		byID[b.ProviderID] = b
	}
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			result.Items = append(result.Items, b)
		}
	}
	return result, nil
}

// loadSupplierDetail fetches the invoice and item populations concurrently;
// both queries are needed to assemble a supplier breakdown.
func (s *Service) loadSupplierDetail(ctx context.Context, tenantID int64, f Filters, providerIDs []int64) ([]InvoiceRow, []ItemRow, error) {
	var (
		invoices []InvoiceRow
		items    []ItemRow
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if providerIDs == nil {
			invoices, err = s.repo.Invoices(ctx, tenantID, f)
		} else {
			invoices, err = s.repo.InvoicesForProviders(ctx, tenantID, f, providerIDs)
		}
		return err
	})
	g.Go(func() error {
		var err error
		if providerIDs == nil {
			items, err = s.repo.SupplierItems(ctx, tenantID, f)
		} else {
			items, err = s.repo.ItemsForProviders(ctx, tenantID, f, providerIDs)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return invoices, items, nil
}

// Export returns the flat tabular projection of every matching item.
func (s *Service) Export(ctx context.Context, tenantID int64, f Filters) ([]ExportRow, error) {
	f = f.Normalize()
	items, err := s.repo.Items(ctx, tenantID, f)
	if err != nil {
		return nil, err
	}
	rows := make([]ExportRow, 0, len(items))
	for _, it := range items {
		rows = append(rows, ExportRow{
			MaterialCode: it.MaterialCode,
			MaterialName: it.MaterialName,
			Category:     it.Category,
			Provider:     it.ProviderName,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			TotalPrice:   it.TotalPrice,
			WorkOrder:    it.WorkOrder,
			ItemDate:     it.ItemDate,
		})
	}
	return rows, nil
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// groupMaterials folds item rows into per-material breakdowns. Input rows
// arrive ordered by item date, so appended series stay ascending.
func groupMaterials(items []ItemRow) []MaterialBreakdown {
	type acc struct {
		breakdown MaterialBreakdown
		invoices  map[int64]struct{}
		suppliers map[int64]*SupplierShare
		orders    map[string]struct{}
	}

	byID := map[int64]*acc{}
	var order []int64

	for _, it := range items {
		a, ok := byID[it.MaterialID]
		if !ok {
			a = &acc{
				breakdown: MaterialBreakdown{
					MaterialID: it.MaterialID,
					Code:       it.MaterialCode,
					Name:       it.MaterialName,
					Category:   it.Category,
				},
				invoices:  map[int64]struct{}{},
				suppliers: map[int64]*SupplierShare{},
				orders:    map[string]struct{}{},
			}
			byID[it.MaterialID] = a
			order = append(order, it.MaterialID)
		}

		a.breakdown.TotalQuantity = a.breakdown.TotalQuantity.Add(it.Quantity)
		a.breakdown.TotalCost = a.breakdown.TotalCost.Add(it.TotalPrice)
		a.invoices[it.InvoiceID] = struct{}{}
		if it.ItemDate.After(a.breakdown.LastPurchase) {
			a.breakdown.LastPurchase = it.ItemDate
		}
		if it.WorkOrder != "" {
			a.orders[it.WorkOrder] = struct{}{}
		}
		a.breakdown.PriceSeries = append(a.breakdown.PriceSeries, PricePoint{Date: it.ItemDate, Price: it.UnitPrice})

		share, ok := a.suppliers[it.ProviderID]
		if !ok {
			share = &SupplierShare{ProviderID: it.ProviderID, Name: it.ProviderName}
			a.suppliers[it.ProviderID] = share
		}
		share.Quantity = share.Quantity.Add(it.Quantity)
		share.TotalCost = share.TotalCost.Add(it.TotalPrice)
	}

	breakdowns := make([]MaterialBreakdown, 0, len(order))
	for _, id := range order {
		a := byID[id]
		b := a.breakdown
		b.AvgUnitPrice = safeAvg(b.TotalCost, b.TotalQuantity)
		b.InvoiceCount = len(a.invoices)
		b.SupplierCount = len(a.suppliers)
		b.WorkOrders = sortedKeys(a.orders)
		b.TopSuppliers = rankSuppliers(a.suppliers)
		breakdowns = append(breakdowns, b)
	}
	return breakdowns
}

// groupSuppliers folds invoice and item rows into per-supplier breakdowns.
func groupSuppliers(invoices []InvoiceRow, items []ItemRow) []SupplierBreakdown {
	type acc struct {
		breakdown SupplierBreakdown
		monthly   map[string]decimal.Decimal
		materials map[int64]*MaterialShare
		orders    map[string]struct{}
	}

	byID := map[int64]*acc{}
	var order []int64

	for _, iv := range invoices {
		a, ok := byID[iv.ProviderID]
		if !ok {
			a = &acc{
				breakdown: SupplierBreakdown{ProviderID: iv.ProviderID, Name: iv.ProviderName},
				monthly:   map[string]decimal.Decimal{},
				materials: map[int64]*MaterialShare{},
				orders:    map[string]struct{}{},
			}
			byID[iv.ProviderID] = a
			order = append(order, iv.ProviderID)
		}
		a.breakdown.TotalSpent = a.breakdown.TotalSpent.Add(iv.Total)
		a.breakdown.InvoiceCount++
		if iv.IssueDate.After(a.breakdown.LastInvoice) {
			a.breakdown.LastInvoice = iv.IssueDate
		}
		month := iv.IssueDate.Format("2006-01")
		a.monthly[month] = a.monthly[month].Add(iv.Total)
	}

	for _, it := range items {
		a, ok := byID[it.ProviderID]
		if !ok {
			continue
		}
		a.breakdown.TotalQuantity = a.breakdown.TotalQuantity.Add(it.Quantity)
		if it.WorkOrder != "" {
			a.orders[it.WorkOrder] = struct{}{}
		}
		share, ok := a.materials[it.MaterialID]
		if !ok {
			share = &MaterialShare{MaterialID: it.MaterialID, Name: it.MaterialName}
			a.materials[it.MaterialID] = share
		}
		share.Quantity = share.Quantity.Add(it.Quantity)
		share.TotalCost = share.TotalCost.Add(it.TotalPrice)
	}

	breakdowns := make([]SupplierBreakdown, 0, len(order))
	for _, id := range order {
		a := byID[id]
		b := a.breakdown
		if b.InvoiceCount > 0 {
			b.AvgInvoice = b.TotalSpent.Div(decimal.NewFromInt(int64(b.InvoiceCount))).Round(2)
		}
		b.MaterialCount = len(a.materials)
		b.WorkOrderCount = len(a.orders)
		b.MonthlySeries = monthlySeries(a.monthly)
		b.TopByQuantity = rankMaterials(a.materials, func(x, y *MaterialShare) bool {
			return x.Quantity.GreaterThan(y.Quantity)
		})
		b.TopByCost = rankMaterials(a.materials, func(x, y *MaterialShare) bool {
			return x.TotalCost.GreaterThan(y.TotalCost)
		})
		breakdowns = append(breakdowns, b)
	}
	return breakdowns
}

// safeAvg divides cost by quantity, defined as zero when quantity is zero.
func safeAvg(cost, quantity decimal.Decimal) decimal.Decimal {
	if quantity.IsZero() {
		return decimal.Zero
	}
	return cost.Div(quantity).Round(4)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func rankSuppliers(shares map[int64]*SupplierShare) []SupplierShare {
	ranked := make([]SupplierShare, 0, len(shares))
	for _, s := range shares {
		ranked = append(ranked, *s)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if !ranked[i].TotalCost.Equal(ranked[j].TotalCost) {
			return ranked[i].TotalCost.GreaterThan(ranked[j].TotalCost)
		}
		return ranked[i].ProviderID < ranked[j].ProviderID
	})
	return ranked
}

func rankMaterials(shares map[int64]*MaterialShare, more func(x, y *MaterialShare) bool) []MaterialShare {
	ranked := make([]*MaterialShare, 0, len(shares))
	for _, s := range shares {
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if more(ranked[i], ranked[j]) {
			return true
		}
		if more(ranked[j], ranked[i]) {
			return false
		}
		return ranked[i].MaterialID < ranked[j].MaterialID
	})
	if len(ranked) > topMaterialLimit {
		ranked = ranked[:topMaterialLimit]
	}
	out := make([]MaterialShare, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, *s)
	}
	return out
}

func monthlySeries(monthly map[string]decimal.Decimal) []MonthlySpend {
	months := make([]string, 0, len(monthly))
	for m := range monthly {
		months = append(months, m)
	}
	sort.Strings(months)
	series := make([]MonthlySpend, 0, len(months))
	for _, m := range months {
		series = append(series, MonthlySpend{Month: m, Total: monthly[m]})
	}
	return series
}

func sortMaterials(list []MaterialBreakdown, key SortKey) {
	sort.SliceStable(list, func(i, j int) bool {
		switch key {
		case SortQuantity:
			if !list[i].TotalQuantity.Equal(list[j].TotalQuantity) {
				return list[i].TotalQuantity.GreaterThan(list[j].TotalQuantity)
			}
		case SortDate:
			if !list[i].LastPurchase.Equal(list[j].LastPurchase) {
				return list[i].LastPurchase.After(list[j].LastPurchase)
			}
		case SortName:
			if list[i].Name != list[j].Name {
				return list[i].Name < list[j].Name
			}
		case SortNameDesc:
			if list[i].Name != list[j].Name {
				return list[i].Name > list[j].Name
			}
		default:
			if !list[i].TotalCost.Equal(list[j].TotalCost) {
				return list[i].TotalCost.GreaterThan(list[j].TotalCost)
			}
		}
		return list[i].MaterialID < list[j].MaterialID
	})
}

func sortSuppliers(list []SupplierBreakdown, key SortKey) {
	sort.SliceStable(list, func(i, j int) bool {
		switch key {
		case SortQuantity:
			if !list[i].TotalQuantity.Equal(list[j].TotalQuantity) {
				return list[i].TotalQuantity.GreaterThan(list[j].TotalQuantity)
			}
		case SortDate:
			if !list[i].LastInvoice.Equal(list[j].LastInvoice) {
				return list[i].LastInvoice.After(list[j].LastInvoice)
			}
		case SortName:
			if list[i].Name != list[j].Name {
				return list[i].Name < list[j].Name
			}
		case SortNameDesc:
			if list[i].Name != list[j].Name {
				return list[i].Name > list[j].Name
			}
		default:
			if !list[i].TotalSpent.Equal(list[j].TotalSpent) {
				return list[i].TotalSpent.GreaterThan(list[j].TotalSpent)
			}
		}
		return list[i].ProviderID < list[j].ProviderID
	})
}
