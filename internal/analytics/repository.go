package analytics

import (
	"context"
	"strconv"

	"github.com/invio-erp/invio/internal/platform/db"
)

// Repository defines the read-only queries behind the aggregator. Full mode
// loads joined rows and groups in memory; paginated mode runs a grouped
// aggregation first to pick page keys, then hydrates detail for those keys
// only.
type Repository interface {
	Items(ctx context.Context, tenantID int64, f Filters) ([]ItemRow, error)
	ItemsForMaterials(ctx context.Context, tenantID int64, f Filters, materialIDs []int64) ([]ItemRow, error)
	SupplierItems(ctx context.Context, tenantID int64, f Filters) ([]ItemRow, error)
	ItemsForProviders(ctx context.Context, tenantID int64, f Filters, providerIDs []int64) ([]ItemRow, error)
	Invoices(ctx context.Context, tenantID int64, f Filters) ([]InvoiceRow, error)
	InvoicesForProviders(ctx context.Context, tenantID int64, f Filters, providerIDs []int64) ([]InvoiceRow, error)

	MaterialPage(ctx context.Context, tenantID int64, f Filters, limit, offset int) ([]int64, int, error)
	SupplierPage(ctx context.Context, tenantID int64, f Filters, limit, offset int) ([]int64, int, error)
}

type repository struct {
	q db.Querier
}

// NewRepository constructs the analytics repository.
func NewRepository(q db.Querier) Repository {
	return &repository{q: q}
}

const itemJoin = `
	FROM invoice_items ii
	JOIN invoices inv ON inv.id = ii.invoice_id
	JOIN materials m ON m.id = ii.material_id
	JOIN providers p ON p.id = inv.provider_id`

// itemConds appends the item-level conditions shared by every query shape:
// material, category, work order and free-text search. Provider and date
// bounds differ per shape and are added by the callers.
func itemConds(f Filters, args []any) (string, []any) {
	cond := ""
	if f.MaterialID != 0 {
		args = append(args, f.MaterialID)
		cond += ` AND ii.material_id = $` + strconv.Itoa(len(args))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		cond += ` AND lower(COALESCE(m.category,'')) = $` + strconv.Itoa(len(args))
	}
	if f.WorkOrder != "" {
		args = append(args, f.WorkOrder)
		cond += ` AND ii.work_order = $` + strconv.Itoa(len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		cond += ` AND (m.name ILIKE $` + strconv.Itoa(len(args)) + ` OR m.code ILIKE $` + strconv.Itoa(len(args)) + `)`
	}
	return cond, args
}

// itemFilter appends the WHERE conditions for material-centric item queries:
// item-level conditions plus provider and item-date bounds.
func itemFilter(f Filters, args []any) (string, []any) {
	cond, args := itemConds(f, args)
	if f.ProviderID != 0 {
		args = append(args, f.ProviderID)
		cond += ` AND inv.provider_id = $` + strconv.Itoa(len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		cond += ` AND ii.item_date >= $` + strconv.Itoa(len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		cond += ` AND ii.item_date <= $` + strconv.Itoa(len(args))
	}
	return cond, args
}

// supplierItemFilter narrows items the same way the invoice population is
// narrowed: item-level conditions on the item itself, date bounds on the
// invoice. A provider then carries matching items exactly when it carries
// qualifying invoices, so both supplier modes see one population.
func supplierItemFilter(f Filters, args []any) (string, []any) {
	cond, args := itemConds(f, args)
	if f.ProviderID != 0 {
		args = append(args, f.ProviderID)
		cond += ` AND inv.provider_id = $` + strconv.Itoa(len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		cond += ` AND inv.issue_date >= $` + strconv.Itoa(len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		cond += ` AND inv.issue_date <= $` + strconv.Itoa(len(args))
	}
	return cond, args
}

const itemColumns = `
	SELECT ii.material_id, m.code, m.name, lower(COALESCE(m.category,'')),
	       inv.provider_id, p.name, ii.invoice_id,
	       ii.quantity, ii.unit_price, ii.total_price,
	       COALESCE(ii.work_order,''), ii.item_date`

func (r *repository) queryItems(ctx context.Context, query string, args []any) ([]ItemRow, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ItemRow
	for rows.Next() {
		var it ItemRow
		if err := rows.Scan(&it.MaterialID, &it.MaterialCode, &it.MaterialName, &it.Category,
			&it.ProviderID, &it.ProviderName, &it.InvoiceID,
			&it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.WorkOrder, &it.ItemDate); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) Items(ctx context.Context, tenantID int64, f Filters) ([]ItemRow, error) {
	args := []any{tenantID}
	cond, args := itemFilter(f, args)
	query := itemColumns + itemJoin + ` WHERE ii.tenant_id = $1` + cond + ` ORDER BY ii.item_date, ii.id`
	return r.queryItems(ctx, query, args)
}

func (r *repository) ItemsForMaterials(ctx context.Context, tenantID int64, f Filters, materialIDs []int64) ([]ItemRow, error) {
	args := []any{tenantID}
	cond, args := itemFilter(f, args)
	args = append(args, materialIDs)
	cond += ` AND ii.material_id = ANY($` + strconv.Itoa(len(args)) + `)`
	query := itemColumns + itemJoin + ` WHERE ii.tenant_id = $1` + cond + ` ORDER BY ii.item_date, ii.id`
	return r.queryItems(ctx, query, args)
}

func (r *repository) SupplierItems(ctx context.Context, tenantID int64, f Filters) ([]ItemRow, error) {
	args := []any{tenantID}
	cond, args := supplierItemFilter(f, args)
	query := itemColumns + itemJoin + ` WHERE ii.tenant_id = $1` + cond + ` ORDER BY ii.item_date, ii.id`
	return r.queryItems(ctx, query, args)
}

func (r *repository) ItemsForProviders(ctx context.Context, tenantID int64, f Filters, providerIDs []int64) ([]ItemRow, error) {
	args := []any{tenantID}
	cond, args := supplierItemFilter(f, args)
	args = append(args, providerIDs)
	cond += ` AND inv.provider_id = ANY($` + strconv.Itoa(len(args)) + `)`
	query := itemColumns + itemJoin + ` WHERE ii.tenant_id = $1` + cond + ` ORDER BY ii.item_date, ii.id`
	return r.queryItems(ctx, query, args)
}

// invoiceFilter restricts invoice-level queries. Item-level filters narrow
// through an EXISTS over the invoice's items so both query shapes agree on
// which invoices qualify.
func invoiceFilter(f Filters, args []any) (string, []any) {
	cond := ""
	if f.ProviderID != 0 {
		args = append(args, f.ProviderID)
		cond += ` AND inv.provider_id = $` + strconv.Itoa(len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		cond += ` AND inv.issue_date >= $` + strconv.Itoa(len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		cond += ` AND inv.issue_date <= $` + strconv.Itoa(len(args))
	}
	if f.MaterialID != 0 || f.Category != "" || f.WorkOrder != "" || f.Search != "" {
		sub := `SELECT 1 FROM invoice_items ii JOIN materials m ON m.id = ii.material_id WHERE ii.invoice_id = inv.id`
		var c string
		c, args = itemConds(f, args)
		cond += ` AND EXISTS (` + sub + c + `)`
	}
	return cond, args
}

// matchingQuantity builds a correlated subquery summing the quantities of one
// invoice's matching items, used to rank suppliers by quantity over the same
// invoice population the breakdown is built from.
func matchingQuantity(f Filters, args []any) (string, []any) {
	sub := `SELECT COALESCE(SUM(ii.quantity),0) FROM invoice_items ii JOIN materials m ON m.id = ii.material_id WHERE ii.invoice_id = inv.id`
	c, args := itemConds(f, args)
	return `(` + sub + c + `)`, args
}

const invoiceColumns = `
	SELECT inv.id, inv.provider_id, p.name, inv.code, inv.issue_date, inv.total
	FROM invoices inv
	JOIN providers p ON p.id = inv.provider_id`

func (r *repository) queryInvoices(ctx context.Context, query string, args []any) ([]InvoiceRow, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []InvoiceRow
	for rows.Next() {
		var iv InvoiceRow
		if err := rows.Scan(&iv.InvoiceID, &iv.ProviderID, &iv.ProviderName, &iv.Code, &iv.IssueDate, &iv.Total); err != nil {
			return nil, err
		}
		invoices = append(invoices, iv)
	}
	return invoices, rows.Err()
}

func (r *repository) Invoices(ctx context.Context, tenantID int64, f Filters) ([]InvoiceRow, error) {
	args := []any{tenantID}
	cond, args := invoiceFilter(f, args)
	query := invoiceColumns + ` WHERE inv.tenant_id = $1` + cond + ` ORDER BY inv.issue_date, inv.id`
	return r.queryInvoices(ctx, query, args)
}

func (r *repository) InvoicesForProviders(ctx context.Context, tenantID int64, f Filters, providerIDs []int64) ([]InvoiceRow, error) {
	args := []any{tenantID}
	cond, args := invoiceFilter(f, args)
	args = append(args, providerIDs)
	cond += ` AND inv.provider_id = ANY($` + strconv.Itoa(len(args)) + `)`
	query := invoiceColumns + ` WHERE inv.tenant_id = $1` + cond + ` ORDER BY inv.issue_date, inv.id`
	return r.queryInvoices(ctx, query, args)
}

// materialPageOrder maps the sort key to the item-grouped ORDER BY. The id
// tie-break keeps page boundaries deterministic.
func materialPageOrder(sort SortKey) string {
	switch sort {
	case SortQuantity:
		return ` ORDER BY SUM(ii.quantity) DESC, ii.material_id`
	case SortDate:
		return ` ORDER BY MAX(ii.item_date) DESC, ii.material_id`
	case SortName:
		return ` ORDER BY m.name ASC, ii.material_id`
	case SortNameDesc:
		return ` ORDER BY m.name DESC, ii.material_id`
	default:
		return ` ORDER BY SUM(ii.total_price) DESC, ii.material_id`
	}
}

func (r *repository) MaterialPage(ctx context.Context, tenantID int64, f Filters, limit, offset int) ([]int64, int, error) {
	args := []any{tenantID}
	cond, args := itemFilter(f, args)
	base := itemJoin + ` WHERE ii.tenant_id = $1` + cond

	var total int
	if err := r.q.QueryRow(ctx,
		`SELECT COUNT(DISTINCT ii.material_id)`+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ii.material_id` + base +
		` GROUP BY ii.material_id, m.name` +
		materialPageOrder(f.Sort)
	args = append(args, limit, offset)
	query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	return r.queryIDs(ctx, query, args, total)
}

// supplierPageOrder maps the sort key to the invoice-grouped ORDER BY. Every
// rank expression mirrors the aggregate the in-memory breakdown sorts on, so
// concatenated pages reproduce the full-mode ordering.
func supplierPageOrder(f Filters, args []any) (string, []any) {
	switch f.Sort {
	case SortQuantity:
		sub, args := matchingQuantity(f, args)
		return ` ORDER BY SUM(` + sub + `) DESC, inv.provider_id`, args
	case SortDate:
		return ` ORDER BY MAX(inv.issue_date) DESC, inv.provider_id`, args
	case SortName:
		return ` ORDER BY p.name ASC, inv.provider_id`, args
	case SortNameDesc:
		return ` ORDER BY p.name DESC, inv.provider_id`, args
	default:
		return ` ORDER BY SUM(inv.total) DESC, inv.provider_id`, args
	}
}

func (r *repository) SupplierPage(ctx context.Context, tenantID int64, f Filters, limit, offset int) ([]int64, int, error) {
	args := []any{tenantID}
	cond, args := invoiceFilter(f, args)
	base := ` FROM invoices inv JOIN providers p ON p.id = inv.provider_id WHERE inv.tenant_id = $1` + cond

	var total int
	if err := r.q.QueryRow(ctx,
		`SELECT COUNT(DISTINCT inv.provider_id)`+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order, args := supplierPageOrder(f, args)
	query := `SELECT inv.provider_id` + base + ` GROUP BY inv.provider_id, p.name` + order
	args = append(args, limit, offset)
	query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	return r.queryIDs(ctx, query, args, total)
}

func (r *repository) queryIDs(ctx context.Context, query string, args []any, total int) ([]int64, int, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, 0, err
		}
		ids = append(ids, id)
	}
	return ids, total, rows.Err()
}
