package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invio-erp/invio/internal/alerts"
	"github.com/invio-erp/invio/internal/catalog"
	"github.com/invio-erp/invio/internal/suppliers"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// memState is the data visible to committed transactions.
type memState struct {
	nextID     int64
	providers  []suppliers.Provider
	materials  []catalog.Material
	invoices   []Invoice
	items      []InvoiceItem
	lastPrices map[string]PricePoint
	alerts     []alerts.PriceAlert
}

func newMemState() *memState {
	return &memState{lastPrices: map[string]PricePoint{}}
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID:     s.nextID,
		providers:  append([]suppliers.Provider(nil), s.providers...),
		materials:  append([]catalog.Material(nil), s.materials...),
		invoices:   append([]Invoice(nil), s.invoices...),
		items:      append([]InvoiceItem(nil), s.items...),
		lastPrices: map[string]PricePoint{},
		alerts:     append([]alerts.PriceAlert(nil), s.alerts...),
	}
	for k, v := range s.lastPrices {
		c.lastPrices[k] = v
	}
	return c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

func priceKey(tenantID, materialID, providerID int64) string {
	return fmt.Sprintf("%d/%d/%d", tenantID, materialID, providerID)
}

// memStore implements Store over memState with copy-on-write transactions:
// the callback works on a clone that only replaces the committed state when
// it returns nil.
type memStore struct {
	state *memState

	createMaterialErrs []error
	createItemErr      error
	failItemName       string
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func (s *memStore) WithinTx(_ context.Context, fn func(context.Context, TxStore) error) error {
	staged := s.state.clone()
	tx := &memTx{store: s, state: staged}
	if err := fn(context.Background(), tx); err != nil {
		return err
	}
	s.state = staged
	return nil
}

type memTx struct {
	store *memStore
	state *memState
}

func (t *memTx) Catalog() catalog.Repository     { return &memCatalog{tx: t} }
func (t *memTx) Providers() suppliers.Repository { return &memProviders{tx: t} }
func (t *memTx) Alerts() alerts.Repository       { return &memAlerts{tx: t} }

func (t *memTx) CreateInvoice(_ context.Context, tenantID, providerID int64, code string, issueDate time.Time) (int64, error) {
	id := t.state.id()
	t.state.invoices = append(t.state.invoices, Invoice{
		ID: id, TenantID: tenantID, ProviderID: providerID, Code: code, IssueDate: issueDate,
	})
	return id, nil
}

func (t *memTx) CreateItem(_ context.Context, item InvoiceItem) error {
	if t.store.createItemErr != nil {
		return t.store.createItemErr
	}
	item.ID = t.state.id()
	t.state.items = append(t.state.items, item)
	return nil
}

func (t *memTx) SetInvoiceTotal(_ context.Context, invoiceID int64, total decimal.Decimal) error {
	for i := range t.state.invoices {
		if t.state.invoices[i].ID == invoiceID {
			t.state.invoices[i].Total = total
			return nil
		}
	}
	return fmt.Errorf("invoice %d not staged", invoiceID)
}

func (t *memTx) LastPrice(_ context.Context, tenantID, materialID, providerID int64) (PricePoint, bool, error) {
	point, ok := t.state.lastPrices[priceKey(tenantID, materialID, providerID)]
	return point, ok, nil
}

func (t *memTx) UpsertLastPrice(_ context.Context, tenantID, materialID, providerID int64, price decimal.Decimal, at time.Time) error {
	key := priceKey(tenantID, materialID, providerID)
	if current, ok := t.state.lastPrices[key]; ok && current.At.After(at) {
		return nil
	}
	t.state.lastPrices[key] = PricePoint{Price: price, At: at}
	return nil
}

type memCatalog struct {
	tx *memTx
}

func (c *memCatalog) Get(_ context.Context, id int64) (catalog.Material, error) {
	for _, m := range c.tx.state.materials {
		if m.ID == id {
			return m, nil
		}
	}
	return catalog.Material{}, catalog.ErrNotFound
}

func (c *memCatalog) GetByCode(_ context.Context, tenantID int64, code string) (catalog.Material, error) {
	for _, m := range c.tx.state.materials {
		if m.TenantID != tenantID {
			continue
		}
		if m.Code == code || m.RefCode == code {
			return m, nil
		}
		for _, alt := range m.AltCodes {
			if alt == code {
				return m, nil
			}
		}
	}
	return catalog.Material{}, catalog.ErrNotFound
}

func (c *memCatalog) FindSimilarCode(_ context.Context, tenantID int64, code string) (catalog.Material, error) {
	for _, m := range c.tx.state.materials {
		if m.TenantID != tenantID {
			continue
		}
		if len(m.Code) >= 6 && (strings.Contains(m.Code, code) || strings.Contains(code, m.Code)) {
			return m, nil
		}
	}
	return catalog.Material{}, catalog.ErrNotFound
}

func (c *memCatalog) ListNames(_ context.Context, tenantID int64) ([]catalog.MaterialName, error) {
	var names []catalog.MaterialName
	for _, m := range c.tx.state.materials {
		if m.TenantID == tenantID {
			names = append(names, catalog.MaterialName{ID: m.ID, Name: m.Name})
		}
	}
	return names, nil
}

func (c *memCatalog) Create(_ context.Context, tenantID int64, input catalog.CreateMaterialInput) (catalog.Material, error) {
	if len(c.tx.store.createMaterialErrs) > 0 {
		err := c.tx.store.createMaterialErrs[0]
		c.tx.store.createMaterialErrs = c.tx.store.createMaterialErrs[1:]
		if err != nil {
			return catalog.Material{}, err
		}
	}
	if c.tx.store.failItemName != "" && input.Name == c.tx.store.failItemName {
		return catalog.Material{}, fmt.Errorf("injected failure for %s", input.Name)
	}
	m := catalog.Material{
		ID: c.tx.state.id(), TenantID: tenantID,
		Code: input.Code, Name: input.Name, RefCode: input.RefCode, Active: true,
	}
	c.tx.state.materials = append(c.tx.state.materials, m)
	return m, nil
}

func (c *memCatalog) AddAltCode(_ context.Context, id int64, code string) error {
	for i := range c.tx.state.materials {
		if c.tx.state.materials[i].ID == id {
			c.tx.state.materials[i].AltCodes = append(c.tx.state.materials[i].AltCodes, code)
		}
	}
	return nil
}

type memProviders struct {
	tx *memTx
}

func (p *memProviders) Get(_ context.Context, id int64) (suppliers.Provider, error) {
	for _, pr := range p.tx.state.providers {
		if pr.ID == id {
			return pr, nil
		}
	}
	return suppliers.Provider{}, suppliers.ErrNotFound
}

func (p *memProviders) GetByTaxID(_ context.Context, tenantID int64, taxID string) (suppliers.Provider, error) {
	normalized := suppliers.NormalizeTaxID(taxID)
	for _, pr := range p.tx.state.providers {
		if pr.TenantID == tenantID && pr.TaxID == normalized {
			return pr, nil
		}
	}
	return suppliers.Provider{}, suppliers.ErrNotFound
}

func (p *memProviders) Create(_ context.Context, tenantID int64, input suppliers.CreateProviderInput) (suppliers.Provider, error) {
	pr := suppliers.Provider{
		ID: p.tx.state.id(), TenantID: tenantID,
		Name: input.Name, TaxID: suppliers.NormalizeTaxID(input.TaxID), Type: input.Type,
	}
	p.tx.state.providers = append(p.tx.state.providers, pr)
	return pr, nil
}

func (p *memProviders) List(context.Context, int64, suppliers.ListProvidersRequest) ([]suppliers.Provider, int, error) {
	return nil, 0, nil
}
func (p *memProviders) ReassignInvoices(context.Context, int64, int64, int64) error   { return nil }
func (p *memProviders) MergeMaterialLinks(context.Context, int64, int64, int64) error { return nil }
func (p *memProviders) ReassignAlerts(context.Context, int64, int64, int64) error     { return nil }
func (p *memProviders) Delete(context.Context, int64) error                           { return nil }

type memAlerts struct {
	tx *memTx
}

func (a *memAlerts) Insert(_ context.Context, alert alerts.PriceAlert) (bool, error) {
	for _, existing := range a.tx.state.alerts {
		if existing.TenantID == alert.TenantID &&
			existing.MaterialID == alert.MaterialID &&
			existing.ProviderID == alert.ProviderID &&
			existing.EffectiveDate.Equal(alert.EffectiveDate) {
			return false, nil
		}
	}
	alert.ID = a.tx.state.id()
	alert.Status = alerts.StatusOpen
	a.tx.state.alerts = append(a.tx.state.alerts, alert)
	return true, nil
}

func (a *memAlerts) Get(context.Context, int64) (alerts.PriceAlert, error) {
	return alerts.PriceAlert{}, alerts.ErrNotFound
}
func (a *memAlerts) List(context.Context, int64, alerts.ListAlertsRequest) ([]alerts.PriceAlert, int, error) {
	return nil, 0, nil
}
func (a *memAlerts) UpdateStatus(context.Context, int64, alerts.Status) error { return nil }

// memJobs tracks job state in memory. cancelAfter flips the status to
// cancelled once Status has been asked that many times.
type memJobs struct {
	status      JobStatus
	summary     Summary
	final       JobStatus
	statusCalls int
	cancelAfter int
}

func newMemJobs() *memJobs {
	return &memJobs{status: JobQueued}
}

func (j *memJobs) Create(context.Context, Job) error { return nil }
func (j *memJobs) Get(context.Context, uuid.UUID) (Job, error) {
	return Job{Status: j.status, Summary: j.summary}, nil
}
func (j *memJobs) MarkRunning(context.Context, uuid.UUID) error {
	j.status = JobRunning
	return nil
}
func (j *memJobs) Status(context.Context, uuid.UUID) (JobStatus, error) {
	j.statusCalls++
	if j.cancelAfter > 0 && j.statusCalls > j.cancelAfter {
		j.status = JobCancelled
	}
	return j.status, nil
}
func (j *memJobs) Finish(_ context.Context, _ uuid.UUID, status JobStatus, summary Summary) error {
	if j.status != JobCancelled {
		j.status = status
	}
	j.final = j.status
	j.summary = summary
	return nil
}
func (j *memJobs) Cancel(context.Context, uuid.UUID) error {
	j.status = JobCancelled
	return nil
}

type memCache struct {
	bumps int
}

func (c *memCache) Bump(context.Context, int64) error {
	c.bumps++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func batchSource(t *testing.T, records ...InvoiceRecord) io.Reader {
	var lines []string
	for _, record := range records {
		lines = append(lines, envelope(t, record))
	}
	return strings.NewReader(strings.Join(lines, "\n") + "\n")
}

func TestRunIngestsBatch(t *testing.T) {
	store := newMemStore()
	jobs := newMemJobs()
	cache := &memCache{}
	svc := NewService(store, jobs, testLogger(), 5, cache)

	record := validRecord("F-100")
	record.Items = []ItemRecord{
		{Name: "Cemento gris", Quantity: dec("1"), UnitPrice: dec("10.10")},
		{Name: "Arena fina", Quantity: dec("1"), UnitPrice: dec("20.20")},
		{Name: "Grava 20mm", Quantity: dec("1"), UnitPrice: dec("5.05")},
	}

	summary, err := svc.Run(context.Background(), uuid.New(), 1, batchSource(t, record, validRecord("F-101")))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, JobCompleted, jobs.final)
	assert.Equal(t, 1, cache.bumps)

	require.Len(t, store.state.invoices, 2)
	assert.Equal(t, "35.35", store.state.invoices[0].Total.String())
	assert.Len(t, store.state.items, 4)
	assert.Len(t, store.state.providers, 1, "same tax id resolves to one provider")
}

func TestRunIsolatesParseFailures(t *testing.T) {
	store := newMemStore()
	jobs := newMemJobs()
	svc := NewService(store, jobs, testLogger(), 5, nil)

	src := strings.Join([]string{
		envelope(t, validRecord("F-001")),
		"garbage line",
		envelope(t, validRecord("F-002")),
	}, "\n")

	summary, err := svc.Run(context.Background(), uuid.New(), 1, strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Succeeded)
	require.Len(t, summary.ParseFailures, 1)
	assert.Equal(t, 2, summary.ParseFailures[0].Line)
	assert.Equal(t, JobCompleted, jobs.final)
}

func TestRunRollsBackFailedInvoice(t *testing.T) {
	store := newMemStore()
	store.failItemName = "Ladrillo macizo"
	jobs := newMemJobs()
	svc := NewService(store, jobs, testLogger(), 5, nil)

	record := validRecord("F-200")
	record.Items = []ItemRecord{
		{Name: "Tornillo M8", Quantity: dec("2"), UnitPrice: dec("1.00")},
		{Name: "Ladrillo macizo", Quantity: dec("5"), UnitPrice: dec("3.00")},
	}

	summary, err := svc.Run(context.Background(), uuid.New(), 1, batchSource(t, record, validRecord("F-201")))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "F-200", summary.Failures[0].InvoiceCode)

	require.Len(t, store.state.invoices, 1, "failed invoice fully rolled back")
	assert.Equal(t, "F-201", store.state.invoices[0].Code)
	assert.Len(t, store.state.items, 1)
}

func TestRunRaisesAlertOnce(t *testing.T) {
	store := newMemStore()
	jobs := newMemJobs()
	svc := NewService(store, jobs, testLogger(), 5, nil)

	item := ItemRecord{Name: "Tornillo M8", Code: "TOR-M8-001", Quantity: dec("1"), UnitPrice: dec("10.00")}
	first := validRecord("F-300")
	first.IssueDate = Date{Time: mustDate("2026-01-10")}
	first.Items = []ItemRecord{item}

	item.UnitPrice = dec("11.50")
	second := validRecord("F-301")
	second.IssueDate = Date{Time: mustDate("2026-02-10")}
	second.Items = []ItemRecord{item}

	// Same pair, price and date as the second invoice: duplicate alert key.
	third := second
	third.InvoiceCode = "F-302"

	summary, err := svc.Run(context.Background(), uuid.New(), 1, batchSource(t, first, second, third))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.AlertsRaised)
	require.Len(t, store.state.alerts, 1)
	alert := store.state.alerts[0]
	assert.Equal(t, "15", alert.ChangePct.String())
	assert.Equal(t, alerts.SeverityMedium, alert.Severity)
	assert.Equal(t, "10", alert.OldPrice.String())
	assert.Equal(t, "11.5", alert.NewPrice.String())
}

func TestRunSkipsAlertBelowThreshold(t *testing.T) {
	store := newMemStore()
	jobs := newMemJobs()
	svc := NewService(store, jobs, testLogger(), 5, nil)

	item := ItemRecord{Name: "Tornillo M8", Code: "TOR-M8-001", Quantity: dec("1"), UnitPrice: dec("10.00")}
	first := validRecord("F-310")
	first.IssueDate = Date{Time: mustDate("2026-01-10")}
	first.Items = []ItemRecord{item}

	item.UnitPrice = dec("10.40")
	second := validRecord("F-311")
	second.IssueDate = Date{Time: mustDate("2026-02-10")}
	second.Items = []ItemRecord{item}

	_, err := svc.Run(context.Background(), uuid.New(), 1, batchSource(t, first, second))
	require.NoError(t, err)

	assert.Empty(t, store.state.alerts, "4 percent increase stays under the 5 percent threshold")
}

func TestRunOutOfOrderPriceNeverRegresses(t *testing.T) {
	store := newMemStore()
	jobs := newMemJobs()
	svc := NewService(store, jobs, testLogger(), 5, nil)

	item := ItemRecord{Name: "Tornillo M8", Code: "TOR-M8-001", Quantity: dec("1"), UnitPrice: dec("12.00")}
	recent := validRecord("F-320")
	recent.IssueDate = Date{Time: mustDate("2026-03-10")}
	recent.Items = []ItemRecord{item}

	item.UnitPrice = dec("9.00")
	stale := validRecord("F-321")
	stale.IssueDate = Date{Time: mustDate("2026-01-10")}
	stale.Items = []ItemRecord{item}

	_, err := svc.Run(context.Background(), uuid.New(), 1, batchSource(t, recent, stale))
	require.NoError(t, err)

	assert.Empty(t, store.state.alerts, "older observation never alerts")
	point := store.state.lastPrices[priceKey(1, store.state.materials[0].ID, store.state.providers[0].ID)]
	assert.Equal(t, "12", point.Price.String(), "last price keeps the more recent observation")
}

func TestRunCancellationStopsBetweenInvoices(t *testing.T) {
	store := newMemStore()
	jobs := newMemJobs()
	jobs.cancelAfter = 2
	svc := NewService(store, jobs, testLogger(), 5, nil)

	src := batchSource(t, validRecord("F-400"), validRecord("F-401"), validRecord("F-402"), validRecord("F-403"))

	summary, err := svc.Run(context.Background(), uuid.New(), 1, src)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, JobCancelled, jobs.final)
	assert.Len(t, store.state.invoices, 2, "records committed before the cancel stay committed")
}

func TestRunRetriesOnceOnMaterialRace(t *testing.T) {
	store := newMemStore()
	store.createMaterialErrs = []error{
		fmt.Errorf("create material: %w", &pgconn.PgError{Code: "23505", ConstraintName: catalog.UniqueCodeConstraint}),
	}
	jobs := newMemJobs()
	svc := NewService(store, jobs, testLogger(), 5, nil)

	summary, err := svc.Run(context.Background(), uuid.New(), 1, batchSource(t, validRecord("F-500")))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Len(t, store.state.invoices, 1)
}

type failingReader struct {
	r    io.Reader
	read bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.read {
		return 0, fmt.Errorf("connection reset")
	}
	f.read = true
	return f.r.Read(p)
}

func TestRunFailsJobOnSystemicReadError(t *testing.T) {
	store := newMemStore()
	jobs := newMemJobs()
	svc := NewService(store, jobs, testLogger(), 5, nil)

	// Big padding defeats bufio's initial fill so the second read happens.
	padding := strings.Repeat(" ", 64<<10)
	src := &failingReader{r: strings.NewReader(envelope(t, validRecord("F-600")) + "\n" + padding)}

	_, err := svc.Run(context.Background(), uuid.New(), 1, src)
	require.Error(t, err)
	assert.Equal(t, JobFailed, jobs.final)
}

func TestSubmitAndCancelScopedToTenant(t *testing.T) {
	jobs := newMemJobs()
	svc := NewService(newMemStore(), jobs, testLogger(), 5, nil)

	job, err := svc.Submit(context.Background(), 7, "/tmp/batch.jsonl")
	require.NoError(t, err)
	assert.Equal(t, JobQueued, job.Status)
	assert.Equal(t, int64(7), job.TenantID)

	_, err = svc.Job(context.Background(), 9, job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}
