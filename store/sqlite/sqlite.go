/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements every store the genealogy engine needs (EntityStore,
  ActivityStore, LedgerStore, MaterialStore, ShipmentStore,
  PickMethodStore) plus the UnitOfWork transaction scope, using SQLite.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements touch item_ledger
  - No UPDATE or DELETE statements touch tracked_activities or their edges
  - Corrections are made via offsetting rows only

KEY TABLES:
  tracked_entities:        Current state of each batch/serial unit
  tracked_activities:      Immutable genealogy audit records
  tracked_activity_inputs / tracked_activity_outputs: Genealogy edges
  item_ledger:             Immutable signed quantity deltas
  job_materials, job_operations, production_records, jobs:
                           Job-side documents and counters
  shipments, shipment_lines, sales_order_lines:
                           Shipment-side documents and accumulators
  pick_methods:            (item, location) -> default shelf

TRANSACTIONS:
  WithTx wraps fn in a single BEGIN ... COMMIT/ROLLBACK; every store view
  it hands to fn reads and writes through the same *sql.Tx, so state
  checks and writes observe one consistent snapshot. A store-level mutex
  serializes transactions, which (with SQLite's single writer) resolves
  racing operations by ordering them rather than by row locks.

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't block,
  one writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/inventory.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  orch := genealogy.NewOrchestrator(store)

SEE ALSO:
  - genealogy/store.go: Interface definitions
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/forge/inventory-engine/genealogy"
	"github.com/forge/inventory-engine/inventory"
)

// Store implements genealogy.UnitOfWork using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes WithTx
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Tracked entities (current state per batch/serial unit)
	CREATE TABLE IF NOT EXISTS tracked_entities (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		location_id TEXT NOT NULL,
		shelf_id TEXT,
		quantity TEXT NOT NULL,
		status TEXT NOT NULL,
		tracking_type TEXT NOT NULL,
		source_document TEXT,
		source_document_id TEXT,
		source_readable_id TEXT,
		parent_make_method_id TEXT,
		split_entity_id TEXT,
		attributes_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entities_item
		ON tracked_entities(item_id);
	CREATE INDEX IF NOT EXISTS idx_entities_status
		ON tracked_entities(status);
	-- Lineage queries by producing make method
	CREATE INDEX IF NOT EXISTS idx_entities_make_method
		ON tracked_entities(parent_make_method_id)
		WHERE parent_make_method_id IS NOT NULL;

	-- Tracked activities (append-only genealogy audit trail)
	CREATE TABLE IF NOT EXISTS tracked_activities (
		id TEXT PRIMARY KEY,
		activity_type TEXT NOT NULL,
		source_document TEXT,
		source_document_id TEXT,
		attributes_json TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activities_document
		ON tracked_activities(source_document_id);

	CREATE TABLE IF NOT EXISTS tracked_activity_inputs (
		activity_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		quantity TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activity_inputs_activity
		ON tracked_activity_inputs(activity_id);
	CREATE INDEX IF NOT EXISTS idx_activity_inputs_entity
		ON tracked_activity_inputs(entity_id);

	CREATE TABLE IF NOT EXISTS tracked_activity_outputs (
		activity_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		quantity TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activity_outputs_activity
		ON tracked_activity_outputs(activity_id);
	CREATE INDEX IF NOT EXISTS idx_activity_outputs_entity
		ON tracked_activity_outputs(entity_id);

	-- Item ledger (append-only, source of truth for on-hand)
	CREATE TABLE IF NOT EXISTS item_ledger (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		location_id TEXT NOT NULL,
		shelf_id TEXT,
		quantity TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		document_type TEXT NOT NULL,
		document_id TEXT NOT NULL,
		document_readable_id TEXT,
		tracked_entity_id TEXT,
		created_by TEXT,
		posting_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- On-hand calculation (hot path)
	CREATE INDEX IF NOT EXISTS idx_ledger_item_location_shelf
		ON item_ledger(item_id, location_id, shelf_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_entity
		ON item_ledger(tracked_entity_id) WHERE tracked_entity_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_ledger_document
		ON item_ledger(document_id);

	-- Job-side documents
	CREATE TABLE IF NOT EXISTS job_materials (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		job_id TEXT NOT NULL,
		method_type TEXT NOT NULL,
		quantity_to_issue TEXT NOT NULL,
		quantity_issued TEXT NOT NULL,
		shelf_id TEXT,
		default_shelf INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_materials_job
		ON job_materials(job_id);

	CREATE TABLE IF NOT EXISTS job_operations (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		target_quantity TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS production_records (
		id TEXT PRIMARY KEY,
		job_operation_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_production_operation
		ON production_records(job_operation_id);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		quantity_shipped TEXT NOT NULL DEFAULT '0',
		quantity_complete TEXT NOT NULL DEFAULT '0'
	);

	-- Shipment-side documents
	CREATE TABLE IF NOT EXISTS shipments (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		posted_at TEXT
	);

	CREATE TABLE IF NOT EXISTS shipment_lines (
		id TEXT PRIMARY KEY,
		shipment_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		shipped_quantity TEXT NOT NULL,
		location_id TEXT NOT NULL,
		shelf_id TEXT,
		requires_batch INTEGER DEFAULT 0,
		requires_serial INTEGER DEFAULT 0,
		tracked_entity_id TEXT,
		sales_order_line_id TEXT,
		job_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_shipment_lines_shipment
		ON shipment_lines(shipment_id);

	CREATE TABLE IF NOT EXISTS sales_order_lines (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		quantity_ordered TEXT NOT NULL,
		quantity_shipped TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL
	);

	-- Pick methods ((item, location) -> default shelf)
	CREATE TABLE IF NOT EXISTS pick_methods (
		item_id TEXT NOT NULL,
		location_id TEXT NOT NULL,
		shelf_id TEXT NOT NULL,
		PRIMARY KEY (item_id, location_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, so every query below
// works inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// STORES BUNDLE + UNIT OF WORK
// =============================================================================

func (s *Store) Entities() genealogy.EntityStore        { return entityStore{q: s.db} }
func (s *Store) Activities() genealogy.ActivityStore    { return activityStore{q: s.db} }
func (s *Store) Ledger() inventory.LedgerStore          { return ledgerStore{q: s.db} }
func (s *Store) Materials() genealogy.MaterialStore     { return materialStore{q: s.db} }
func (s *Store) Shipments() genealogy.ShipmentStore     { return shipmentStore{q: s.db} }
func (s *Store) PickMethods() genealogy.PickMethodStore { return pickMethodStore{q: s.db} }

// WithTx executes fn within a database transaction. Every store view
// handed to fn reads and writes through the same transaction.
func (s *Store) WithTx(ctx context.Context, fn func(genealogy.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(txStores{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type txStores struct {
	tx *sql.Tx
}

func (t txStores) Entities() genealogy.EntityStore        { return entityStore{q: t.tx} }
func (t txStores) Activities() genealogy.ActivityStore    { return activityStore{q: t.tx} }
func (t txStores) Ledger() inventory.LedgerStore          { return ledgerStore{q: t.tx} }
func (t txStores) Materials() genealogy.MaterialStore     { return materialStore{q: t.tx} }
func (t txStores) Shipments() genealogy.ShipmentStore     { return shipmentStore{q: t.tx} }
func (t txStores) PickMethods() genealogy.PickMethodStore { return pickMethodStore{q: t.tx} }

// =============================================================================
// ENTITY STORE
// =============================================================================

type entityStore struct {
	q dbtx
}

func (es entityStore) Create(ctx context.Context, e *genealogy.TrackedEntity) error {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}
	_, err = es.q.ExecContext(ctx, `
		INSERT INTO tracked_entities
		(id, item_id, location_id, shelf_id, quantity, status, tracking_type,
		 source_document, source_document_id, source_readable_id,
		 parent_make_method_id, split_entity_id, attributes_json,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ItemID, e.LocationID, e.ShelfID,
		e.Quantity.String(), e.Status, e.TrackingType,
		e.Source.Type, e.Source.ID, e.Source.ReadableID,
		nullString(e.Attributes.ParentMakeMethodID),
		nullString(string(e.Attributes.SplitEntityID)),
		string(attrs),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
		e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create entity: %w", err)
	}
	return nil
}

const entityColumns = `id, item_id, location_id, shelf_id, quantity, status, tracking_type,
	source_document, source_document_id, source_readable_id, attributes_json,
	created_at, updated_at`

func (es entityStore) Get(ctx context.Context, id genealogy.EntityID) (*genealogy.TrackedEntity, error) {
	row := es.q.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM tracked_entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, &genealogy.NotFoundError{Kind: "entity", ID: string(id)}
	}
	return e, err
}

func (es entityStore) SetStatus(ctx context.Context, id genealogy.EntityID, status genealogy.EntityStatus) error {
	return es.update(ctx, id,
		`UPDATE tracked_entities SET status = ?, updated_at = ? WHERE id = ?`,
		status, now(), id)
}

func (es entityStore) SetQuantity(ctx context.Context, id genealogy.EntityID, quantity decimal.Decimal) error {
	return es.update(ctx, id,
		`UPDATE tracked_entities SET quantity = ?, updated_at = ? WHERE id = ?`,
		quantity.String(), now(), id)
}

func (es entityStore) update(ctx context.Context, id genealogy.EntityID, query string, args ...any) error {
	res, err := es.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &genealogy.NotFoundError{Kind: "entity", ID: string(id)}
	}
	return nil
}

func (es entityStore) MergeAttributes(ctx context.Context, id genealogy.EntityID, patch genealogy.LineageAttributes) error {
	e, err := es.Get(ctx, id)
	if err != nil {
		return err
	}
	merged, err := e.Attributes.Merge(patch)
	if err != nil {
		return err
	}
	attrs, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}
	return es.update(ctx, id, `
		UPDATE tracked_entities
		SET attributes_json = ?, parent_make_method_id = ?, split_entity_id = ?, updated_at = ?
		WHERE id = ?`,
		string(attrs),
		nullString(merged.ParentMakeMethodID),
		nullString(string(merged.SplitEntityID)),
		now(), id)
}

func (es entityStore) FindByParentMakeMethod(ctx context.Context, makeMethodID string) ([]*genealogy.TrackedEntity, error) {
	rows, err := es.q.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM tracked_entities
		 WHERE parent_make_method_id = ? ORDER BY created_at ASC`, makeMethodID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var out []*genealogy.TrackedEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*genealogy.TrackedEntity, error) {
	var (
		e         genealogy.TrackedEntity
		shelf     sql.NullString
		srcDoc    sql.NullString
		srcID     sql.NullString
		srcRead   sql.NullString
		quantity  string
		attrsJSON sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&e.ID, &e.ItemID, &e.LocationID, &shelf, &quantity, &e.Status, &e.TrackingType,
		&srcDoc, &srcID, &srcRead, &attrsJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.ShelfID = inventory.ShelfID(shelf.String)
	e.Quantity = inventory.MustParseQuantity(quantity)
	e.Source = inventory.DocumentRef{
		Type:       inventory.DocumentType(srcDoc.String),
		ID:         srcID.String,
		ReadableID: srcRead.String,
	}
	if attrsJSON.Valid && attrsJSON.String != "" {
		if err := json.Unmarshal([]byte(attrsJSON.String), &e.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &e, nil
}

// =============================================================================
// ACTIVITY STORE (append-only)
// =============================================================================

type activityStore struct {
	q dbtx
}

func (as activityStore) Append(ctx context.Context, a *genealogy.TrackedActivity) error {
	attrs, err := json.Marshal(a.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}
	_, err = as.q.ExecContext(ctx, `
		INSERT INTO tracked_activities
		(id, activity_type, source_document, source_document_id, attributes_json, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Type, a.Source.Type, a.Source.ID, string(attrs), a.CreatedBy,
		a.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	for _, in := range a.Inputs {
		if _, err := as.q.ExecContext(ctx, `
			INSERT INTO tracked_activity_inputs (activity_id, entity_id, quantity)
			VALUES (?, ?, ?)`,
			a.ID, in.EntityID, in.Quantity.String()); err != nil {
			return fmt.Errorf("failed to append activity input: %w", err)
		}
	}
	for _, out := range a.Outputs {
		if _, err := as.q.ExecContext(ctx, `
			INSERT INTO tracked_activity_outputs (activity_id, entity_id, quantity)
			VALUES (?, ?, ?)`,
			a.ID, out.EntityID, out.Quantity.String()); err != nil {
			return fmt.Errorf("failed to append activity output: %w", err)
		}
	}
	return nil
}

func (as activityStore) ForDocument(ctx context.Context, documentID string) ([]*genealogy.TrackedActivity, error) {
	return as.query(ctx, `
		SELECT id, activity_type, source_document, source_document_id, attributes_json, created_by, created_at
		FROM tracked_activities
		WHERE source_document_id = ?
		ORDER BY created_at ASC, id ASC`, documentID)
}

func (as activityStore) ForEntity(ctx context.Context, id genealogy.EntityID) ([]*genealogy.TrackedActivity, error) {
	return as.query(ctx, `
		SELECT id, activity_type, source_document, source_document_id, attributes_json, created_by, created_at
		FROM tracked_activities
		WHERE id IN (
			SELECT activity_id FROM tracked_activity_inputs WHERE entity_id = ?
			UNION
			SELECT activity_id FROM tracked_activity_outputs WHERE entity_id = ?
		)
		ORDER BY created_at ASC, id ASC`, id, id)
}

func (as activityStore) query(ctx context.Context, q string, args ...any) ([]*genealogy.TrackedActivity, error) {
	rows, err := as.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var out []*genealogy.TrackedActivity
	for rows.Next() {
		var (
			a         genealogy.TrackedActivity
			srcDoc    sql.NullString
			srcID     sql.NullString
			attrsJSON sql.NullString
			createdBy sql.NullString
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.Type, &srcDoc, &srcID, &attrsJSON, &createdBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.Source = inventory.DocumentRef{Type: inventory.DocumentType(srcDoc.String), ID: srcID.String}
		a.CreatedBy = createdBy.String
		if attrsJSON.Valid && attrsJSON.String != "" {
			if err := json.Unmarshal([]byte(attrsJSON.String), &a.Attributes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal activity attributes: %w", err)
			}
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, a := range out {
		if err := as.loadEdges(ctx, a); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (as activityStore) loadEdges(ctx context.Context, a *genealogy.TrackedActivity) error {
	rows, err := as.q.QueryContext(ctx,
		`SELECT entity_id, quantity FROM tracked_activity_inputs WHERE activity_id = ?`, a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var in genealogy.ActivityInput
		var qty string
		if err := rows.Scan(&in.EntityID, &qty); err != nil {
			return err
		}
		in.ActivityID = a.ID
		in.Quantity = inventory.MustParseQuantity(qty)
		a.Inputs = append(a.Inputs, in)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	outRows, err := as.q.QueryContext(ctx,
		`SELECT entity_id, quantity FROM tracked_activity_outputs WHERE activity_id = ?`, a.ID)
	if err != nil {
		return err
	}
	defer outRows.Close()
	for outRows.Next() {
		var out genealogy.ActivityOutput
		var qty string
		if err := outRows.Scan(&out.EntityID, &qty); err != nil {
			return err
		}
		out.ActivityID = a.ID
		out.Quantity = inventory.MustParseQuantity(qty)
		a.Outputs = append(a.Outputs, out)
	}
	return outRows.Err()
}

// =============================================================================
// LEDGER STORE (append-only)
// =============================================================================

type ledgerStore struct {
	q dbtx
}

func (ls ledgerStore) Append(ctx context.Context, e inventory.LedgerEntry) error {
	_, err := ls.q.ExecContext(ctx, `
		INSERT INTO item_ledger
		(id, item_id, location_id, shelf_id, quantity, entry_type,
		 document_type, document_id, document_readable_id, tracked_entity_id,
		 created_by, posting_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ItemID, e.LocationID, e.ShelfID,
		e.Quantity.String(), e.EntryType,
		e.Document.Type, e.Document.ID, e.Document.ReadableID,
		nullString(e.TrackedEntityID),
		e.CreatedBy,
		e.PostingDate.UTC().Format(time.RFC3339Nano),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", inventory.ErrAppendFailed, err)
	}
	return nil
}

func (ls ledgerStore) AppendBatch(ctx context.Context, entries []inventory.LedgerEntry) error {
	for _, e := range entries {
		if err := ls.Append(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (ls ledgerStore) Entries(ctx context.Context, f inventory.EntryFilter) ([]inventory.LedgerEntry, error) {
	query := `
		SELECT id, item_id, location_id, shelf_id, quantity, entry_type,
		       document_type, document_id, document_readable_id, tracked_entity_id,
		       created_by, posting_date, created_at
		FROM item_ledger`
	var (
		conds []string
		args  []any
	)
	if f.ItemID != "" {
		conds = append(conds, "item_id = ?")
		args = append(args, f.ItemID)
	}
	if f.LocationID != "" {
		conds = append(conds, "location_id = ?")
		args = append(args, f.LocationID)
	}
	if f.ShelfID != "" {
		conds = append(conds, "shelf_id = ?")
		args = append(args, f.ShelfID)
	}
	if f.TrackedEntityID != "" {
		conds = append(conds, "tracked_entity_id = ?")
		args = append(args, f.TrackedEntityID)
	}
	if f.DocumentID != "" {
		conds = append(conds, "document_id = ?")
		args = append(args, f.DocumentID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY posting_date ASC, created_at ASC"

	rows, err := ls.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var out []inventory.LedgerEntry
	for rows.Next() {
		var (
			e           inventory.LedgerEntry
			shelf       sql.NullString
			docRead     sql.NullString
			entityID    sql.NullString
			createdBy   sql.NullString
			quantity    string
			postingDate string
			createdAt   string
		)
		if err := rows.Scan(&e.ID, &e.ItemID, &e.LocationID, &shelf, &quantity, &e.EntryType,
			&e.Document.Type, &e.Document.ID, &docRead, &entityID,
			&createdBy, &postingDate, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.ShelfID = inventory.ShelfID(shelf.String)
		e.Quantity = inventory.MustParseQuantity(quantity)
		e.Document.ReadableID = docRead.String
		e.TrackedEntityID = entityID.String
		e.CreatedBy = createdBy.String
		e.PostingDate, _ = time.Parse(time.RFC3339Nano, postingDate)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (ls ledgerStore) OnHand(ctx context.Context, item inventory.ItemID, location inventory.LocationID, shelf inventory.ShelfID) (decimal.Decimal, error) {
	// Quantities are stored as exact decimal strings; summing happens in
	// Go rather than SQLite float arithmetic.
	entries, err := ls.Entries(ctx, inventory.EntryFilter{ItemID: item, LocationID: location, ShelfID: shelf})
	if err != nil {
		return decimal.Zero, err
	}
	return inventory.SumEntries(entries), nil
}

// =============================================================================
// MATERIAL STORE
// =============================================================================

type materialStore struct {
	q dbtx
}

func (ms materialStore) GetMaterial(ctx context.Context, id genealogy.MaterialID) (*genealogy.JobMaterial, error) {
	var (
		m            genealogy.JobMaterial
		toIssue      string
		issued       string
		shelf        sql.NullString
		defaultShelf bool
	)
	err := ms.q.QueryRowContext(ctx, `
		SELECT id, item_id, job_id, method_type, quantity_to_issue, quantity_issued, shelf_id, default_shelf
		FROM job_materials WHERE id = ?`, id).
		Scan(&m.ID, &m.ItemID, &m.JobID, &m.MethodType, &toIssue, &issued, &shelf, &defaultShelf)
	if err == sql.ErrNoRows {
		return nil, &genealogy.NotFoundError{Kind: "material", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get material: %w", err)
	}
	m.QuantityToIssue = inventory.MustParseQuantity(toIssue)
	m.QuantityIssued = inventory.MustParseQuantity(issued)
	m.ShelfID = inventory.ShelfID(shelf.String)
	m.DefaultShelf = defaultShelf
	return &m, nil
}

func (ms materialStore) AddIssuedQuantity(ctx context.Context, id genealogy.MaterialID, delta decimal.Decimal) error {
	// Read-modify-write with exact decimals; callers run this inside
	// WithTx so the increment cannot race.
	m, err := ms.GetMaterial(ctx, id)
	if err != nil {
		return err
	}
	_, err = ms.q.ExecContext(ctx,
		`UPDATE job_materials SET quantity_issued = ? WHERE id = ?`,
		m.QuantityIssued.Add(delta).String(), id)
	if err != nil {
		return fmt.Errorf("failed to update issued quantity: %w", err)
	}
	return nil
}

func (ms materialStore) GetOperation(ctx context.Context, id genealogy.JobOperationID) (*genealogy.JobOperation, error) {
	var (
		op     genealogy.JobOperation
		target string
	)
	err := ms.q.QueryRowContext(ctx,
		`SELECT id, job_id, target_quantity FROM job_operations WHERE id = ?`, id).
		Scan(&op.ID, &op.JobID, &target)
	if err == sql.ErrNoRows {
		return nil, &genealogy.NotFoundError{Kind: "operation", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	op.TargetQuantity = inventory.MustParseQuantity(target)
	return &op, nil
}

func (ms materialStore) RecordProduction(ctx context.Context, rec genealogy.ProductionRecord) (*genealogy.ProductionRecord, error) {
	if _, err := ms.GetOperation(ctx, rec.JobOperationID); err != nil {
		return nil, err
	}
	count, err := ms.ProductionCount(ctx, rec.JobOperationID)
	if err != nil {
		return nil, err
	}
	rec.Sequence = count + 1
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("%s-%d", rec.JobOperationID, rec.Sequence)
	}
	_, err = ms.q.ExecContext(ctx, `
		INSERT INTO production_records
		(id, job_operation_id, entity_id, quantity, sequence, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.JobOperationID, rec.EntityID, rec.Quantity.String(), rec.Sequence,
		rec.CreatedBy, rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to record production: %w", err)
	}
	return &rec, nil
}

func (ms materialStore) ProductionCount(ctx context.Context, id genealogy.JobOperationID) (int, error) {
	var count int
	err := ms.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM production_records WHERE job_operation_id = ?`, id).
		Scan(&count)
	return count, err
}

func (ms materialStore) AddJobQuantities(ctx context.Context, id genealogy.JobID, shippedDelta, completeDelta decimal.Decimal) error {
	j, err := ms.GetJob(ctx, id)
	if err != nil {
		return err
	}
	_, err = ms.q.ExecContext(ctx,
		`UPDATE jobs SET quantity_shipped = ?, quantity_complete = ? WHERE id = ?`,
		j.QuantityShipped.Add(shippedDelta).String(),
		j.QuantityComplete.Add(completeDelta).String(), id)
	if err != nil {
		return fmt.Errorf("failed to update job quantities: %w", err)
	}
	return nil
}

func (ms materialStore) GetJob(ctx context.Context, id genealogy.JobID) (*genealogy.Job, error) {
	var (
		j        genealogy.Job
		shipped  string
		complete string
	)
	err := ms.q.QueryRowContext(ctx,
		`SELECT id, quantity_shipped, quantity_complete FROM jobs WHERE id = ?`, id).
		Scan(&j.ID, &shipped, &complete)
	if err == sql.ErrNoRows {
		return nil, &genealogy.NotFoundError{Kind: "job", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	j.QuantityShipped = inventory.MustParseQuantity(shipped)
	j.QuantityComplete = inventory.MustParseQuantity(complete)
	return &j, nil
}

// =============================================================================
// SHIPMENT STORE
// =============================================================================

type shipmentStore struct {
	q dbtx
}

func (ss shipmentStore) GetShipment(ctx context.Context, id genealogy.ShipmentID) (*genealogy.Shipment, error) {
	var (
		sh       genealogy.Shipment
		postedAt sql.NullString
	)
	err := ss.q.QueryRowContext(ctx,
		`SELECT id, status, posted_at FROM shipments WHERE id = ?`, id).
		Scan(&sh.ID, &sh.Status, &postedAt)
	if err == sql.ErrNoRows {
		return nil, &genealogy.NotFoundError{Kind: "shipment", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shipment: %w", err)
	}
	if postedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, postedAt.String)
		sh.PostedAt = &t
	}
	return &sh, nil
}

func (ss shipmentStore) Lines(ctx context.Context, id genealogy.ShipmentID) ([]*genealogy.ShipmentLine, error) {
	rows, err := ss.q.QueryContext(ctx, `
		SELECT id, shipment_id, item_id, shipped_quantity, location_id, shelf_id,
		       requires_batch, requires_serial, tracked_entity_id, sales_order_line_id, job_id
		FROM shipment_lines WHERE shipment_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query shipment lines: %w", err)
	}
	defer rows.Close()

	var out []*genealogy.ShipmentLine
	for rows.Next() {
		var (
			l         genealogy.ShipmentLine
			qty       string
			shelf     sql.NullString
			entityID  sql.NullString
			orderLine sql.NullString
			jobID     sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.ShipmentID, &l.ItemID, &qty, &l.LocationID, &shelf,
			&l.RequiresBatchTracking, &l.RequiresSerialTracking, &entityID, &orderLine, &jobID); err != nil {
			return nil, fmt.Errorf("failed to scan shipment line: %w", err)
		}
		l.ShippedQuantity = inventory.MustParseQuantity(qty)
		l.ShelfID = inventory.ShelfID(shelf.String)
		l.TrackedEntityID = genealogy.EntityID(entityID.String)
		l.SalesOrderLineID = genealogy.SalesOrderLineID(orderLine.String)
		l.JobID = genealogy.JobID(jobID.String)
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (ss shipmentStore) SetShipmentStatus(ctx context.Context, id genealogy.ShipmentID, status genealogy.ShipmentStatus) error {
	var postedAt any
	if status == genealogy.ShipmentPosted {
		postedAt = now()
	}
	res, err := ss.q.ExecContext(ctx,
		`UPDATE shipments SET status = ?, posted_at = COALESCE(?, posted_at) WHERE id = ?`,
		status, postedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update shipment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &genealogy.NotFoundError{Kind: "shipment", ID: string(id)}
	}
	return nil
}

func (ss shipmentStore) GetOrderLine(ctx context.Context, id genealogy.SalesOrderLineID) (*genealogy.SalesOrderLine, error) {
	var (
		ol      genealogy.SalesOrderLine
		ordered string
		shipped string
	)
	err := ss.q.QueryRowContext(ctx, `
		SELECT id, item_id, quantity_ordered, quantity_shipped, status
		FROM sales_order_lines WHERE id = ?`, id).
		Scan(&ol.ID, &ol.ItemID, &ordered, &shipped, &ol.Status)
	if err == sql.ErrNoRows {
		return nil, &genealogy.NotFoundError{Kind: "order line", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order line: %w", err)
	}
	ol.QuantityOrdered = inventory.MustParseQuantity(ordered)
	ol.QuantityShipped = inventory.MustParseQuantity(shipped)
	return &ol, nil
}

func (ss shipmentStore) AccumulateOrderLineShipped(ctx context.Context, id genealogy.SalesOrderLineID, delta decimal.Decimal) (*genealogy.SalesOrderLine, error) {
	ol, err := ss.GetOrderLine(ctx, id)
	if err != nil {
		return nil, err
	}
	ol.QuantityShipped = ol.QuantityShipped.Add(delta)
	_, err = ss.q.ExecContext(ctx,
		`UPDATE sales_order_lines SET quantity_shipped = ? WHERE id = ?`,
		ol.QuantityShipped.String(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update order line: %w", err)
	}
	return ol, nil
}

func (ss shipmentStore) SetOrderLineStatus(ctx context.Context, id genealogy.SalesOrderLineID, status genealogy.OrderLineStatus) error {
	res, err := ss.q.ExecContext(ctx,
		`UPDATE sales_order_lines SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update order line status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &genealogy.NotFoundError{Kind: "order line", ID: string(id)}
	}
	return nil
}

// =============================================================================
// PICK METHOD STORE
// =============================================================================

type pickMethodStore struct {
	q dbtx
}

func (ps pickMethodStore) DefaultShelf(ctx context.Context, item inventory.ItemID, location inventory.LocationID) (inventory.ShelfID, bool, error) {
	var shelf string
	err := ps.q.QueryRowContext(ctx,
		`SELECT shelf_id FROM pick_methods WHERE item_id = ? AND location_id = ?`,
		item, location).Scan(&shelf)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve pick method: %w", err)
	}
	return inventory.ShelfID(shelf), true, nil
}

// =============================================================================
// SEEDING - Collaborator documents originate outside the core engine
// =============================================================================

// SaveMaterial upserts a job material line supplied by the job subsystem.
func (s *Store) SaveMaterial(ctx context.Context, m genealogy.JobMaterial) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_materials
		(id, item_id, job_id, method_type, quantity_to_issue, quantity_issued, shelf_id, default_shelf)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			item_id = excluded.item_id,
			job_id = excluded.job_id,
			method_type = excluded.method_type,
			quantity_to_issue = excluded.quantity_to_issue,
			quantity_issued = excluded.quantity_issued,
			shelf_id = excluded.shelf_id,
			default_shelf = excluded.default_shelf`,
		m.ID, m.ItemID, m.JobID, m.MethodType,
		m.QuantityToIssue.String(), m.QuantityIssued.String(),
		m.ShelfID, m.DefaultShelf)
	return err
}

// SaveOperation upserts a job operation.
func (s *Store) SaveOperation(ctx context.Context, op genealogy.JobOperation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_operations (id, job_id, target_quantity)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			job_id = excluded.job_id,
			target_quantity = excluded.target_quantity`,
		op.ID, op.JobID, op.TargetQuantity.String())
	return err
}

// SaveJob upserts a job's accumulator row.
func (s *Store) SaveJob(ctx context.Context, j genealogy.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, quantity_shipped, quantity_complete)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			quantity_shipped = excluded.quantity_shipped,
			quantity_complete = excluded.quantity_complete`,
		j.ID, j.QuantityShipped.String(), j.QuantityComplete.String())
	return err
}

// SaveShipment upserts a shipment and replaces its lines.
func (s *Store) SaveShipment(ctx context.Context, sh genealogy.Shipment, lines ...genealogy.ShipmentLine) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shipments (id, status) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status`,
		sh.ID, sh.Status)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM shipment_lines WHERE shipment_id = ?`, sh.ID); err != nil {
		return err
	}
	for _, l := range lines {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO shipment_lines
			(id, shipment_id, item_id, shipped_quantity, location_id, shelf_id,
			 requires_batch, requires_serial, tracked_entity_id, sales_order_line_id, job_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, sh.ID, l.ItemID, l.ShippedQuantity.String(), l.LocationID, l.ShelfID,
			l.RequiresBatchTracking, l.RequiresSerialTracking,
			nullString(string(l.TrackedEntityID)),
			nullString(string(l.SalesOrderLineID)),
			nullString(string(l.JobID))); err != nil {
			return err
		}
	}
	return nil
}

// SaveOrderLine upserts a sales order line.
func (s *Store) SaveOrderLine(ctx context.Context, ol genealogy.SalesOrderLine) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales_order_lines (id, item_id, quantity_ordered, quantity_shipped, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			item_id = excluded.item_id,
			quantity_ordered = excluded.quantity_ordered,
			quantity_shipped = excluded.quantity_shipped,
			status = excluded.status`,
		ol.ID, ol.ItemID, ol.QuantityOrdered.String(), ol.QuantityShipped.String(), ol.Status)
	return err
}

// SavePickMethod upserts a default-shelf resolution.
func (s *Store) SavePickMethod(ctx context.Context, item inventory.ItemID, location inventory.LocationID, shelf inventory.ShelfID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pick_methods (item_id, location_id, shelf_id)
		VALUES (?, ?, ?)
		ON CONFLICT(item_id, location_id) DO UPDATE SET shelf_id = excluded.shelf_id`,
		item, location, shelf)
	return err
}

// Reset clears every table. Development and demo use only.
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{
		"tracked_entities", "tracked_activities",
		"tracked_activity_inputs", "tracked_activity_outputs",
		"item_ledger", "job_materials", "job_operations",
		"production_records", "jobs", "shipments", "shipment_lines",
		"sales_order_lines", "pick_methods",
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("failed to reset %s: %w", t, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
