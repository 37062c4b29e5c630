// Package memory provides an in-memory implementation of every store
// interface, for testing and development. WithTx is simulated with a
// snapshot of the whole state and a rollback on error; the store mutex is
// held for the duration of a transaction, so operations serialize.
package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/forge/inventory-engine/genealogy"
	"github.com/forge/inventory-engine/inventory"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type pickKey struct {
	Item     inventory.ItemID
	Location inventory.LocationID
}

type Store struct {
	mu sync.RWMutex

	entities   map[genealogy.EntityID]*genealogy.TrackedEntity
	activities []*genealogy.TrackedActivity
	ledger     []inventory.LedgerEntry

	materials  map[genealogy.MaterialID]*genealogy.JobMaterial
	operations map[genealogy.JobOperationID]*genealogy.JobOperation
	production map[genealogy.JobOperationID][]genealogy.ProductionRecord
	jobs       map[genealogy.JobID]*genealogy.Job

	shipments     map[genealogy.ShipmentID]*genealogy.Shipment
	shipmentLines map[genealogy.ShipmentID][]*genealogy.ShipmentLine
	orderLines    map[genealogy.SalesOrderLineID]*genealogy.SalesOrderLine

	pickMethods map[pickKey]inventory.ShelfID
}

func New() *Store {
	return &Store{
		entities:      make(map[genealogy.EntityID]*genealogy.TrackedEntity),
		materials:     make(map[genealogy.MaterialID]*genealogy.JobMaterial),
		operations:    make(map[genealogy.JobOperationID]*genealogy.JobOperation),
		production:    make(map[genealogy.JobOperationID][]genealogy.ProductionRecord),
		jobs:          make(map[genealogy.JobID]*genealogy.Job),
		shipments:     make(map[genealogy.ShipmentID]*genealogy.Shipment),
		shipmentLines: make(map[genealogy.ShipmentID][]*genealogy.ShipmentLine),
		orderLines:    make(map[genealogy.SalesOrderLineID]*genealogy.SalesOrderLine),
		pickMethods:   make(map[pickKey]inventory.ShelfID),
	}
}

// =============================================================================
// STORES BUNDLE + UNIT OF WORK
// =============================================================================

func (s *Store) Entities() genealogy.EntityStore       { return entityStore{views{s: s}} }
func (s *Store) Activities() genealogy.ActivityStore   { return activityStore{views{s: s}} }
func (s *Store) Ledger() inventory.LedgerStore         { return ledgerStore{views{s: s}} }
func (s *Store) Materials() genealogy.MaterialStore    { return materialStore{views{s: s}} }
func (s *Store) Shipments() genealogy.ShipmentStore    { return shipmentStore{views{s: s}} }
func (s *Store) PickMethods() genealogy.PickMethodStore { return pickMethodStore{views{s: s}} }

// WithTx executes fn against non-locking views while holding the store
// lock, restoring a snapshot if fn fails.
func (s *Store) WithTx(_ context.Context, fn func(genealogy.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(txStores{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// txStores hands out views that skip locking; the transaction already
// holds the store lock.
type txStores struct {
	s *Store
}

func (t txStores) Entities() genealogy.EntityStore       { return entityStore{views{s: t.s, inTx: true}} }
func (t txStores) Activities() genealogy.ActivityStore   { return activityStore{views{s: t.s, inTx: true}} }
func (t txStores) Ledger() inventory.LedgerStore         { return ledgerStore{views{s: t.s, inTx: true}} }
func (t txStores) Materials() genealogy.MaterialStore    { return materialStore{views{s: t.s, inTx: true}} }
func (t txStores) Shipments() genealogy.ShipmentStore    { return shipmentStore{views{s: t.s, inTx: true}} }
func (t txStores) PickMethods() genealogy.PickMethodStore {
	return pickMethodStore{views{s: t.s, inTx: true}}
}

type views struct {
	s    *Store
	inTx bool
}

func (v views) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (v views) rlock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.RLock()
	return v.s.mu.RUnlock
}

// =============================================================================
// SNAPSHOT / RESTORE
// =============================================================================

type snapshot struct {
	entities   map[genealogy.EntityID]*genealogy.TrackedEntity
	activities []*genealogy.TrackedActivity
	ledger     []inventory.LedgerEntry
	materials  map[genealogy.MaterialID]*genealogy.JobMaterial
	operations map[genealogy.JobOperationID]*genealogy.JobOperation
	production map[genealogy.JobOperationID][]genealogy.ProductionRecord
	jobs       map[genealogy.JobID]*genealogy.Job
	shipments  map[genealogy.ShipmentID]*genealogy.Shipment
	lines      map[genealogy.ShipmentID][]*genealogy.ShipmentLine
	orderLines map[genealogy.SalesOrderLineID]*genealogy.SalesOrderLine
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		entities:   make(map[genealogy.EntityID]*genealogy.TrackedEntity, len(s.entities)),
		activities: append([]*genealogy.TrackedActivity{}, s.activities...),
		ledger:     append([]inventory.LedgerEntry{}, s.ledger...),
		materials:  make(map[genealogy.MaterialID]*genealogy.JobMaterial, len(s.materials)),
		operations: make(map[genealogy.JobOperationID]*genealogy.JobOperation, len(s.operations)),
		production: make(map[genealogy.JobOperationID][]genealogy.ProductionRecord, len(s.production)),
		jobs:       make(map[genealogy.JobID]*genealogy.Job, len(s.jobs)),
		shipments:  make(map[genealogy.ShipmentID]*genealogy.Shipment, len(s.shipments)),
		lines:      make(map[genealogy.ShipmentID][]*genealogy.ShipmentLine, len(s.shipmentLines)),
		orderLines: make(map[genealogy.SalesOrderLineID]*genealogy.SalesOrderLine, len(s.orderLines)),
	}
	for id, e := range s.entities {
		snap.entities[id] = cloneEntity(e)
	}
	for id, m := range s.materials {
		c := *m
		snap.materials[id] = &c
	}
	for id, op := range s.operations {
		c := *op
		snap.operations[id] = &c
	}
	for id, recs := range s.production {
		snap.production[id] = append([]genealogy.ProductionRecord{}, recs...)
	}
	for id, j := range s.jobs {
		c := *j
		snap.jobs[id] = &c
	}
	for id, sh := range s.shipments {
		c := *sh
		snap.shipments[id] = &c
	}
	for id, lines := range s.shipmentLines {
		copies := make([]*genealogy.ShipmentLine, len(lines))
		for i, l := range lines {
			c := *l
			copies[i] = &c
		}
		snap.lines[id] = copies
	}
	for id, ol := range s.orderLines {
		c := *ol
		snap.orderLines[id] = &c
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.entities = snap.entities
	s.activities = snap.activities
	s.ledger = snap.ledger
	s.materials = snap.materials
	s.operations = snap.operations
	s.production = snap.production
	s.jobs = snap.jobs
	s.shipments = snap.shipments
	s.shipmentLines = snap.lines
	s.orderLines = snap.orderLines
}

func cloneEntity(e *genealogy.TrackedEntity) *genealogy.TrackedEntity {
	c := *e
	c.Attributes = e.Attributes.Clone()
	return &c
}

// =============================================================================
// ENTITY STORE
// =============================================================================

type entityStore struct{ views }

func (es entityStore) Create(_ context.Context, e *genealogy.TrackedEntity) error {
	defer es.lock()()
	es.s.entities[e.ID] = cloneEntity(e)
	return nil
}

func (es entityStore) Get(_ context.Context, id genealogy.EntityID) (*genealogy.TrackedEntity, error) {
	defer es.rlock()()
	e, ok := es.s.entities[id]
	if !ok {
		return nil, &genealogy.NotFoundError{Kind: "entity", ID: string(id)}
	}
	return cloneEntity(e), nil
}

func (es entityStore) SetStatus(_ context.Context, id genealogy.EntityID, status genealogy.EntityStatus) error {
	defer es.lock()()
	e, ok := es.s.entities[id]
	if !ok {
		return &genealogy.NotFoundError{Kind: "entity", ID: string(id)}
	}
	e.Status = status
	return nil
}

func (es entityStore) SetQuantity(_ context.Context, id genealogy.EntityID, quantity decimal.Decimal) error {
	defer es.lock()()
	e, ok := es.s.entities[id]
	if !ok {
		return &genealogy.NotFoundError{Kind: "entity", ID: string(id)}
	}
	e.Quantity = quantity
	return nil
}

func (es entityStore) MergeAttributes(_ context.Context, id genealogy.EntityID, patch genealogy.LineageAttributes) error {
	defer es.lock()()
	e, ok := es.s.entities[id]
	if !ok {
		return &genealogy.NotFoundError{Kind: "entity", ID: string(id)}
	}
	merged, err := e.Attributes.Merge(patch)
	if err != nil {
		return err
	}
	e.Attributes = merged
	return nil
}

func (es entityStore) FindByParentMakeMethod(_ context.Context, makeMethodID string) ([]*genealogy.TrackedEntity, error) {
	defer es.rlock()()
	var out []*genealogy.TrackedEntity
	for _, e := range es.s.entities {
		if e.Attributes.ParentMakeMethodID == makeMethodID {
			out = append(out, cloneEntity(e))
		}
	}
	return out, nil
}

// =============================================================================
// ACTIVITY STORE
// =============================================================================

type activityStore struct{ views }

func (as activityStore) Append(_ context.Context, a *genealogy.TrackedActivity) error {
	defer as.lock()()
	as.s.activities = append(as.s.activities, a)
	return nil
}

func (as activityStore) ForDocument(_ context.Context, documentID string) ([]*genealogy.TrackedActivity, error) {
	defer as.rlock()()
	var out []*genealogy.TrackedActivity
	for _, a := range as.s.activities {
		if a.Source.ID == documentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (as activityStore) ForEntity(_ context.Context, id genealogy.EntityID) ([]*genealogy.TrackedActivity, error) {
	defer as.rlock()()
	var out []*genealogy.TrackedActivity
	for _, a := range as.s.activities {
		if activityTouches(a, id) {
			out = append(out, a)
		}
	}
	return out, nil
}

func activityTouches(a *genealogy.TrackedActivity, id genealogy.EntityID) bool {
	for _, in := range a.Inputs {
		if in.EntityID == id {
			return true
		}
	}
	for _, out := range a.Outputs {
		if out.EntityID == id {
			return true
		}
	}
	return false
}

// =============================================================================
// LEDGER STORE
// =============================================================================

type ledgerStore struct{ views }

func (ls ledgerStore) Append(_ context.Context, e inventory.LedgerEntry) error {
	defer ls.lock()()
	ls.s.ledger = append(ls.s.ledger, e)
	return nil
}

func (ls ledgerStore) AppendBatch(_ context.Context, entries []inventory.LedgerEntry) error {
	defer ls.lock()()
	ls.s.ledger = append(ls.s.ledger, entries...)
	return nil
}

func (ls ledgerStore) Entries(_ context.Context, f inventory.EntryFilter) ([]inventory.LedgerEntry, error) {
	defer ls.rlock()()
	var out []inventory.LedgerEntry
	for _, e := range ls.s.ledger {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (ls ledgerStore) OnHand(_ context.Context, item inventory.ItemID, location inventory.LocationID, shelf inventory.ShelfID) (decimal.Decimal, error) {
	defer ls.rlock()()
	total := decimal.Zero
	f := inventory.EntryFilter{ItemID: item, LocationID: location, ShelfID: shelf}
	for _, e := range ls.s.ledger {
		if f.Matches(e) {
			total = total.Add(e.Quantity)
		}
	}
	return total, nil
}

// =============================================================================
// MATERIAL STORE
// =============================================================================

type materialStore struct{ views }

func (ms materialStore) GetMaterial(_ context.Context, id genealogy.MaterialID) (*genealogy.JobMaterial, error) {
	defer ms.rlock()()
	m, ok := ms.s.materials[id]
	if !ok {
		return nil, &genealogy.NotFoundError{Kind: "material", ID: string(id)}
	}
	c := *m
	return &c, nil
}

func (ms materialStore) AddIssuedQuantity(_ context.Context, id genealogy.MaterialID, delta decimal.Decimal) error {
	defer ms.lock()()
	m, ok := ms.s.materials[id]
	if !ok {
		return &genealogy.NotFoundError{Kind: "material", ID: string(id)}
	}
	m.QuantityIssued = m.QuantityIssued.Add(delta)
	return nil
}

func (ms materialStore) GetOperation(_ context.Context, id genealogy.JobOperationID) (*genealogy.JobOperation, error) {
	defer ms.rlock()()
	op, ok := ms.s.operations[id]
	if !ok {
		return nil, &genealogy.NotFoundError{Kind: "operation", ID: string(id)}
	}
	c := *op
	return &c, nil
}

func (ms materialStore) RecordProduction(_ context.Context, rec genealogy.ProductionRecord) (*genealogy.ProductionRecord, error) {
	defer ms.lock()()
	if _, ok := ms.s.operations[rec.JobOperationID]; !ok {
		return nil, &genealogy.NotFoundError{Kind: "operation", ID: string(rec.JobOperationID)}
	}
	rec.Sequence = len(ms.s.production[rec.JobOperationID]) + 1
	ms.s.production[rec.JobOperationID] = append(ms.s.production[rec.JobOperationID], rec)
	return &rec, nil
}

func (ms materialStore) ProductionCount(_ context.Context, id genealogy.JobOperationID) (int, error) {
	defer ms.rlock()()
	return len(ms.s.production[id]), nil
}

func (ms materialStore) AddJobQuantities(_ context.Context, id genealogy.JobID, shippedDelta, completeDelta decimal.Decimal) error {
	defer ms.lock()()
	j, ok := ms.s.jobs[id]
	if !ok {
		return &genealogy.NotFoundError{Kind: "job", ID: string(id)}
	}
	j.QuantityShipped = j.QuantityShipped.Add(shippedDelta)
	j.QuantityComplete = j.QuantityComplete.Add(completeDelta)
	return nil
}

func (ms materialStore) GetJob(_ context.Context, id genealogy.JobID) (*genealogy.Job, error) {
	defer ms.rlock()()
	j, ok := ms.s.jobs[id]
	if !ok {
		return nil, &genealogy.NotFoundError{Kind: "job", ID: string(id)}
	}
	c := *j
	return &c, nil
}

// =============================================================================
// SHIPMENT STORE
// =============================================================================

type shipmentStore struct{ views }

func (ss shipmentStore) GetShipment(_ context.Context, id genealogy.ShipmentID) (*genealogy.Shipment, error) {
	defer ss.rlock()()
	sh, ok := ss.s.shipments[id]
	if !ok {
		return nil, &genealogy.NotFoundError{Kind: "shipment", ID: string(id)}
	}
	c := *sh
	return &c, nil
}

func (ss shipmentStore) Lines(_ context.Context, id genealogy.ShipmentID) ([]*genealogy.ShipmentLine, error) {
	defer ss.rlock()()
	lines := ss.s.shipmentLines[id]
	out := make([]*genealogy.ShipmentLine, len(lines))
	for i, l := range lines {
		c := *l
		out[i] = &c
	}
	return out, nil
}

func (ss shipmentStore) SetShipmentStatus(_ context.Context, id genealogy.ShipmentID, status genealogy.ShipmentStatus) error {
	defer ss.lock()()
	sh, ok := ss.s.shipments[id]
	if !ok {
		return &genealogy.NotFoundError{Kind: "shipment", ID: string(id)}
	}
	sh.Status = status
	return nil
}

func (ss shipmentStore) GetOrderLine(_ context.Context, id genealogy.SalesOrderLineID) (*genealogy.SalesOrderLine, error) {
	defer ss.rlock()()
	ol, ok := ss.s.orderLines[id]
	if !ok {
		return nil, &genealogy.NotFoundError{Kind: "order line", ID: string(id)}
	}
	c := *ol
	return &c, nil
}

func (ss shipmentStore) AccumulateOrderLineShipped(_ context.Context, id genealogy.SalesOrderLineID, delta decimal.Decimal) (*genealogy.SalesOrderLine, error) {
	defer ss.lock()()
	ol, ok := ss.s.orderLines[id]
	if !ok {
		return nil, &genealogy.NotFoundError{Kind: "order line", ID: string(id)}
	}
	ol.QuantityShipped = ol.QuantityShipped.Add(delta)
	c := *ol
	return &c, nil
}

func (ss shipmentStore) SetOrderLineStatus(_ context.Context, id genealogy.SalesOrderLineID, status genealogy.OrderLineStatus) error {
	defer ss.lock()()
	ol, ok := ss.s.orderLines[id]
	if !ok {
		return &genealogy.NotFoundError{Kind: "order line", ID: string(id)}
	}
	ol.Status = status
	return nil
}

// =============================================================================
// PICK METHOD STORE
// =============================================================================

type pickMethodStore struct{ views }

func (ps pickMethodStore) DefaultShelf(_ context.Context, item inventory.ItemID, location inventory.LocationID) (inventory.ShelfID, bool, error) {
	defer ps.rlock()()
	shelf, ok := ps.s.pickMethods[pickKey{Item: item, Location: location}]
	return shelf, ok, nil
}

// =============================================================================
// SEEDING HELPERS - Collaborator documents come from outside the core
// =============================================================================

func (s *Store) PutMaterial(m genealogy.JobMaterial) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials[m.ID] = &m
}

func (s *Store) PutOperation(op genealogy.JobOperation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations[op.ID] = &op
}

func (s *Store) PutJob(j genealogy.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = &j
}

func (s *Store) PutShipment(sh genealogy.Shipment, lines ...genealogy.ShipmentLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shipments[sh.ID] = &sh
	copies := make([]*genealogy.ShipmentLine, len(lines))
	for i := range lines {
		l := lines[i]
		copies[i] = &l
	}
	s.shipmentLines[sh.ID] = copies
}

func (s *Store) PutOrderLine(ol genealogy.SalesOrderLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderLines[ol.ID] = &ol
}

func (s *Store) PutPickMethod(item inventory.ItemID, location inventory.LocationID, shelf inventory.ShelfID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pickMethods[pickKey{Item: item, Location: location}] = shelf
}
