/*
scheduler.go - Automated conservation audit scheduler

PURPOSE:
  Periodically reconciles the item ledger against tracked-entity state and
  logs any drift. Split and reversal rows must net to zero, so for every
  tracked entity the summed ledger deltas have a known expected value:
    available  -> the entity's current quantity
    consumed   -> zero (opening rows fully offset by issue/shipment rows)
    reserved   -> skipped (nothing has been posted yet)

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Walks every ledger row carrying a tracked entity reference
  - Keeps the last run's summary in memory for the admin endpoint

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether the auditor is active (default: true)

USAGE:
  auditor := NewConservationAuditor(store)
  auditor.Start()
  // ... later
  auditor.Stop()

SEE ALSO:
  - inventory/ledger.go: NetForEntity (the per-entity reconciliation sum)
  - genealogy/split.go: The rows that make conservation hold
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/forge/inventory-engine/genealogy"
	"github.com/forge/inventory-engine/inventory"
	"github.com/forge/inventory-engine/store/sqlite"
)

// AuditResult summarizes one audit pass.
type AuditResult struct {
	RanAt           time.Time
	EntitiesChecked int
	DriftsFound     int
	Drifts          []EntityDrift
}

// EntityDrift is one mismatch between ledger net and entity state.
type EntityDrift struct {
	EntityID genealogy.EntityID
	Expected decimal.Decimal
	Net      decimal.Decimal
}

// ConservationAuditor reconciles the ledger against entity state on a timer.
type ConservationAuditor struct {
	Store         *sqlite.Store
	CheckInterval time.Duration
	Enabled       bool

	tick    *time.Ticker
	stop    chan bool
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun *AuditResult
}

// NewConservationAuditor creates a new auditor.
func NewConservationAuditor(store *sqlite.Store) *ConservationAuditor {
	return &ConservationAuditor{
		Store:         store,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the audit loop.
func (ca *ConservationAuditor) Start() {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	if !ca.Enabled {
		log.Println("[Auditor] Disabled, not starting")
		return
	}

	ca.tick = time.NewTicker(ca.CheckInterval)
	ca.wg.Add(1)

	go ca.run()

	log.Printf("[Auditor] Started with check interval: %v", ca.CheckInterval)
}

// Stop stops the audit loop.
func (ca *ConservationAuditor) Stop() {
	ca.mu.Lock()
	tick := ca.tick
	ca.mu.Unlock()

	if tick == nil {
		return
	}
	tick.Stop()
	close(ca.stop)
	// Wait outside the lock: the loop goroutine takes it to record results.
	ca.wg.Wait()
	log.Println("[Auditor] Stopped")
}

func (ca *ConservationAuditor) run() {
	defer ca.wg.Done()

	// Run immediately on start
	ca.checkAndReport()

	for {
		select {
		case <-ca.tick.C:
			ca.checkAndReport()
		case <-ca.stop:
			return
		}
	}
}

func (ca *ConservationAuditor) checkAndReport() {
	ctx := context.Background()
	result, err := ca.Audit(ctx)
	if err != nil {
		log.Printf("[Auditor] Audit failed: %v", err)
		return
	}

	ca.mu.Lock()
	ca.lastRun = result
	ca.mu.Unlock()

	if result.DriftsFound > 0 {
		for _, d := range result.Drifts {
			log.Printf("[Auditor] DRIFT entity=%s expected=%s net=%s",
				d.EntityID, d.Expected, d.Net)
		}
	}
	log.Printf("[Auditor] Completed: %d entities checked, %d drifts",
		result.EntitiesChecked, result.DriftsFound)
}

// Audit runs a single reconciliation pass.
func (ca *ConservationAuditor) Audit(ctx context.Context) (*AuditResult, error) {
	ledger := inventory.NewLedger(ca.Store.Ledger())

	entries, err := ledger.Entries(ctx, inventory.EntryFilter{})
	if err != nil {
		return nil, err
	}

	// Net per referenced entity
	nets := make(map[string]decimal.Decimal)
	for _, e := range entries {
		if e.TrackedEntityID == "" {
			continue
		}
		nets[e.TrackedEntityID] = nets[e.TrackedEntityID].Add(e.Quantity)
	}

	result := &AuditResult{RanAt: time.Now().UTC()}
	for id, net := range nets {
		entity, err := ca.Store.Entities().Get(ctx, genealogy.EntityID(id))
		if err != nil {
			if genealogy.IsNotFound(err) {
				// Ledger references an entity that no longer resolves
				result.Drifts = append(result.Drifts, EntityDrift{
					EntityID: genealogy.EntityID(id),
					Expected: decimal.Zero,
					Net:      net,
				})
				result.DriftsFound++
				continue
			}
			return nil, err
		}

		var expected decimal.Decimal
		switch entity.Status {
		case genealogy.StatusAvailable:
			expected = entity.Quantity
		case genealogy.StatusConsumed:
			expected = decimal.Zero
		default:
			continue
		}

		result.EntitiesChecked++
		if !net.Equal(expected) {
			result.Drifts = append(result.Drifts, EntityDrift{
				EntityID: entity.ID,
				Expected: expected,
				Net:      net,
			})
			result.DriftsFound++
		}
	}
	return result, nil
}

// RunNow triggers an immediate check (for testing/admin).
func (ca *ConservationAuditor) RunNow() {
	ca.checkAndReport()
}

// LastRun returns the most recent audit result, if any.
func (ca *ConservationAuditor) LastRun() *AuditResult {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	return ca.lastRun
}
