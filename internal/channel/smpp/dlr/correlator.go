// Package dlr correlates asynchronous SMPP delivery receipts (DeliverSM
// PDUs carrying the standard "id:...stat:..." text format) back to the
// message that produced them, using gosmpp's own Receipt() parser.
package dlr

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/linxGnu/gosmpp/pdu"

	"smshub/internal/domain"
)

// StatusUpdater applies a terminal or intermediate status transition to a
// previously-submitted message. It is the correlator's only outbound
// dependency, kept behind an interface so the correlator has no direct
// storage dependency.
type StatusUpdater interface {
	ApplyDLR(externalID string, status domain.Status, providerStatus string) error
}

// statusMap translates standard DLR "stat:" values to domain status
// transitions. ACCEPTD leaves the message at Sent — it is
// not yet a terminal outcome.
var statusMap = map[string]domain.Status{
	"DELIVRD": domain.StatusDelivered,
	"EXPIRED": domain.StatusFailed,
	"DELETED": domain.StatusFailed,
	"UNDELIV": domain.StatusFailed,
	"REJECTD": domain.StatusFailed,
}

type correlation struct {
	messageID  string
	externalID string
	storedAt   time.Time
}

// Correlator holds the in-memory externalMessageId -> pending message map
// used to route inbound DeliverSM receipts, and sweeps it hourly to bound
// memory growth from receipts that never arrive.
type Correlator struct {
	updater StatusUpdater
	log     *slog.Logger

	mu      sync.Mutex
	pending map[string]correlation
	retain  time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// New builds a Correlator and starts its retention sweep goroutine.
func New(updater StatusUpdater, retain time.Duration, log *slog.Logger) *Correlator {
	if retain <= 0 {
		retain = 24 * time.Hour
	}
	c := &Correlator{
		updater: updater,
		log:     log,
		pending: make(map[string]correlation),
		retain:  retain,
		stop:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// StoreCorrelation records that externalID (assigned by the SMSC in a
// submit_sm_resp) belongs to messageID, so a later DeliverSM receipt can be
// routed back to it.
func (c *Correlator) StoreCorrelation(externalID, messageID string) {
	if externalID == "" {
		return
	}
	c.mu.Lock()
	c.pending[externalID] = correlation{
		messageID:  messageID,
		externalID: externalID,
		storedAt:   time.Now(),
	}
	c.mu.Unlock()
}

// ProcessReceipt parses a DeliverSM PDU carrying a delivery receipt and
// applies the resulting status transition, if any. Unrecognized or
// unparseable receipts are logged and dropped — SMSCs are not always
// standards-compliant.
func (c *Correlator) ProcessReceipt(p *pdu.DeliverSM) {
	if !p.IsReceipt() {
		return
	}
	receipt, err := p.Receipt()
	if err != nil {
		c.log.Warn("dlr: failed to parse delivery receipt", "error", err)
		return
	}

	c.applyReceipt(receipt.MessageID, receipt.Stat)
}

// applyReceipt is ProcessReceipt's pure-Go core, split out so the status-map
// and pending-correlation bookkeeping can be tested without constructing a
// real gosmpp PDU.
func (c *Correlator) applyReceipt(externalID, stat string) {
	stat = strings.ToUpper(strings.TrimSpace(stat))
	status, known := statusMap[stat]

	c.mu.Lock()
	corr, ok := c.pending[externalID]
	if ok && known {
		delete(c.pending, externalID)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Warn("dlr: receipt for unknown external message id", "externalId", externalID, "stat", stat)
		return
	}
	if !known {
		// ACCEPTD and any other non-terminal/unknown status: no transition,
		// message stays at Sent.
		return
	}

	if err := c.updater.ApplyDLR(externalID, status, stat); err != nil {
		c.log.Error("dlr: failed to apply status update", "messageId", corr.messageID, "externalId", externalID, "error", err)
	}
}

// Handler adapts ProcessReceipt to the pool's DeliverSMHandler signature.
func (c *Correlator) Handler(p *pdu.DeliverSM) {
	c.ProcessReceipt(p)
}

// Stop halts the retention sweep goroutine.
func (c *Correlator) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Correlator) sweepLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Correlator) sweep() {
	cutoff := time.Now().Add(-c.retain)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.pending {
		if v.storedAt.Before(cutoff) {
			delete(c.pending, k)
		}
	}
}
