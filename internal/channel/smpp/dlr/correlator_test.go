package dlr

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smshub/internal/domain"
)

type fakeUpdater struct {
	calls []applyCall
	err   error
}

type applyCall struct {
	externalID     string
	status         domain.Status
	providerStatus string
}

func (f *fakeUpdater) ApplyDLR(externalID string, status domain.Status, providerStatus string) error {
	f.calls = append(f.calls, applyCall{externalID, status, providerStatus})
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestApplyReceiptDelivered(t *testing.T) {
	updater := &fakeUpdater{}
	c := New(updater, time.Hour, testLogger())
	defer c.Stop()

	c.StoreCorrelation("smsc-1", "msg-1")
	c.applyReceipt("smsc-1", "DELIVRD")

	require.Len(t, updater.calls, 1)
	assert.Equal(t, "smsc-1", updater.calls[0].externalID)
	assert.Equal(t, domain.StatusDelivered, updater.calls[0].status)
}

func TestApplyReceiptFailureStates(t *testing.T) {
	for _, stat := range []string{"EXPIRED", "DELETED", "UNDELIV", "REJECTD"} {
		updater := &fakeUpdater{}
		c := New(updater, time.Hour, testLogger())

		c.StoreCorrelation("smsc-1", "msg-1")
		c.applyReceipt("smsc-1", stat)

		require.Len(t, updater.calls, 1)
		assert.Equal(t, domain.StatusFailed, updater.calls[0].status)
		c.Stop()
	}
}

func TestApplyReceiptAcceptdLeavesMessagePending(t *testing.T) {
	updater := &fakeUpdater{}
	c := New(updater, time.Hour, testLogger())
	defer c.Stop()

	c.StoreCorrelation("smsc-1", "msg-1")
	c.applyReceipt("smsc-1", "ACCEPTD")

	assert.Empty(t, updater.calls)
	// ACCEPTD is not a terminal DLR: the correlation must survive so a
	// later terminal receipt (DELIVRD/UNDELIV/...) can still be matched.
	_, stillPending := c.pending["smsc-1"]
	assert.True(t, stillPending)
}

func TestApplyReceiptTerminalAfterAcceptdStillMatches(t *testing.T) {
	updater := &fakeUpdater{}
	c := New(updater, time.Hour, testLogger())
	defer c.Stop()

	c.StoreCorrelation("smsc-1", "msg-1")
	c.applyReceipt("smsc-1", "ACCEPTD")
	c.applyReceipt("smsc-1", "DELIVRD")

	require.Len(t, updater.calls, 1)
	assert.Equal(t, domain.StatusDelivered, updater.calls[0].status)

	_, stillPending := c.pending["smsc-1"]
	assert.False(t, stillPending)
}

func TestApplyReceiptUnknownExternalIDIsDropped(t *testing.T) {
	updater := &fakeUpdater{}
	c := New(updater, time.Hour, testLogger())
	defer c.Stop()

	c.applyReceipt("never-stored", "DELIVRD")
	assert.Empty(t, updater.calls)
}

func TestStoreCorrelationIgnoresEmptyExternalID(t *testing.T) {
	c := New(&fakeUpdater{}, time.Hour, testLogger())
	defer c.Stop()

	c.StoreCorrelation("", "msg-1")
	assert.Empty(t, c.pending)
}

func TestSweepRemovesExpiredCorrelations(t *testing.T) {
	updater := &fakeUpdater{}
	c := New(updater, time.Millisecond, testLogger())
	defer c.Stop()

	c.StoreCorrelation("smsc-1", "msg-1")
	c.mu.Lock()
	entry := c.pending["smsc-1"]
	entry.storedAt = time.Now().Add(-time.Hour)
	c.pending["smsc-1"] = entry
	c.mu.Unlock()

	c.sweep()

	c.mu.Lock()
	_, ok := c.pending["smsc-1"]
	c.mu.Unlock()
	assert.False(t, ok)
}
