// Package device provides the pieces shared by the emulated HID devices.
package device

import (
	"errors"
	"sync"
)

// Default identity of the emulated devices.
const (
	DefaultVendorID     = 0xC0DE
	DefaultManufacturer = "LosDos"
	DefaultSerial       = "22222222"
	DefaultPollMS       = 1
	DefaultQueueLimit   = 64
)

// CreateOptions overrides the defaults of an emulated device. Zero values keep the default.
type CreateOptions struct {
	IDVendor   uint16
	IDProduct  uint16
	PollMS     uint8
	QueueLimit int
}

// Poll returns the configured interrupt interval in milliseconds.
func (o *CreateOptions) Poll() uint8 {
	if o == nil || o.PollMS == 0 {
		return DefaultPollMS
	}
	return o.PollMS
}

// Limit returns the configured report queue capacity.
func (o *CreateOptions) Limit() int {
	if o == nil || o.QueueLimit <= 0 {
		return DefaultQueueLimit
	}
	return o.QueueLimit
}

// IDs returns the vendor and product id, falling back to the defaults.
func (o *CreateOptions) IDs(defProduct uint16) (vendor, product uint16) {
	vendor, product = DefaultVendorID, defProduct
	if o == nil {
		return
	}
	if o.IDVendor != 0 {
		vendor = o.IDVendor
	}
	if o.IDProduct != 0 {
		product = o.IDProduct
	}
	return
}

// ErrQueueFull is returned by ReportQueue.Push when the host is not polling
// fast enough to drain pending reports.
var ErrQueueFull = errors.New("report queue full")

// ReportQueue is a bounded FIFO of encoded HID input reports. Devices drain
// one report per interrupt IN poll, so a press and its release reach the host
// as two separate reports instead of collapsing into the latest state.
type ReportQueue struct {
	mu      sync.Mutex
	reports [][]byte
	limit   int
}

// NewReportQueue returns a queue holding at most limit reports.
func NewReportQueue(limit int) *ReportQueue {
	return &ReportQueue{limit: limit}
}

// Push appends a copy of report.
func (q *ReportQueue) Push(report []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.reports) >= q.limit {
		return ErrQueueFull
	}
	q.reports = append(q.reports, append([]byte(nil), report...))
	return nil
}

// Pop removes and returns the oldest report.
func (q *ReportQueue) Pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.reports) == 0 {
		return nil, false
	}
	r := q.reports[0]
	q.reports[0] = nil
	q.reports = q.reports[1:]
	return r, true
}

// Len returns the number of pending reports.
func (q *ReportQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.reports)
}
