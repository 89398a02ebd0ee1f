package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/invoice"
)

// InvoiceFetcher lists issued invoices from the backend.
type InvoiceFetcher interface {
	Invoices(ctx context.Context) (invoice.List, error)
}

// InvoiceMirror holds the last invoice list fetched for the session. Readers are
// served from it; Refresh replaces it after the backend state changed.
//
// Thread Safety: Safe for concurrent use.
type InvoiceMirror struct {
	fetcher InvoiceFetcher
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.RWMutex
	list      invoice.List
	loaded    bool
	fetchedAt time.Time
	gen       uint64
}

// NewInvoiceMirror creates an empty mirror.
func NewInvoiceMirror(fetcher InvoiceFetcher, logger *zap.Logger) *InvoiceMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceMirror{fetcher: fetcher, logger: logger, now: time.Now}
}

// Invoices returns the mirrored list, fetching it on first use.
func (m *InvoiceMirror) Invoices(ctx context.Context) (invoice.List, error) {
	if l, ok := m.Peek(); ok {
		return l, nil
	}
	return m.Refresh(ctx)
}

// Refresh fetches the list and replaces the mirror with it. A list fetched across an
// Invalidate is returned to the caller but not kept.
func (m *InvoiceMirror) Refresh(ctx context.Context) (invoice.List, error) {
	m.mu.RLock()
	gen := m.gen
	m.mu.RUnlock()

	l, err := m.fetcher.Invoices(ctx)
	if err != nil {
		return invoice.List{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return clone(l), nil
	}
	m.list = clone(l)
	m.loaded = true
	m.fetchedAt = m.now()
	m.logger.Debug("invoice list refreshed", zap.Int("count", len(l.Items)))
	return clone(m.list), nil
}

// Peek returns the mirrored list without fetching.
func (m *InvoiceMirror) Peek() (invoice.List, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.loaded {
		return invoice.List{}, false
	}
	return clone(m.list), true
}

// FetchedAt reports when the mirror was last filled; zero when empty.
func (m *InvoiceMirror) FetchedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetchedAt
}

// Invalidate empties the mirror.
func (m *InvoiceMirror) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list = invoice.List{}
	m.loaded = false
	m.fetchedAt = time.Time{}
	m.gen++
}

func clone(l invoice.List) invoice.List {
	l.Items = append([]invoice.Invoice(nil), l.Items...)
	return l
}
