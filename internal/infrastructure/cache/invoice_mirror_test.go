package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/invoice"
)

type invoiceBackend struct {
	mu    sync.Mutex
	items []invoice.Invoice
	calls int
	err   error
	hook  func()
}

func (b *invoiceBackend) Invoices(context.Context) (invoice.List, error) {
	b.mu.Lock()
	b.calls++
	items := append([]invoice.Invoice(nil), b.items...)
	err, hook := b.err, b.hook
	b.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return invoice.List{}, err
	}
	return invoice.List{Items: items, Total: len(items)}, nil
}

func (b *invoiceBackend) markPaid(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.items {
		if b.items[i].ID == id {
			b.items[i].IsPaid = true
		}
	}
}

func (b *invoiceBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func TestInvoiceMirror_ServesRefreshedList(t *testing.T) {
	ctx := context.Background()
	backend := &invoiceBackend{items: []invoice.Invoice{{ID: 15}, {ID: 16}}}
	m := NewInvoiceMirror(backend, zap.NewNop())

	_, ok := m.Peek()
	assert.False(t, ok)
	assert.True(t, m.FetchedAt().IsZero())

	l, err := m.Invoices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Total)
	_, err = m.Invoices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.count(), "second read is served from the mirror")
	assert.False(t, m.FetchedAt().IsZero())

	backend.markPaid(15)
	l, err = m.Invoices(ctx)
	require.NoError(t, err)
	assert.False(t, l.Items[0].IsPaid, "mirror unchanged until refreshed")

	_, err = m.Refresh(ctx)
	require.NoError(t, err)
	l, err = m.Invoices(ctx)
	require.NoError(t, err)
	assert.True(t, l.Items[0].IsPaid)
	assert.Equal(t, 2, backend.count())
}

func TestInvoiceMirror_ReturnsCopies(t *testing.T) {
	m := NewInvoiceMirror(&invoiceBackend{items: []invoice.Invoice{{ID: 1}}}, nil)

	l, err := m.Invoices(context.Background())
	require.NoError(t, err)
	l.Items[0].IsPaid = true

	again, ok := m.Peek()
	require.True(t, ok)
	assert.False(t, again.Items[0].IsPaid)
}

func TestInvoiceMirror_RefreshErrorKeepsList(t *testing.T) {
	ctx := context.Background()
	backend := &invoiceBackend{items: []invoice.Invoice{{ID: 1}}}
	m := NewInvoiceMirror(backend, nil)
	_, err := m.Invoices(ctx)
	require.NoError(t, err)

	backend.err = errors.New("backend down")
	_, err = m.Refresh(ctx)
	require.Error(t, err)

	l, ok := m.Peek()
	require.True(t, ok)
	assert.Len(t, l.Items, 1)
}

func TestInvoiceMirror_InvalidateDuringRefresh(t *testing.T) {
	ctx := context.Background()
	backend := &invoiceBackend{items: []invoice.Invoice{{ID: 1}}}
	m := NewInvoiceMirror(backend, nil)
	backend.hook = m.Invalidate

	l, err := m.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, l.Items, 1)

	_, ok := m.Peek()
	assert.False(t, ok, "list fetched across an invalidation is not kept")
}
