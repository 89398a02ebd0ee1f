package api

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/invoice"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/reference"
)

// Invoices lists issued invoices.
func (c *Client) Invoices(ctx context.Context) (invoice.List, error) {
	resp, err := c.Do(ctx, Request{
		Method:   http.MethodGet,
		Path:     "/api/invoices",
		Endpoint: "invoices",
		Fallback: MsgInvoicesFailed,
	})
	if err != nil {
		return invoice.List{}, err
	}
	var l invoice.List
	if err := decode(resp, "invoices", &l); err != nil {
		return invoice.List{}, err
	}
	return l, nil
}

var pdfMagic = []byte("%PDF")

// InvoicePDF downloads the rendered document of an invoice. The token is sent both as
// bearer and as the "token" cookie.
func (c *Client) InvoicePDF(ctx context.Context, id int64) ([]byte, error) {
	resp, err := c.Do(ctx, Request{
		Method:   http.MethodGet,
		Path:     fmt.Sprintf("/api/financial_operation/%d/pdf", id),
		Endpoint: "invoice_pdf",
		Fallback: MsgPDFFailed,
		Cookie:   true,
	})
	if err != nil {
		return nil, err
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/pdf" && !bytes.HasPrefix(resp.Body, pdfMagic) {
		return nil, &Error{Status: resp.StatusCode, Endpoint: "invoice_pdf", Message: MsgPDFWrongFormat}
	}
	return resp.Body, nil
}

// Wallets lists the wallets available for settling invoices.
func (c *Client) Wallets(ctx context.Context) ([]reference.Wallet, error) {
	resp, err := c.Do(ctx, Request{
		Method:   http.MethodGet,
		Path:     "/wallets_react",
		Endpoint: "wallets",
		Fallback: MsgWalletsFailed,
	})
	if err != nil {
		return nil, err
	}
	var ws []reference.Wallet
	if err := decode(resp, "wallets", &ws); err != nil {
		return nil, err
	}
	return ws, nil
}

type payRequest struct {
	IsPaid   bool  `json:"is_paid"`
	WalletID int64 `json:"wallet_id"`
}

// PayInvoice marks an invoice paid from walletID.
func (c *Client) PayInvoice(ctx context.Context, invoiceID, walletID int64) error {
	_, err := c.Do(ctx, Request{
		Method:   http.MethodPatch,
		Path:     fmt.Sprintf("/api/invoices/%d/pay", invoiceID),
		Body:     payRequest{IsPaid: true, WalletID: walletID},
		Endpoint: "pay_invoice",
		Fallback: MsgPayInvoiceFailed,
	})
	return err
}
