package api

import (
	"context"
	"net/http"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/entry"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/reference"
)

// FormData fetches the reference bundle.
func (c *Client) FormData(ctx context.Context) (reference.Bundle, error) {
	resp, err := c.Do(ctx, Request{
		Method:   http.MethodGet,
		Path:     "/get_form_data",
		Endpoint: "form_data",
		Fallback: MsgFormDataFailed,
	})
	if err != nil {
		return reference.Bundle{}, err
	}
	var b reference.Bundle
	if err := decode(resp, "form_data", &b); err != nil {
		return reference.Bundle{}, err
	}
	return b, nil
}

// Submit posts a resolved transaction.
func (c *Client) Submit(ctx context.Context, p entry.Payload) error {
	_, err := c.Do(ctx, Request{
		Method:   http.MethodPost,
		Path:     "/submit",
		Body:     p,
		Endpoint: "submit",
		Fallback: MsgSubmitFailed,
	})
	return err
}
