package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/entry"
	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/reference"
)

type observation struct {
	endpoint string
	status   int
}

type recordingObserver struct {
	seen []observation
}

func (r *recordingObserver) ObserveBackend(endpoint string, status int, _ time.Duration) {
	r.seen = append(r.seen, observation{endpoint, status})
}

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithRetry(RetryConfig{MaxRetries: 2, RetryDelay: time.Millisecond, Multiplier: 1})}, opts...)
	c, err := NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, TokenFunc(func() string { return "tok-1" }), opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "://bad"}, nil)
	assert.Error(t, err)
}

func TestDo_HeadersAndTracing(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	obs := &recordingObserver{}

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "entry-client/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"items":[],"total":0}`))
	}), WithTracer(tp), WithObserver(obs))

	_, err := c.Invoices(context.Background())
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "backend invoices", spans[0].Name())
	assert.Equal(t, []observation{{"invoices", 200}}, obs.seen)
}

func TestDo_RetriesIdempotentOnly(t *testing.T) {
	t.Run("GET retried on 5xx", func(t *testing.T) {
		var calls int32
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(`[{"id":7,"name":"Main","user_id":1}]`))
		}))

		ws, err := c.Wallets(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []reference.Wallet{{ID: 7, Name: "Main", UserID: 1}}, ws)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("POST never retried", func(t *testing.T) {
		var calls int32
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))

		err := c.Submit(context.Background(), entry.Payload{})
		require.Error(t, err)
		assert.Equal(t, MsgSubmitFailed, err.Error())
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestDo_ServerMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message field", `{"message":"Сумма превышает лимит"}`, "Сумма превышает лимит"},
		{"detail string", `{"detail":"Недостаточно прав"}`, "Недостаточно прав"},
		{"detail list", `{"detail":[{"msg":"field required"},{"msg":"bad date"}]}`, "field required, bad date"},
		{"no message", `{}`, MsgSubmitFailed},
		{"not json", `oops`, MsgSubmitFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tt.body))
			}))

			err := c.Submit(context.Background(), entry.Payload{})
			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, http.StatusBadRequest, apiErr.Status)
			assert.Equal(t, tt.want, apiErr.Message)
			assert.Equal(t, tt.want, Message(err, "fallback"))
		})
	}
}

func TestDo_UnauthorizedHook(t *testing.T) {
	var evicted int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	c.OnUnauthorized(func() { atomic.AddInt32(&evicted, 1) })

	_, err := c.Invoices(context.Background())
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&evicted), "401 is not retried")

	_, err = c.Login(context.Background(), "alice", "bad")
	assert.Equal(t, MsgLoginInvalid, err.Error())
	assert.Equal(t, int32(1), atomic.LoadInt32(&evicted), "login does not evict")
}

func TestDo_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(Config{BaseURL: url}, nil, WithRetry(RetryConfig{}))
	require.NoError(t, err)

	_, err = c.FormData(context.Background())
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Zero(t, apiErr.Status)
	assert.Equal(t, MsgNetwork, apiErr.Message)
	assert.NotNil(t, apiErr.Unwrap())
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/login_react", r.URL.Path)
		assert.Equal(t, "alice", r.URL.Query().Get("username"))
		assert.Equal(t, "p&ss", r.URL.Query().Get("password"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"access_token":"abc"}`))
	}))

	tok, err := c.Login(context.Background(), "alice", "p&ss")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

func TestVerifyAndRefresh(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/verify":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "tok-1", body["access_token"])
			_, _ = w.Write([]byte(`{"valid":true,"user":{"username":"alice","user_id":3,"role":"admin"}}`))
		case "/refresh":
			_, _ = w.Write([]byte(`{"access_token":"tok-2"}`))
		}
	}))

	v, err := c.Verify(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, "alice", v.User.Username)

	tok, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
}

func TestFormDataAndSubmit(t *testing.T) {
	var submitted map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/get_form_data":
			require.NoError(t, json.NewEncoder(w).Encode(reference.SampleBundle()))
		case "/submit":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
			w.WriteHeader(http.StatusCreated)
		}
	}))

	b, err := c.FormData(context.Background())
	require.NoError(t, err)
	assert.Len(t, b.Companies, 2)
	assert.Equal(t, "Sales", b.Companies[0].Categories[0].Name)

	require.NoError(t, c.Submit(context.Background(), entry.Payload{
		Username: "alice", WalletID: 7, CurrencyID: 2, Amount: entry.ParseAmount("250"),
	}))
	assert.Equal(t, float64(250), submitted["amount"])
	assert.Equal(t, float64(7), submitted["wallet_id"])
	assert.Nil(t, submitted["category_id"])
}

func TestInvoicePDF(t *testing.T) {
	t.Run("pdf with token cookie", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/financial_operation/15/pdf", r.URL.Path)
			cookie, err := r.Cookie("token")
			require.NoError(t, err)
			assert.Equal(t, "tok-1", cookie.Value)
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.7 body"))
		}))

		doc, err := c.InvoicePDF(context.Background(), 15)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.7 body", string(doc))
	})

	t.Run("non pdf rejected", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		}))

		_, err := c.InvoicePDF(context.Background(), 15)
		assert.Equal(t, MsgPDFWrongFormat, err.Error())
	})

	t.Run("server failure uses fallback", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		_, err := c.InvoicePDF(context.Background(), 15)
		assert.Equal(t, MsgPDFFailed, err.Error())
	})
}

func TestPayInvoice(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/invoices/15/pay", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"is_paid":true,"wallet_id":8}`, string(raw))
	}))

	require.NoError(t, c.PayInvoice(context.Background(), 15, 8))
}
