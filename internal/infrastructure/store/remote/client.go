// Package remote implements the bill store over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/internal/domain/entity"
	"github.com/garyjia/billed/internal/infrastructure/resilience"
	"golang.org/x/time/rate"
)

// EmailHeader carries the session email on every store request
const EmailHeader = "X-User-Email"

const maxResponseSize = 4 << 20

// StoreError is a non-2xx answer from the store
type StoreError struct {
	StatusCode int
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("Erreur %d", e.StatusCode)
}

// IsServerFailure reports whether err should count against the circuit breaker.
// Client errors (4xx) do not.
func IsServerFailure(err error) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled)
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Observer records store calls
type Observer interface {
	ObserveStoreCall(operation string, err error, duration time.Duration)
}

// Config holds remote store settings
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
	Burst     int
}

// Store talks to the store API at BaseURL
type Store struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *resilience.Breaker
	observer   Observer
	logger     Logger
}

// Option configures a Store
type Option func(*Store)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) {
		s.httpClient = client
	}
}

// WithBreaker guards every call with breaker
func WithBreaker(breaker *resilience.Breaker) Option {
	return func(s *Store) {
		s.breaker = breaker
	}
}

// WithObserver sets the call observer
func WithObserver(observer Observer) Option {
	return func(s *Store) {
		s.observer = observer
	}
}

// NewStore creates a remote store
func NewStore(cfg Config, logger Logger, opts ...Option) (*Store, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid store base URL %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	s := &Store{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Bills returns the bills resource for session
func (s *Store) Bills(session *entity.Session) port.BillsClient {
	return &billsClient{store: s, email: session.UserEmail()}
}

type billsClient struct {
	store *Store
	email string
}

func (c *billsClient) List(ctx context.Context) ([]port.RawRecord, error) {
	var records []port.RawRecord
	err := c.store.call(ctx, "bills.list", func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodGet, "/api/bills", nil, "")
		if err != nil {
			return err
		}
		return c.store.do(req, &records)
	})
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []port.RawRecord{}
	}
	return records, nil
}

func (c *billsClient) Create(ctx context.Context, in port.CreateRequest) (*port.CreateResult, error) {
	body, contentType, err := encodeCreate(in)
	if err != nil {
		return nil, err
	}

	var result port.CreateResult
	err = c.store.call(ctx, "bills.create", func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodPost, "/api/bills", bytes.NewReader(body), contentType)
		if err != nil {
			return err
		}
		return c.store.do(req, &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *billsClient) Update(ctx context.Context, in port.UpdateRequest) (port.RawRecord, error) {
	if in.ID == "" {
		return nil, fmt.Errorf("update requires a bill id")
	}
	body, err := json.Marshal(in.Bill)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bill: %w", err)
	}

	var record port.RawRecord
	err = c.store.call(ctx, "bills.update", func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodPatch, "/api/bills/"+url.PathEscape(in.ID), bytes.NewReader(body), "application/json")
		if err != nil {
			return err
		}
		return c.store.do(req, &record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (c *billsClient) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.store.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.email != "" {
		req.Header.Set(EmailHeader, c.email)
	}
	return req, nil
}

// encodeCreate builds a multipart upload for receipts and a JSON body for bills
func encodeCreate(in port.CreateRequest) ([]byte, string, error) {
	if in.Receipt == nil {
		if in.Bill == nil {
			return nil, "", fmt.Errorf("create requires a receipt or a bill")
		}
		bill := *in.Bill
		if bill.Email == "" {
			bill.Email = in.Email
		}
		body, err := json.Marshal(bill)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode bill: %w", err)
		}
		return body, "application/json", nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("email", in.Email); err != nil {
		return nil, "", fmt.Errorf("failed to write email field: %w", err)
	}
	part, err := w.CreateFormFile("file", in.Receipt.FileName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(in.Receipt.Content); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// call applies rate limiting and the breaker around fn
func (s *Store) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()

	err := s.limiter.Wait(ctx)
	if err == nil {
		if s.breaker != nil {
			err = s.breaker.Execute(ctx, operation, fn)
		} else {
			err = fn(ctx)
		}
	}

	if s.observer != nil {
		s.observer.ObserveStoreCall(operation, err, time.Since(start))
	}
	if err != nil {
		s.logger.Error("Store call failed", "operation", operation, "error", err)
		return err
	}
	return nil
}

func (s *Store) do(req *http.Request, out interface{}) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return &StoreError{StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode store response: %w", err)
	}
	return nil
}
