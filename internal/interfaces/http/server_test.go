package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/internal/domain/entity"
	"github.com/garyjia/billed/internal/domain/workflow"
	"github.com/garyjia/billed/internal/infrastructure/export"
	"github.com/garyjia/billed/internal/infrastructure/metrics"
	"github.com/garyjia/billed/internal/infrastructure/store/remote"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

var employee = &entity.Session{Type: entity.UserTypeEmployee, Email: "a@a"}

type fakeBillsClient struct {
	mu         sync.Mutex
	listFunc   func(ctx context.Context) ([]port.RawRecord, error)
	createFunc func(ctx context.Context, req port.CreateRequest) (*port.CreateResult, error)
	updateFunc func(ctx context.Context, req port.UpdateRequest) (port.RawRecord, error)
	creates    []port.CreateRequest
	updates    []port.UpdateRequest
}

func (f *fakeBillsClient) List(ctx context.Context) ([]port.RawRecord, error) {
	if f.listFunc == nil {
		return []port.RawRecord{}, nil
	}
	return f.listFunc(ctx)
}

func (f *fakeBillsClient) Create(ctx context.Context, req port.CreateRequest) (*port.CreateResult, error) {
	f.mu.Lock()
	f.creates = append(f.creates, req)
	f.mu.Unlock()
	if f.createFunc == nil {
		return &port.CreateResult{ID: "new-id"}, nil
	}
	return f.createFunc(ctx, req)
}

func (f *fakeBillsClient) Update(ctx context.Context, req port.UpdateRequest) (port.RawRecord, error) {
	f.mu.Lock()
	f.updates = append(f.updates, req)
	f.mu.Unlock()
	if f.updateFunc == nil {
		return port.RawRecord{"id": req.ID}, nil
	}
	return f.updateFunc(ctx, req)
}

type fakeStore struct {
	client *fakeBillsClient
}

func (s *fakeStore) Bills(*entity.Session) port.BillsClient {
	return s.client
}

type testServer struct {
	server *Server
	forms  *FormRegistry
}

func newTestServer(t *testing.T, deps Dependencies) *testServer {
	t.Helper()
	forms := NewFormRegistry(time.Minute, nopLogger{})
	deps.Forms = forms
	deps.Exporter = export.NewXLSXExporter(zap.NewNop())

	server, err := NewServer(DefaultServerConfig(), deps, nopLogger{})
	require.NoError(t, err)
	return &testServer{server: server, forms: forms}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.server.Router().ServeHTTP(w, req)
	return w
}

func sessionCookie(session *entity.Session) *http.Cookie {
	raw, _ := json.Marshal(session)
	return &http.Cookie{Name: SessionCookie, Value: url.QueryEscape(string(raw))}
}

func employeeRequest(method, target string, body *bytes.Buffer, contentType string) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.AddCookie(sessionCookie(employee))
	return req
}

func multipartFile(t *testing.T, fileName string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func fixtureRecords() []port.RawRecord {
	return []port.RawRecord{
		{"id": "47qAXb6fIm2zOKkLzMro", "type": "Hôtel et logement", "name": "encore", "amount": 400, "date": "2004-04-04", "status": "pending", "fileUrl": "https://localhost/a.jpg"},
		{"id": "BeKy5Mo4jkmdfPGYpTxZ", "type": "Transports", "name": "test1", "amount": 100, "date": "2001-01-01", "status": "refused"},
		{"id": "UIUZtnPQvnbFnB0ozvJh", "type": "Services en ligne", "name": "test3", "amount": 300, "date": "2003-03-03", "status": "accepted"},
		{"id": "qcCK3SzECmaZAGRrHjaC", "type": "Restaurants et bars", "name": "test2", "amount": 200, "date": "2002-02-02", "status": "refused"},
	}
}

var formIDPattern = regexp.MustCompile(`data-form-id="([0-9a-f-]{36})"`)

func openForm(t *testing.T, s *testServer) string {
	t.Helper()
	w := s.do(employeeRequest(http.MethodGet, port.RouteNewBill, nil, ""))
	require.Equal(t, http.StatusOK, w.Code)
	m := formIDPattern.FindStringSubmatch(w.Body.String())
	require.Len(t, m, 2, "form id missing from page")
	return m[1]
}

func submitValues() url.Values {
	return url.Values{
		"expense-type": {"Transports"},
		"expense-name": {"Vol Paris Londres"},
		"amount":       {"348"},
		"datepicker":   {"2004-04-04"},
		"vat":          {"70"},
		"pct":          {""},
		"commentary":   {"séminaire"},
	}
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := newTestServer(t, Dependencies{Checks: map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
		}})
		w := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Status     string            `json:"status"`
			Service    string            `json:"service"`
			Components map[string]string `json:"components"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, ServiceName, body.Service)
		assert.Equal(t, map[string]string{"database": "ok"}, body.Components)
	})

	t.Run("failing component", func(t *testing.T) {
		s := newTestServer(t, Dependencies{Checks: map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
			"nats":     func(context.Context) error { return errors.New("not connected") },
		}})
		w := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"nats":"not connected"`)
		assert.Contains(t, w.Body.String(), `"status":"unhealthy"`)
	})
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, Dependencies{})

	t.Run("employee pages require a session", func(t *testing.T) {
		w := s.do(httptest.NewRequest(http.MethodGet, port.RouteBills, nil))
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, port.RouteLogin, w.Header().Get("Location"))
	})

	t.Run("login page", func(t *testing.T) {
		w := s.do(httptest.NewRequest(http.MethodGet, port.RouteLogin, nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `data-testid="employee-email-input"`)
	})

	t.Run("connected employee goes to bills", func(t *testing.T) {
		w := s.do(employeeRequest(http.MethodGet, port.RouteLogin, nil, ""))
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, port.RouteBills, w.Header().Get("Location"))
	})

	t.Run("login sets the session cookie", func(t *testing.T) {
		body := strings.NewReader(url.Values{"email": {"a@a"}}.Encode())
		req := httptest.NewRequest(http.MethodPost, port.RouteLogin, body)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := s.do(req)

		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, port.RouteBills, w.Header().Get("Location"))
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, SessionCookie, cookies[0].Name)

		raw, err := url.QueryUnescape(cookies[0].Value)
		require.NoError(t, err)
		var session entity.Session
		require.NoError(t, json.Unmarshal([]byte(raw), &session))
		assert.Equal(t, entity.Session{Type: entity.UserTypeEmployee, Email: "a@a"}, session)
	})

	t.Run("invalid email", func(t *testing.T) {
		body := strings.NewReader(url.Values{"email": {"not-an-email"}}.Encode())
		req := httptest.NewRequest(http.MethodPost, port.RouteLogin, body)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := s.do(req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `data-testid="login-error"`)
	})

	t.Run("admins are not employees", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, port.RouteBills, nil)
		req.AddCookie(sessionCookie(&entity.Session{Type: entity.UserTypeAdmin, Email: "admin@billed.tld"}))
		w := s.do(req)
		assert.Equal(t, http.StatusFound, w.Code)
	})
}

func TestListBills(t *testing.T) {
	t.Run("bills are shown latest first", func(t *testing.T) {
		client := &fakeBillsClient{listFunc: func(context.Context) ([]port.RawRecord, error) {
			return fixtureRecords(), nil
		}}
		s := newTestServer(t, Dependencies{Store: &fakeStore{client: client}})

		w := s.do(employeeRequest(http.MethodGet, port.RouteBills, nil, ""))
		require.Equal(t, http.StatusOK, w.Code)

		body := w.Body.String()
		assert.Contains(t, body, `data-testid="icon-window"`)
		assert.Contains(t, body, `data-testid="btn-new-bill"`)
		assert.Contains(t, body, `data-testid="tbody"`)
		assert.Equal(t, 4, strings.Count(body, `data-testid="icon-eye"`))

		dates := []string{"4 Avr. 04", "3 Mar. 03", "2 Fév. 02", "1 Jan. 01"}
		last := -1
		for _, d := range dates {
			i := strings.Index(body, d)
			require.NotEqual(t, -1, i, "missing %s", d)
			assert.Greater(t, i, last, "%s out of order", d)
			last = i
		}
		assert.Contains(t, body, "En attente")
		assert.Contains(t, body, "Refusé")
	})

	for _, status := range []int{404, 500} {
		t.Run(fmt.Sprintf("store error %d", status), func(t *testing.T) {
			client := &fakeBillsClient{listFunc: func(context.Context) ([]port.RawRecord, error) {
				return nil, &remote.StoreError{StatusCode: status}
			}}
			s := newTestServer(t, Dependencies{Store: &fakeStore{client: client}})

			w := s.do(employeeRequest(http.MethodGet, port.RouteBills, nil, ""))
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Contains(t, w.Body.String(), `data-testid="error-message"`)
			assert.Contains(t, w.Body.String(), fmt.Sprintf("Erreur %d", status))
		})
	}

	t.Run("no store", func(t *testing.T) {
		s := newTestServer(t, Dependencies{})
		w := s.do(employeeRequest(http.MethodGet, port.RouteBills, nil, ""))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), `data-testid="icon-eye"`)
	})
}

func TestPreviewReceipt(t *testing.T) {
	s := newTestServer(t, Dependencies{Store: &fakeStore{client: &fakeBillsClient{}}})

	t.Run("with receipt", func(t *testing.T) {
		target := "/employee/bills/preview?url=" + url.QueryEscape("https://localhost/a.jpg")
		w := s.do(employeeRequest(http.MethodGet, target, nil, ""))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), entity.ReceiptModalTitle)
		assert.Contains(t, w.Body.String(), `src="https://localhost/a.jpg"`)
	})

	t.Run("without receipt the modal is empty", func(t *testing.T) {
		w := s.do(employeeRequest(http.MethodGet, "/employee/bills/preview", nil, ""))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), entity.ReceiptModalTitle)
		assert.NotContains(t, w.Body.String(), "<img")
	})
}

func TestRequestNewBill(t *testing.T) {
	s := newTestServer(t, Dependencies{})
	w := s.do(employeeRequest(http.MethodPost, "/employee/bills/new", nil, ""))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, port.RouteNewBill, w.Header().Get("Location"))
}

func TestExportBills(t *testing.T) {
	client := &fakeBillsClient{listFunc: func(context.Context) ([]port.RawRecord, error) {
		return fixtureRecords(), nil
	}}
	s := newTestServer(t, Dependencies{Store: &fakeStore{client: client}})

	w := s.do(employeeRequest(http.MethodGet, "/employee/bills/export.xlsx", nil, ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), exportFileName)

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	name, err := f.GetCellValue(export.SheetName, "B2")
	require.NoError(t, err)
	assert.Equal(t, "encore", name)
}

func TestNewBillFlow(t *testing.T) {
	t.Run("upload then submit updates the uploaded bill", func(t *testing.T) {
		client := &fakeBillsClient{
			createFunc: func(ctx context.Context, req port.CreateRequest) (*port.CreateResult, error) {
				return &port.CreateResult{ID: "47qAXb6fIm2zOKkLzMro", FileURL: "https://localhost/receipts/a.png", FileName: "a.png"}, nil
			},
		}
		s := newTestServer(t, Dependencies{Store: &fakeStore{client: client}})

		id := openForm(t, s)
		assert.Equal(t, 1, s.forms.Len())

		body, contentType := multipartFile(t, "a.png", []byte("png"), nil)
		w := s.do(employeeRequest(http.MethodPost, port.RouteNewBill+"/"+id+"/file", body, contentType))
		require.Equal(t, http.StatusAccepted, w.Code)

		var status formStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.False(t, status.Cleared)

		form := submitValues()
		w = s.do(employeeRequest(http.MethodPost, port.RouteNewBill+"/"+id,
			bytes.NewBufferString(form.Encode()), "application/x-www-form-urlencoded"))
		require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
		assert.Equal(t, port.RouteBills, w.Header().Get("Location"))
		assert.Equal(t, 0, s.forms.Len())

		client.mu.Lock()
		defer client.mu.Unlock()
		require.Len(t, client.creates, 1)
		require.NotNil(t, client.creates[0].Receipt)
		assert.Equal(t, "image/png", client.creates[0].Receipt.ContentType)

		require.Len(t, client.updates, 1)
		update := client.updates[0]
		assert.Equal(t, "47qAXb6fIm2zOKkLzMro", update.ID)
		assert.Equal(t, "a@a", update.Bill.Email)
		assert.Equal(t, 348.0, update.Bill.Amount)
		assert.Equal(t, entity.DefaultVATPct, update.Bill.Pct)
		assert.Equal(t, entity.BillStatusPending, update.Bill.Status)
		assert.Equal(t, "https://localhost/receipts/a.png", update.Bill.FileURL)
	})

	t.Run("unsupported file clears the input", func(t *testing.T) {
		client := &fakeBillsClient{}
		s := newTestServer(t, Dependencies{Store: &fakeStore{client: client}})
		id := openForm(t, s)

		body, contentType := multipartFile(t, "receipt.pdf", []byte("%PDF"), nil)
		w := s.do(employeeRequest(http.MethodPost, port.RouteNewBill+"/"+id+"/file", body, contentType))
		require.Equal(t, http.StatusAccepted, w.Code)

		var status formStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.True(t, status.Cleared)
		assert.Equal(t, workflow.StateEmpty.String(), status.State)
		assert.Empty(t, client.creates)
	})

	t.Run("store failure keeps the form with the error", func(t *testing.T) {
		client := &fakeBillsClient{
			createFunc: func(ctx context.Context, req port.CreateRequest) (*port.CreateResult, error) {
				return nil, &remote.StoreError{StatusCode: 500}
			},
		}
		s := newTestServer(t, Dependencies{Store: &fakeStore{client: client}})
		id := openForm(t, s)

		form := submitValues()
		w := s.do(employeeRequest(http.MethodPost, port.RouteNewBill+"/"+id,
			bytes.NewBufferString(form.Encode()), "application/x-www-form-urlencoded"))

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, w.Body.String(), `data-testid="form-error"`)
		assert.Contains(t, w.Body.String(), "Erreur 500")
		assert.Equal(t, 1, s.forms.Len())
	})

	t.Run("invalid amount", func(t *testing.T) {
		for _, amount := range []string{"-1", "NaN", "Inf"} {
			client := &fakeBillsClient{}
			s := newTestServer(t, Dependencies{Store: &fakeStore{client: client}})
			id := openForm(t, s)

			form := submitValues()
			form.Set("amount", amount)
			w := s.do(employeeRequest(http.MethodPost, port.RouteNewBill+"/"+id,
				bytes.NewBufferString(form.Encode()), "application/x-www-form-urlencoded"))

			assert.Equal(t, http.StatusBadRequest, w.Code, amount)
			assert.Contains(t, w.Body.String(), `data-testid="form-error"`)

			client.mu.Lock()
			assert.Empty(t, client.creates, amount)
			client.mu.Unlock()
		}
	})

	t.Run("forms belong to their session", func(t *testing.T) {
		s := newTestServer(t, Dependencies{})
		id := openForm(t, s)

		req := httptest.NewRequest(http.MethodGet, port.RouteNewBill+"/"+id+"/status", nil)
		req.AddCookie(sessionCookie(&entity.Session{Type: entity.UserTypeEmployee, Email: "b@b"}))
		w := s.do(req)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = s.do(employeeRequest(http.MethodGet, port.RouteNewBill+"/"+id+"/status", nil, ""))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown form opens a new one", func(t *testing.T) {
		s := newTestServer(t, Dependencies{})
		form := submitValues()
		w := s.do(employeeRequest(http.MethodPost, port.RouteNewBill+"/unknown",
			bytes.NewBufferString(form.Encode()), "application/x-www-form-urlencoded"))

		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, port.RouteNewBill, w.Header().Get("Location"))
	})

	t.Run("without a store the bill is not saved", func(t *testing.T) {
		s := newTestServer(t, Dependencies{})
		id := openForm(t, s)

		form := submitValues()
		w := s.do(employeeRequest(http.MethodPost, port.RouteNewBill+"/"+id,
			bytes.NewBufferString(form.Encode()), "application/x-www-form-urlencoded"))

		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, port.RouteBills, w.Header().Get("Location"))
	})
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, Dependencies{Metrics: metrics.New()})

	s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	w := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `billed_http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestErrorText(t *testing.T) {
	err := &remote.StoreError{StatusCode: 404}
	wrapped := fmt.Errorf("failed to list bills: %w", err)
	assert.Equal(t, "Erreur 404", errorText(wrapped))
	assert.Equal(t, "plain", errorText(errors.New("plain")))
}
