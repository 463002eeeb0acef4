package local

import (
	"context"
	"math"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/garyjia/billed/internal/application/dispatcher"
	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/internal/domain/entity"
	"github.com/garyjia/billed/internal/domain/event"
	"github.com/garyjia/billed/internal/infrastructure/persistence/repository"
	"github.com/garyjia/billed/internal/infrastructure/storage"
	"github.com/garyjia/billed/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

var (
	employee = &entity.Session{Type: entity.UserTypeEmployee, Email: "a@a"}
	other    = &entity.Session{Type: entity.UserTypeEmployee, Email: "b@b"}
	admin    = &entity.Session{Type: entity.UserTypeAdmin, Email: "admin@billed.tld"}
)

type fixture struct {
	store    *Store
	receipts port.ReceiptStorage
	events   dispatcher.Dispatcher

	mu   sync.Mutex
	seen []event.Type
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.New(database.Config{Path: database.MemoryPath}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db, zap.NewNop()).Run(context.Background(), database.Migrations))

	f := &fixture{
		receipts: storage.NewReceiptFileStorage(t.TempDir(), zap.NewNop()),
		events:   dispatcher.NewDispatcher(),
	}
	f.events.SubscribeAll("recorder", func(ctx context.Context, evt *event.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.seen = append(f.seen, evt.Type)
		return nil
	})
	f.store = NewStore(repository.NewBillRepository(db.DB, zap.NewNop()), f.receipts, f.events, "http://localhost:8080/", nopLogger{})
	return f
}

// delivered closes the dispatcher and returns what it delivered
func (f *fixture) delivered(t *testing.T) []event.Type {
	require.NoError(t, f.events.Close())
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen
}

func upload(t *testing.T, client port.BillsClient) *port.CreateResult {
	t.Helper()
	res, err := client.Create(context.Background(), port.CreateRequest{
		Email:   "a@a",
		Receipt: &port.Receipt{FileName: "sample.jpg", ContentType: "image/jpeg", Content: []byte("jpeg")},
	})
	require.NoError(t, err)
	return res
}

func TestStore_UploadThenSubmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.store.Bills(employee)

	res := upload(t, client)
	require.NotEmpty(t, res.ID)
	assert.Equal(t, "sample.jpg", res.FileName)
	assert.True(t, strings.HasPrefix(res.FileURL, "http://localhost:8080/receipts/a_at_a/"), res.FileURL)

	path, err := f.receipts.Open(strings.TrimPrefix(res.FileURL, "http://localhost:8080/receipts/"))
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(content))

	record, err := client.Update(ctx, port.UpdateRequest{
		ID: res.ID,
		Bill: entity.Bill{
			Type: "Transports", Name: "Vol", Amount: 348, Date: "2022-04-22", VAT: "70", Pct: 20,
			Status: entity.BillStatusPending, FileURL: res.FileURL, FileName: res.FileName,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Vol", record["name"])
	assert.Equal(t, "a@a", record["email"])

	records, err := client.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	bill, err := port.DecodeBill(records[0])
	require.NoError(t, err)
	assert.Equal(t, 348.0, bill.Amount)
	assert.Equal(t, entity.BillStatusPending, bill.Status)

	assert.ElementsMatch(t, []event.Type{event.TypeReceiptUploaded, event.TypeBillUpdated}, f.delivered(t))
}

func TestStore_CreateBill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.store.Bills(employee).Create(ctx, port.CreateRequest{
		Bill: &entity.Bill{Name: "taxi", Amount: 12, Pct: 20, Date: "2022-01-02"},
	})
	require.NoError(t, err)

	records, err := f.store.Bills(employee).List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, res.ID, records[0]["id"])
	assert.Equal(t, "pending", records[0]["status"])
	assert.Equal(t, "a@a", records[0]["email"], "email falls back to the session")

	assert.Equal(t, []event.Type{event.TypeBillCreated}, f.delivered(t))
}

func TestStore_CreateRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.store.Bills(employee)

	tests := []struct {
		name string
		req  port.CreateRequest
	}{
		{"pdf receipt", port.CreateRequest{Email: "a@a", Receipt: &port.Receipt{FileName: "test.pdf"}}},
		{"negative amount", port.CreateRequest{Email: "a@a", Bill: &entity.Bill{Amount: -1}}},
		{"infinite amount", port.CreateRequest{Email: "a@a", Bill: &entity.Bill{Amount: math.Inf(1)}}},
		{"NaN amount", port.CreateRequest{Email: "a@a", Bill: &entity.Bill{Amount: math.NaN()}}},
		{"unknown status", port.CreateRequest{Email: "a@a", Bill: &entity.Bill{Status: "draft"}}},
		{"empty payload", port.CreateRequest{Email: "a@a"}},
		{"invalid email", port.CreateRequest{Email: "nobody", Bill: &entity.Bill{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Create(ctx, tt.req)
			assert.ErrorIs(t, err, entity.ErrInvalidBill)
		})
	}
}

func TestStore_ListScopedBySession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	upload(t, f.store.Bills(employee))
	_, err := f.store.Bills(other).Create(ctx, port.CreateRequest{Bill: &entity.Bill{Name: "other"}})
	require.NoError(t, err)

	mine, err := f.store.Bills(employee).List(ctx)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := f.store.Bills(admin).List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_UpdateRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := upload(t, f.store.Bills(employee))

	t.Run("unknown bill", func(t *testing.T) {
		_, err := f.store.Bills(employee).Update(ctx, port.UpdateRequest{ID: "missing"})
		assert.ErrorIs(t, err, port.ErrNotFound)
	})

	t.Run("other employee", func(t *testing.T) {
		_, err := f.store.Bills(other).Update(ctx, port.UpdateRequest{ID: res.ID, Bill: entity.Bill{Name: "mine now"}})
		assert.ErrorIs(t, err, port.ErrForbidden)
	})

	t.Run("employee cannot review", func(t *testing.T) {
		record, err := f.store.Bills(employee).Update(ctx, port.UpdateRequest{ID: res.ID, Bill: entity.Bill{
			Name: "encore", Status: entity.BillStatusAccepted, CommentAdmin: "ok",
		}})
		require.NoError(t, err)
		assert.Equal(t, "pending", record["status"])
		assert.Equal(t, "", record["commentAdmin"])
		assert.Equal(t, res.FileURL, record["fileUrl"], "receipt kept when omitted")
	})

	t.Run("admin reviews", func(t *testing.T) {
		record, err := f.store.Bills(admin).Update(ctx, port.UpdateRequest{ID: res.ID, Bill: entity.Bill{
			Name: "encore", Status: entity.BillStatusRefused, CommentAdmin: "en fait non",
		}})
		require.NoError(t, err)
		assert.Equal(t, "refused", record["status"])
		assert.Equal(t, "en fait non", record["commentAdmin"])
		assert.Equal(t, "a@a", record["email"])
	})
}
