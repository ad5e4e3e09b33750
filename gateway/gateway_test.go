package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/medistore/pkg/apperr"
	"github.com/example/medistore/pkg/auth"
	"github.com/example/medistore/pkg/config"
	"github.com/example/medistore/pkg/engine"
	"github.com/example/medistore/pkg/models"
	"github.com/example/medistore/pkg/repository"
	"github.com/example/medistore/pkg/storage"
	"github.com/example/medistore/pkg/view"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeCatalog struct {
	meds []models.Medicine
	err  error
}

func (f *fakeCatalog) ListMedicines(ctx context.Context) ([]models.Medicine, error) {
	return f.meds, f.err
}

func (f *fakeCatalog) Search(ctx context.Context, query string) ([]models.Medicine, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Medicine
	for _, m := range f.meds {
		if strings.Contains(strings.ToLower(m.Name), strings.ToLower(query)) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetByID(ctx context.Context, id int64) (*models.Medicine, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, m := range f.meds {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, apperr.ErrNotFound
}

type fakeAuth struct{}

func (fakeAuth) Login(ctx context.Context, email, password string) (*auth.LoginResponse, error) {
	if password != "secret1" {
		return nil, &apperr.ServiceError{Service: "auth", Op: "login", Status: http.StatusUnauthorized, Message: "Invalid email or password"}
	}
	return &auth.LoginResponse{Token: "tok", User: models.User{ID: 5, FirstName: "Asha", Email: email}}, nil
}

func (fakeAuth) Register(ctx context.Context, reg models.Registration) (*auth.RegisterResponse, error) {
	if reg.Email == "" {
		return nil, apperr.NewValidation("missing fields", "email")
	}
	return &auth.RegisterResponse{Message: "created", UserID: 12}, nil
}

var catalogFixture = []models.Medicine{
	{ID: 1, Name: "Paracetamol 500mg", Price: decimal.NewFromInt(25), StockQuantity: 100},
	{ID: 2, Name: "Cough Syrup", Price: decimal.NewFromInt(75), StockQuantity: 10},
	{ID: 3, Name: "Discontinued", Price: decimal.NewFromInt(5), StockQuantity: 0},
}

func setupGateway(t *testing.T, cat *fakeCatalog) *Gateway {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := func() time.Time { return time.Date(2026, 6, 1, 7, 0, 0, 0, time.UTC) }
	e := engine.New(storage.NewMemoryStore(), nil, nil, engine.Options{
		DeliveryFee: decimal.NewFromInt(50),
		Clock:       clock,
	}, zap.NewNop())
	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	d, err := engine.Spawn(actor.NewActorSystem(), e, 2*time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	t.Cleanup(func() { _ = d.Stop() })

	cfg := &config.GatewayConfig{Host: "127.0.0.1", Port: 0, IntentTimeout: 2 * time.Second}
	return NewGateway(cfg, zap.NewNop(), d, cat, fakeAuth{})
}

func do(t *testing.T, g *Gateway, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	g.Handler().ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) view.View {
	t.Helper()
	var v view.View
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode view: %v (%s)", err, w.Body.String())
	}
	return v
}

func login(t *testing.T, g *Gateway) {
	t.Helper()
	w := do(t, g, http.MethodPost, "/api/v1/session/login", gin.H{"email": "asha@example.com", "password": "secret1"})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body.String())
	}
}

var customerBody = gin.H{
	"customerInfo": gin.H{
		"name":    "Asha Rao",
		"phone":   "9876543210",
		"address": "12 MG Road",
		"city":    "Pune",
		"pincode": "411001",
	},
}

func TestHealth(t *testing.T) {
	g := setupGateway(t, &fakeCatalog{})
	w := do(t, g, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestView_Empty(t *testing.T) {
	g := setupGateway(t, &fakeCatalog{})
	w := do(t, g, http.MethodGet, "/api/v1/view", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	v := decodeView(t, w)
	if !v.Cart.Empty || v.Session.LoggedIn || len(v.PaymentOptions) != 2 {
		t.Errorf("view = %+v", v)
	}
}

func TestMedicines(t *testing.T) {
	g := setupGateway(t, &fakeCatalog{meds: catalogFixture})

	w := do(t, g, http.MethodGet, "/api/v1/medicines", nil)
	var list struct {
		Medicines []models.Medicine `json:"medicines"`
		Total     int               `json:"total"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if w.Code != http.StatusOK || list.Total != 3 {
		t.Errorf("list = %d %+v", w.Code, list)
	}

	w = do(t, g, http.MethodGet, "/api/v1/medicines?q=cough", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || list.Medicines[0].ID != 2 {
		t.Errorf("search = %+v", list)
	}

	if w := do(t, g, http.MethodGet, "/api/v1/medicines/42", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing medicine status = %d", w.Code)
	}
	if w := do(t, g, http.MethodGet, "/api/v1/medicines/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", w.Code)
	}
}

func TestMedicines_ServiceDown(t *testing.T) {
	g := setupGateway(t, &fakeCatalog{err: &apperr.ServiceError{Service: "catalog", Op: "list", Err: errors.New("connection refused")}})
	if w := do(t, g, http.MethodGet, "/api/v1/medicines", nil); w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestCart_AddUpdateRemove(t *testing.T) {
	g := setupGateway(t, &fakeCatalog{meds: catalogFixture})

	do(t, g, http.MethodPost, "/api/v1/cart/items", gin.H{"medicine_id": 1})
	do(t, g, http.MethodPost, "/api/v1/cart/items", gin.H{"medicine_id": 1})
	w := do(t, g, http.MethodPost, "/api/v1/cart/items", gin.H{"medicine_id": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("add status = %d: %s", w.Code, w.Body.String())
	}
	v := decodeView(t, w)
	if v.Cart.Count != 3 || !v.Cart.Total.Equal(decimal.NewFromInt(175)) {
		t.Errorf("cart = %+v", v.Cart)
	}

	w = do(t, g, http.MethodPatch, "/api/v1/cart/items/1", gin.H{"delta": -2})
	v = decodeView(t, w)
	if len(v.Cart.Lines) != 1 || v.Cart.Lines[0].MedicineID != 2 {
		t.Errorf("after update = %+v", v.Cart.Lines)
	}

	w = do(t, g, http.MethodDelete, "/api/v1/cart/items/2", nil)
	if v = decodeView(t, w); !v.Cart.Empty {
		t.Errorf("after remove = %+v", v.Cart)
	}

	if w := do(t, g, http.MethodDelete, "/api/v1/cart/items/99", nil); w.Code != http.StatusOK {
		t.Errorf("removing unknown item status = %d", w.Code)
	}
}

func TestCart_AddRejections(t *testing.T) {
	g := setupGateway(t, &fakeCatalog{meds: catalogFixture})

	if w := do(t, g, http.MethodPost, "/api/v1/cart/items", gin.H{"medicine_id": 3}); w.Code != http.StatusBadRequest {
		t.Errorf("out of stock status = %d", w.Code)
	}
	if w := do(t, g, http.MethodPost, "/api/v1/cart/items", gin.H{"medicine_id": 42}); w.Code != http.StatusNotFound {
		t.Errorf("unknown medicine status = %d", w.Code)
	}
	if w := do(t, g, http.MethodPost, "/api/v1/cart/items", gin.H{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing id status = %d", w.Code)
	}
}

func TestCart_RequiresLogin(t *testing.T) {
	g := setupGateway(t, &fakeCatalog{meds: catalogFixture})

	if w := do(t, g, http.MethodGet, "/api/v1/cart", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	login(t, g)
	if w := do(t, g, http.MethodGet, "/api/v1/cart", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestCheckout(t *testing.T) {
	g := setupGateway(t, &fakeCatalog{meds: catalogFixture})
	do(t, g, http.MethodPost, "/api/v1/cart/items", gin.H{"medicine_id": 1})

	if w := do(t, g, http.MethodPost, "/api/v1/checkout", customerBody); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous checkout status = %d", w.Code)
	}

	login(t, g)

	w := do(t, g, http.MethodPost, "/api/v1/checkout", gin.H{"customerInfo": gin.H{"name": "Asha"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("incomplete checkout status = %d", w.Code)
	}
	var failure struct {
		Fields []string `json:"fields"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &failure)
	if len(failure.Fields) != 4 {
		t.Errorf("fields = %v, want 4 missing", failure.Fields)
	}

	w = do(t, g, http.MethodPost, "/api/v1/checkout", customerBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("checkout status = %d: %s", w.Code, w.Body.String())
	}
	var placed struct {
		Order models.Order `json:"order"`
		View  view.View    `json:"view"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &placed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(placed.Order.OrderID, "ORD-") || !placed.Order.Total.Equal(decimal.NewFromInt(75)) {
		t.Errorf("order = %+v", placed.Order)
	}
	if !placed.View.Cart.Empty || len(placed.View.Orders) != 1 {
		t.Errorf("view after checkout = %+v", placed.View)
	}

	w = do(t, g, http.MethodGet, "/api/v1/orders", nil)
	var orders struct {
		Total int `json:"total"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &orders)
	if orders.Total != 1 {
		t.Errorf("orders total = %d", orders.Total)
	}
}

func TestReminders(t *testing.T) {
	g := setupGateway(t, &fakeCatalog{})

	w := do(t, g, http.MethodPost, "/api/v1/reminders", gin.H{
		"medicineName": "Metformin",
		"dosage":       "500mg",
		"frequency":    "twice",
		"time":         "08:00",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Reminder models.Reminder `json:"reminder"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if created.Reminder.ID == "" || created.Reminder.DurationDays != 7 {
		t.Errorf("reminder = %+v", created.Reminder)
	}

	if w := do(t, g, http.MethodPost, "/api/v1/reminders", gin.H{"medicineName": "X", "frequency": "hourly", "time": "08:00"}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid reminder status = %d", w.Code)
	}

	w = do(t, g, http.MethodGet, "/api/v1/reminders", nil)
	var list struct {
		Reminders []view.Reminder `json:"reminders"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Reminders) != 1 || len(list.Reminders[0].Schedule) != 2 || list.Reminders[0].NextAlert == nil {
		t.Errorf("reminders = %+v", list.Reminders)
	}

	w = do(t, g, http.MethodDelete, "/api/v1/reminders/"+created.Reminder.ID, nil)
	if v := decodeView(t, w); len(v.Reminders) != 0 {
		t.Errorf("reminders after delete = %+v", v.Reminders)
	}
}

func TestSession(t *testing.T) {
	g := setupGateway(t, &fakeCatalog{})

	w := do(t, g, http.MethodPost, "/api/v1/session/login", gin.H{"email": "asha@example.com", "password": "nope"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad credentials status = %d", w.Code)
	}

	login(t, g)
	w = do(t, g, http.MethodGet, "/api/v1/view", nil)
	if v := decodeView(t, w); !v.Session.LoggedIn || v.Session.User.ID != 5 {
		t.Errorf("session = %+v", v.Session)
	}

	w = do(t, g, http.MethodDelete, "/api/v1/session", nil)
	if v := decodeView(t, w); v.Session.LoggedIn {
		t.Error("still logged in after logout")
	}

	w = do(t, g, http.MethodPost, "/api/v1/session/register", gin.H{"firstName": "A", "lastName": "B", "email": "a@b.co", "password": "secret1"})
	if w.Code != http.StatusCreated {
		t.Errorf("register status = %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.NewValidation("x"), http.StatusBadRequest},
		{apperr.ErrUnauthenticated, http.StatusUnauthorized},
		{apperr.ErrNotFound, http.StatusNotFound},
		{apperr.ErrStaleResponse, http.StatusConflict},
		{&apperr.ServiceError{Service: "catalog", Status: 503}, http.StatusBadGateway},
		{&apperr.ServiceError{Service: "auth", Status: 400}, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

type fakeHistory struct {
	calls []string
	limit int64
	err   error
}

func (f *fakeHistory) History(ctx context.Context, entityID string, limit int64) ([]*repository.AuditLog, error) {
	f.calls = append(f.calls, entityID)
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []*repository.AuditLog{{Action: engine.AuditOrderPlaced, EntityID: entityID}}, nil
}

func TestOrderHistory(t *testing.T) {
	g := setupGateway(t, &fakeCatalog{meds: catalogFixture})
	if w := do(t, g, http.MethodGet, "/api/v1/orders/ORD-X/history", nil); w.Code != http.StatusNotFound {
		t.Errorf("history without audit trail status = %d, want 404", w.Code)
	}

	h := &fakeHistory{}
	g.SetHistory(h)
	login(t, g)
	do(t, g, http.MethodPost, "/api/v1/cart/items", gin.H{"medicine_id": 1})
	w := do(t, g, http.MethodPost, "/api/v1/checkout", customerBody)
	var placed struct {
		Order models.Order `json:"order"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &placed); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = do(t, g, http.MethodGet, "/api/v1/orders/"+placed.Order.OrderID+"/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		History []repository.AuditLog `json:"history"`
		Total   int                   `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if resp.Total != 1 || resp.History[0].Action != engine.AuditOrderPlaced || resp.History[0].EntityID != placed.Order.OrderID {
		t.Errorf("history = %+v", resp)
	}
	if h.limit != repository.DefaultHistoryLimit {
		t.Errorf("limit = %d, want default", h.limit)
	}

	if w := do(t, g, http.MethodGet, "/api/v1/orders/ORD-UNKNOWN/history", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown order status = %d, want 404", w.Code)
	}
	if len(h.calls) != 1 {
		t.Errorf("history calls = %v, want only the placed order", h.calls)
	}
}

func TestReminderHistory(t *testing.T) {
	g := setupGateway(t, &fakeCatalog{})
	h := &fakeHistory{}
	g.SetHistory(h)

	w := do(t, g, http.MethodGet, "/api/v1/reminders/rem-9/history?limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if len(h.calls) != 1 || h.calls[0] != "rem-9" || h.limit != 5 {
		t.Errorf("calls = %v, limit = %d", h.calls, h.limit)
	}

	if w := do(t, g, http.MethodGet, "/api/v1/reminders/rem-9/history?limit=0", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}

	h.err = errors.New("mongo down")
	if w := do(t, g, http.MethodGet, "/api/v1/reminders/rem-9/history", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("store failure status = %d, want 500", w.Code)
	}
}
