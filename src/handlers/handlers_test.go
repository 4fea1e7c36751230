package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fincil-server/src/db/sqlstore"
	"fincil-server/src/middleware"
	"fincil-server/src/models"
	"fincil-server/src/workflow"

	"github.com/go-chi/chi/v5"
)

const testSecret = "test-secret"

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newUser(t *testing.T, s *sqlstore.Store, name string) int64 {
	t.Helper()
	u, err := s.CreateUser(context.Background(), models.RegisterRequest{Username: name, Email: name + "@example.com"}, "x")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return u.ID
}

func authed(req *http.Request, userID int64) *http.Request {
	return req.WithContext(middleware.WithUser(req.Context(), userID, "tester", false))
}

func withParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func jsonBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
}

type fakeCache struct {
	invalidated []int64
	cleared     int
}

func (c *fakeCache) Invalidate(userID int64) { c.invalidated = append(c.invalidated, userID) }
func (c *fakeCache) ClearAll()               { c.cleared++ }

func TestRegisterAndLogin(t *testing.T) {
	store := newTestStore(t)
	register := Register(store, testSecret)
	login := Login(store, testSecret)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"ok", `{"username":"priya","email":"priya@example.com","password":"Secr3t!pw"}`, http.StatusCreated},
		{"duplicate", `{"username":"priya","email":"other@example.com","password":"Secr3t!pw"}`, http.StatusConflict},
		{"bad email", `{"username":"sam","email":"sam","password":"Secr3t!pw"}`, http.StatusBadRequest},
		{"short username", `{"username":"sa","email":"sam@example.com","password":"Secr3t!pw"}`, http.StatusBadRequest},
		{"weak password", `{"username":"sam","email":"sam@example.com","password":"password"}`, http.StatusBadRequest},
		{"invalid json", `{invalid-json}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			register(w, httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(tt.body)))
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d (%s)", tt.want, w.Code, w.Body.String())
			}
		})
	}

	loginTests := []struct {
		name string
		body string
		want int
	}{
		{"username", `{"username":"priya","password":"Secr3t!pw"}`, http.StatusOK},
		{"email", `{"username":"PRIYA@example.com","password":"Secr3t!pw"}`, http.StatusOK},
		{"wrong password", `{"username":"priya","password":"nope"}`, http.StatusUnauthorized},
		{"unknown user", `{"username":"nobody","password":"Secr3t!pw"}`, http.StatusUnauthorized},
	}
	for _, tt := range loginTests {
		t.Run("login "+tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			login(w, httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(tt.body)))
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, w.Code)
			}
			if tt.want != http.StatusOK {
				return
			}
			var resp map[string]string
			jsonBody(t, w, &resp)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+resp["token"])
			claims, err := middleware.ParseTokenFromRequest(req, testSecret)
			if err != nil || claims["username"] != "priya" {
				t.Errorf("token claims = %v, %v", claims, err)
			}
		})
	}

	user, _ := store.GetUserByLogin(context.Background(), "priya")
	if user.LastLogin == nil {
		t.Error("last_login not updated")
	}
}

func TestProfileHandlers(t *testing.T) {
	store := newTestStore(t)
	userID := newUser(t, store, "alice")
	cache := &fakeCache{}
	save := SaveProfile(store, cache)
	get := GetProfile(store)

	w := httptest.NewRecorder()
	get(w, authed(httptest.NewRequest(http.MethodGet, "/api/profile", nil), userID))
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "profile setup incomplete") {
		t.Fatalf("missing profile: %d %s", w.Code, w.Body.String())
	}

	body := `{"income_type":"fixed","risk_tolerance":"medium","financial_goal":"car","monthly_income":4000,"monthly_expenses":3000}`
	w = httptest.NewRecorder()
	save(w, authed(httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(body)), userID))
	if w.Code != http.StatusNotFound {
		t.Errorf("PUT before POST expected 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	save(w, authed(httptest.NewRequest(http.MethodPost, "/api/profile", strings.NewReader(body)), userID))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	save(w, authed(httptest.NewRequest(http.MethodPost, "/api/profile", strings.NewReader(body)), userID))
	if w.Code != http.StatusConflict {
		t.Errorf("second POST expected 409, got %d", w.Code)
	}

	update := strings.Replace(body, `"monthly_income":4000`, `"monthly_income":5000`, 1)
	w = httptest.NewRecorder()
	save(w, authed(httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(update)), userID))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var p models.Profile
	jsonBody(t, w, &p)
	if p.MonthlyIncome != 5000 || p.UserID != userID {
		t.Errorf("unexpected profile %+v", p)
	}
	if len(cache.invalidated) != 4 {
		t.Errorf("cache invalidated %d times, want 4", len(cache.invalidated))
	}

	w = httptest.NewRecorder()
	save(w, authed(httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(`{"income_type":"weekly"}`)), userID))
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid profile expected 400, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	get(w, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated expected 401, got %d", w.Code)
	}
}

func TestImportAndListTransactions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	userID := newUser(t, store, "bob")
	_, err := store.CreateTransactionRule(ctx, &models.TransactionRule{
		UserID:     userID,
		Name:       "coffee",
		Conditions: json.RawMessage(`{"field":"description","op":"contains","value":"coffee"}`),
		Category:   "food",
	})
	if err != nil {
		t.Fatal(err)
	}

	body := `{"transactions":[
		{"amount":-4.5,"description":"Corner Coffee","date":"2025-03-01T09:00:00Z"},
		{"amount":-60,"description":"Groceries","category":"food"},
		{"amount":-12,"description":"Cinema"}
	]}`
	w := httptest.NewRecorder()
	ImportTransactions(store)(w, authed(httptest.NewRequest(http.MethodPost, "/api/transactions/import", strings.NewReader(body)), userID))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var result map[string]int
	jsonBody(t, w, &result)
	if result["imported"] != 3 || result["categorized"] != 1 {
		t.Errorf("unexpected result %v", result)
	}

	w = httptest.NewRecorder()
	GetTransactions(store)(w, authed(httptest.NewRequest(http.MethodGet, "/api/transactions?category=food&source=uploaded", nil), userID))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var txns []models.Transaction
	jsonBody(t, w, &txns)
	if len(txns) != 2 {
		t.Errorf("got %d food transactions, want 2", len(txns))
	}

	w = httptest.NewRecorder()
	GetTransactions(store)(w, authed(httptest.NewRequest(http.MethodGet, "/api/transactions?category=uncategorized", nil), userID))
	jsonBody(t, w, &txns)
	if len(txns) != 1 || txns[0].Description != "Cinema" {
		t.Errorf("uncategorized = %+v", txns)
	}

	for _, q := range []string{"?limit=0", "?limit=abc", "?source=bank"} {
		w = httptest.NewRecorder()
		GetTransactions(store)(w, authed(httptest.NewRequest(http.MethodGet, "/api/transactions"+q, nil), userID))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s expected 400, got %d", q, w.Code)
		}
	}

	for _, b := range []string{`{"transactions":[]}`, `{invalid-json}`, `{"transactions":[{"amount":1,"category":"` + strings.Repeat("c", 101) + `"}]}`} {
		w = httptest.NewRecorder()
		ImportTransactions(store)(w, authed(httptest.NewRequest(http.MethodPost, "/api/transactions/import", strings.NewReader(b)), userID))
		if w.Code != http.StatusBadRequest {
			t.Errorf("import %s expected 400, got %d", b, w.Code)
		}
	}
}

func TestAnalyticsHandlers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	userID := newUser(t, store, "carol")
	now := time.Now().UTC()
	err := store.ImportTransactions(ctx, []models.Transaction{
		{ID: "a", UserID: userID, Amount: -30, Category: "food", Source: models.SourceUploaded, Date: now.AddDate(0, 0, -1), CreatedAt: now},
		{ID: "b", UserID: userID, Amount: -90, Category: "rent", Source: models.SourceUploaded, Date: now.AddDate(0, 0, -2), CreatedAt: now},
		{ID: "c", UserID: userID, Amount: -500, Category: "travel", Source: models.SourceUploaded, Date: now.AddDate(0, 0, -60), CreatedAt: now},
	})
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	GetSpendingSummary(store)(w, authed(httptest.NewRequest(http.MethodGet, "/api/analytics/summary?days=30", nil), userID))
	var summary struct {
		TotalSpent       float64 `json:"total_spent"`
		DailyAverage     float64 `json:"daily_average"`
		TransactionCount int     `json:"transaction_count"`
		TopCategory      string  `json:"top_category"`
	}
	jsonBody(t, w, &summary)
	if summary.TotalSpent != 120 || summary.DailyAverage != 4 || summary.TransactionCount != 2 || summary.TopCategory != "rent" {
		t.Errorf("unexpected summary %+v", summary)
	}

	w = httptest.NewRecorder()
	GetCategoryBreakdown(store)(w, authed(httptest.NewRequest(http.MethodGet, "/api/analytics/categories?days=90", nil), userID))
	var cats []map[string]interface{}
	jsonBody(t, w, &cats)
	if len(cats) != 3 || cats[0]["category"] != "travel" {
		t.Errorf("unexpected categories %v", cats)
	}

	w = httptest.NewRecorder()
	GetSpendingTrends(store)(w, authed(httptest.NewRequest(http.MethodGet, "/api/analytics/trends?period=monthly&days=90", nil), userID))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	for _, target := range []string{"/api/analytics/trends?period=yearly", "/api/analytics/summary?days=0", "/api/analytics/summary?days=999"} {
		w = httptest.NewRecorder()
		handler := GetSpendingSummary(store)
		if strings.Contains(target, "trends") {
			handler = GetSpendingTrends(store)
		}
		handler(w, authed(httptest.NewRequest(http.MethodGet, target, nil), userID))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s expected 400, got %d", target, w.Code)
		}
	}
}

func TestTransactionRuleHandlers(t *testing.T) {
	store := newTestStore(t)
	userID := newUser(t, store, "dave")
	other := newUser(t, store, "erin")

	bodies := []struct {
		body string
		want int
	}{
		{`{"name":"coffee","conditions":{"field":"description","op":"contains","value":"coffee"},"category":"food"}`, http.StatusCreated},
		{`{"name":"bad","conditions":{"field":"merchant","op":"contains","value":"x"},"category":"food"}`, http.StatusBadRequest},
		{`{"name":"","conditions":{"field":"amount","op":"gt","value":1},"category":"food"}`, http.StatusBadRequest},
	}
	var created models.TransactionRule
	for _, b := range bodies {
		w := httptest.NewRecorder()
		CreateTransactionRule(store)(w, authed(httptest.NewRequest(http.MethodPost, "/api/transaction-rules", strings.NewReader(b.body)), userID))
		if w.Code != b.want {
			t.Errorf("expected %d, got %d (%s)", b.want, w.Code, w.Body.String())
		}
		if w.Code == http.StatusCreated {
			jsonBody(t, w, &created)
		}
	}

	w := httptest.NewRecorder()
	GetAllTransactionRules(store)(w, authed(httptest.NewRequest(http.MethodGet, "/api/transaction-rules", nil), userID))
	var list []models.TransactionRule
	jsonBody(t, w, &list)
	if len(list) != 1 || list[0].Category != "food" {
		t.Errorf("unexpected rules %+v", list)
	}

	id := fmt.Sprint(created.ID)
	updateAs := func(userID int64, id, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := withParam(httptest.NewRequest(http.MethodPut, "/api/transaction-rules/"+id, strings.NewReader(body)), "rule_id", id)
		UpdateTransactionRule(store)(w, authed(req, userID))
		return w
	}
	renamed := `{"name":"cafes","conditions":{"field":"description","op":"contains","value":"cafe"},"category":"dining"}`
	if w := updateAs(other, id, renamed); w.Code != http.StatusNotFound {
		t.Errorf("updating another user's rule expected 404, got %d", w.Code)
	}
	if w := updateAs(userID, id, `{"name":"cafes","conditions":{"field":"merchant","op":"contains","value":"x"},"category":"dining"}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid conditions expected 400, got %d", w.Code)
	}
	if w := updateAs(userID, "abc", renamed); w.Code != http.StatusBadRequest {
		t.Errorf("bad id expected 400, got %d", w.Code)
	}
	w = updateAs(userID, id, renamed)
	if w.Code != http.StatusOK {
		t.Fatalf("update expected 200, got %d %s", w.Code, w.Body.String())
	}
	var updated models.TransactionRule
	jsonBody(t, w, &updated)
	if updated.ID != created.ID || updated.Name != "cafes" || updated.Category != "dining" {
		t.Errorf("unexpected updated rule %+v", updated)
	}
	w = httptest.NewRecorder()
	GetAllTransactionRules(store)(w, authed(httptest.NewRequest(http.MethodGet, "/api/transaction-rules", nil), userID))
	list = nil
	jsonBody(t, w, &list)
	if len(list) != 1 || list[0].Category != "dining" {
		t.Errorf("rules after update %+v", list)
	}

	deleteAs := func(userID int64, id string) int {
		w := httptest.NewRecorder()
		req := withParam(httptest.NewRequest(http.MethodDelete, "/api/transaction-rules/"+id, nil), "rule_id", id)
		DeleteTransactionRule(store)(w, authed(req, userID))
		return w.Code
	}
	if code := deleteAs(other, id); code != http.StatusNotFound {
		t.Errorf("deleting another user's rule expected 404, got %d", code)
	}
	if code := deleteAs(userID, "abc"); code != http.StatusBadRequest {
		t.Errorf("bad id expected 400, got %d", code)
	}
	if code := deleteAs(userID, id); code != http.StatusOK {
		t.Errorf("delete expected 200, got %d", code)
	}
}

// mockCouncil returns err from every call.
type mockCouncil struct {
	err       error
	lastQuery workflow.SubmitQueryRequest
	appeal    workflow.SubmitAppealRequest
}

func (m *mockCouncil) SubmitQuery(_ context.Context, req workflow.SubmitQueryRequest) (workflow.SubmitQueryResult, error) {
	m.lastQuery = req
	return workflow.SubmitQueryResult{ConversationID: "c1", Verdict: models.VerdictApproved}, m.err
}

func (m *mockCouncil) SubmitAppeal(_ context.Context, req workflow.SubmitAppealRequest) (workflow.SubmitAppealResult, error) {
	m.appeal = req
	return workflow.SubmitAppealResult{ConversationID: req.ConversationID, AppealRound: req.AppealRound}, m.err
}

func (m *mockCouncil) Buy(context.Context, string, int64) (workflow.BuyResult, error) {
	return workflow.BuyResult{}, m.err
}

func (m *mockCouncil) Save(context.Context, string, int64) error { return m.err }

func (m *mockCouncil) GetConversation(_ context.Context, id string, _ int64) (workflow.ConversationDetail, error) {
	return workflow.ConversationDetail{Conversation: models.Conversation{ID: id}}, m.err
}

func (m *mockCouncil) ListConversations(context.Context, int64) ([]models.Conversation, error) {
	return nil, m.err
}

func (m *mockCouncil) ListAppealRounds(context.Context, string, int64) ([]models.AppealRound, error) {
	return nil, m.err
}

func TestCouncilErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusCreated},
		{workflow.ErrProfileNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: amount -1", workflow.ErrInvalidAmount), http.StatusBadRequest},
		{workflow.ErrEmptyQuery, http.StatusBadRequest},
		{fmt.Errorf("%w: round 2", workflow.ErrConcurrentAppealConflict), http.StatusConflict},
		{workflow.ErrAppealNotAllowed, http.StatusConflict},
		{fmt.Errorf("%w: disk full", workflow.ErrPersistenceFailure), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			council := &mockCouncil{err: tt.err}
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/council/query", strings.NewReader(`{"query":"tv","amount":300}`))
			SubmitQuery(council)(w, authed(req, 7))
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
			if council.lastQuery.UserID != 7 || *council.lastQuery.Amount != 300 {
				t.Errorf("unexpected request %+v", council.lastQuery)
			}
			if tt.err != nil && strings.Contains(w.Body.String(), "disk full") {
				t.Errorf("internal detail leaked: %s", w.Body.String())
			}
		})
	}
}

func TestCouncilAppealHandler(t *testing.T) {
	council := &mockCouncil{}
	body := `{"original_query":"tv","amount":300,"justification":"I got a bonus","appeal_round":2}`
	req := withParam(httptest.NewRequest(http.MethodPost, "/api/council/conversations/c9/appeal", bytes.NewBufferString(body)), "conversation_id", "c9")
	w := httptest.NewRecorder()
	SubmitAppeal(council)(w, authed(req, 7))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if council.appeal.ConversationID != "c9" || council.appeal.AppealRound != 2 || council.appeal.Justification != "I got a bonus" {
		t.Errorf("unexpected appeal request %+v", council.appeal)
	}

	req = withParam(httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"justification":"x","appeal_round":-1}`)), "conversation_id", "c9")
	w = httptest.NewRecorder()
	SubmitAppeal(council)(w, authed(req, 7))
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative round expected 400, got %d", w.Code)
	}
}

func TestAdminAndHealth(t *testing.T) {
	cache := &fakeCache{}
	w := httptest.NewRecorder()
	ClearCache(cache)(w, httptest.NewRequest(http.MethodPost, "/api/admin/cache/clear", nil))
	if w.Code != http.StatusOK || cache.cleared != 1 {
		t.Errorf("ClearCache: %d, cleared %d", w.Code, cache.cleared)
	}

	store := newTestStore(t)
	w = httptest.NewRecorder()
	Health(store)(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health expected 200, got %d", w.Code)
	}
	_ = store.Close()
	w = httptest.NewRecorder()
	Health(store)(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("closed store expected 503, got %d", w.Code)
	}
}

func TestUserHandlers(t *testing.T) {
	store := newTestStore(t)
	w := httptest.NewRecorder()
	Register(store, testSecret)(w, httptest.NewRequest(http.MethodPost, "/api/register",
		strings.NewReader(`{"username":"frank","email":"frank@example.com","password":"Secr3t!pw"}`)))
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d", w.Code)
	}
	user, err := store.GetUserByLogin(context.Background(), "frank")
	if err != nil {
		t.Fatal(err)
	}

	w = httptest.NewRecorder()
	GetCurrentUser(store)(w, authed(httptest.NewRequest(http.MethodGet, "/api/user", nil), user.ID))
	if w.Code != http.StatusOK || strings.Contains(w.Body.String(), "password") {
		t.Fatalf("GetCurrentUser: %d %s", w.Code, w.Body.String())
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"wrong current", `{"current_password":"nope","new_password":"N3w!passwd"}`, http.StatusUnauthorized},
		{"weak new", `{"current_password":"Secr3t!pw","new_password":"short"}`, http.StatusBadRequest},
		{"ok", `{"current_password":"Secr3t!pw","new_password":"N3w!passwd"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ChangePassword(store)(w, authed(httptest.NewRequest(http.MethodPut, "/api/user/password", strings.NewReader(tt.body)), user.ID))
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}

	w = httptest.NewRecorder()
	Login(store, testSecret)(w, httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"frank","password":"N3w!passwd"}`)))
	if w.Code != http.StatusOK {
		t.Errorf("login with new password: %d", w.Code)
	}
}
