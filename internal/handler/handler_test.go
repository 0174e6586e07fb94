package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"banking-ledger/internal/auth"
	"banking-ledger/internal/domain"
	"banking-ledger/internal/oracle"
	"banking-ledger/internal/repository/memory"
	"banking-ledger/internal/service"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *Error          `json:"error"`
}

type HandlerTestSuite struct {
	suite.Suite
	store          *memory.Store
	accountService *service.AccountService
	router         *mux.Router
}

func (s *HandlerTestSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = memory.NewStore(logger)
	tokens := auth.NewTokenManager("test-secret", "banking-ledger", time.Hour)

	s.accountService = service.NewAccountService(s.store, tokens, logger, decimal.NewFromInt(1000), "USD")
	ledgerService := service.NewLedgerService(s.store, oracle.NewRuleFraudGate(decimal.NewFromInt(10000)), oracle.NewStaticRates(), logger, 0)
	adminService := service.NewAdminService(s.store, logger)

	s.router = mux.NewRouter()
	RegisterRoutes(s.router, Handlers{
		Auth:     NewAuthHandler(s.accountService),
		Accounts: NewAccountHandler(s.accountService),
		Ledger:   NewLedgerHandler(ledgerService),
		Admin:    NewAdminHandler(adminService),
		Resolver: s.accountService,
	})
}

func (s *HandlerTestSuite) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (s *HandlerTestSuite) register(name, email string) *domain.Account {
	rec, env := s.do("POST", "/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "correct-horse",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var account domain.Account
	s.Require().NoError(json.Unmarshal(env.Data, &account))
	return &account
}

func (s *HandlerTestSuite) login(email string) string {
	rec, env := s.do("POST", "/auth/login", "", map[string]string{
		"email": email, "password": "correct-horse",
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var result service.LoginResult
	s.Require().NoError(json.Unmarshal(env.Data, &result))
	return result.Token
}

func (s *HandlerTestSuite) adminToken() string {
	_, err := s.accountService.EnsureAdmin(context.Background(), "admin@example.com", "correct-horse")
	s.Require().NoError(err)
	return s.login("admin@example.com")
}

func (s *HandlerTestSuite) balance(token string) decimal.Decimal {
	rec, env := s.do("GET", "/me", token, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var account domain.Account
	s.Require().NoError(json.Unmarshal(env.Data, &account))
	return account.Balance
}

func decodeResult(s *HandlerTestSuite, env envelope) service.OperationResult {
	var result service.OperationResult
	s.Require().NoError(json.Unmarshal(env.Data, &result))
	return result
}

func (s *HandlerTestSuite) TestRegisterAndLogin() {
	account := s.register("Alice", "Alice@Example.com")
	s.Equal("alice@example.com", account.Email)
	s.Len(account.AccountNumber, 10)
	s.True(account.Balance.Equal(decimal.NewFromInt(1000)))

	token := s.login("alice@example.com")
	s.True(s.balance(token).Equal(decimal.NewFromInt(1000)))

	rec, env := s.do("POST", "/auth/register", "", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": "correct-horse",
	})
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("duplicate_account", env.Error.Code)

	rec, env = s.do("POST", "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	})
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("invalid_credentials", env.Error.Code)
}

func (s *HandlerTestSuite) TestRegisterRejectsBadInput() {
	rec, env := s.do("POST", "/auth/register", "", map[string]string{
		"name": "A", "email": "not-an-email", "password": "short",
	})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("validation_error", env.Error.Code)

	req := httptest.NewRequest("POST", "/auth/register", bytes.NewBufferString("{"))
	recorder := httptest.NewRecorder()
	s.router.ServeHTTP(recorder, req)
	s.Equal(http.StatusBadRequest, recorder.Code)
}

func (s *HandlerTestSuite) TestProtectedRoutesRequireToken() {
	rec, env := s.do("GET", "/me", "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("unauthenticated", env.Error.Code)

	rec, env = s.do("POST", "/deposits", "garbage", map[string]string{"amount": "10"})
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("unauthenticated", env.Error.Code)
}

func (s *HandlerTestSuite) TestDepositAndWithdraw() {
	s.register("Alice", "alice@example.com")
	token := s.login("alice@example.com")

	rec, env := s.do("POST", "/deposits", token, map[string]string{"amount": "250.50"})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	result := decodeResult(s, env)
	s.Equal(domain.EntryStatusCompleted, result.Status)
	s.True(result.Balance.Equal(decimal.RequireFromString("1250.50")))

	rec, env = s.do("POST", "/withdrawals", token, map[string]string{"amount": "5000"})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Equal("insufficient_funds", env.Error.Code)

	rec, env = s.do("POST", "/deposits", token, map[string]string{"amount": "abc"})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("validation_error", env.Error.Code)

	rec, _ = s.do("POST", "/deposits", token, map[string]string{"amount": "-5"})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec, _ = s.do("POST", "/deposits", token, map[string]string{"amount": "1.001"})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec, env = s.do("POST", "/deposits", token, map[string]string{"amount": "1e300000000"})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("validation_error", env.Error.Code)

	rec, env = s.do("POST", "/deposits", token, map[string]string{"amount": "1" + strings.Repeat("0", 40)})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("validation_error", env.Error.Code)

	s.True(s.balance(token).Equal(decimal.RequireFromString("1250.50")))
}

func (s *HandlerTestSuite) TestIdempotentDepositReplays() {
	s.register("Alice", "alice@example.com")
	token := s.login("alice@example.com")
	key := uuid.NewString()

	rec, env := s.do("POST", "/deposits", token, map[string]string{"amount": "100", "idempotency_key": key})
	s.Require().Equal(http.StatusCreated, rec.Code)
	first := decodeResult(s, env)

	rec, env = s.do("POST", "/deposits", token, map[string]string{"amount": "100", "idempotency_key": key})
	s.Require().Equal(http.StatusOK, rec.Code)
	second := decodeResult(s, env)
	s.True(second.Replayed)
	s.Equal(first.EntryID, second.EntryID)

	s.True(s.balance(token).Equal(decimal.NewFromInt(1100)))

	rec, env = s.do("POST", "/deposits", token, map[string]string{"amount": "100", "idempotency_key": "nope"})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("validation_error", env.Error.Code)
}

func (s *HandlerTestSuite) TestTransfer() {
	s.register("Alice", "alice@example.com")
	bob := s.register("Bob", "bob@example.com")
	alice := s.login("alice@example.com")
	bobToken := s.login("bob@example.com")

	rec, env := s.do("POST", "/transfers", alice, map[string]string{
		"recipient_account_number": bob.AccountNumber,
		"amount":                   "200",
		"description":              "rent",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	s.True(decodeResult(s, env).Balance.Equal(decimal.NewFromInt(800)))
	s.True(s.balance(bobToken).Equal(decimal.NewFromInt(1200)))

	rec, env = s.do("POST", "/transfers", alice, map[string]string{
		"recipient_account_number": "0000000000",
		"amount":                   "10",
	})
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("account_not_found", env.Error.Code)

	rec, env = s.do("POST", "/transfers", bobToken, map[string]string{
		"recipient_account_number": bob.AccountNumber,
		"amount":                   "10",
	})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("self_transfer", env.Error.Code)
}

func (s *HandlerTestSuite) TestFlaggedTransferReportsEntry() {
	s.register("Alice", "alice@example.com")
	bob := s.register("Bob", "bob@example.com")
	alice := s.login("alice@example.com")

	rec, env := s.do("POST", "/transfers", alice, map[string]string{
		"recipient_account_number": bob.AccountNumber,
		"amount":                   "20000",
	})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Equal("fraud_flagged", env.Error.Code)
	s.NotEmpty(env.Error.EntryID)
	s.True(s.balance(alice).Equal(decimal.NewFromInt(1000)))
}

func (s *HandlerTestSuite) TestManualReviewRoundTrip() {
	s.register("Alice", "alice@example.com")
	alice := s.login("alice@example.com")
	admin := s.adminToken()

	rec, env := s.do("POST", "/deposits", alice, map[string]string{
		"amount": "300", "mode": "manual_review", "proof_reference": "receipt-42",
	})
	s.Require().Equal(http.StatusAccepted, rec.Code, rec.Body.String())
	pending := decodeResult(s, env)
	s.Equal(domain.EntryStatusPending, pending.Status)

	rec, env = s.do("GET", "/admin/pending?kind=deposit", admin, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var queue []domain.PendingEntry
	s.Require().NoError(json.Unmarshal(env.Data, &queue))
	s.Require().Len(queue, 1)
	s.Equal(pending.EntryID, queue[0].ID)

	path := "/admin/entries/" + pending.EntryID.String() + "/confirm"
	rec, env = s.do("POST", path, alice, nil)
	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal("unauthorized", env.Error.Code)

	rec, _ = s.do("POST", path, admin, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.True(s.balance(alice).Equal(decimal.NewFromInt(1300)))

	rec, env = s.do("POST", path, admin, nil)
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("invalid_entry_state", env.Error.Code)
}

func (s *HandlerTestSuite) TestRejectPendingWithdrawal() {
	s.register("Alice", "alice@example.com")
	alice := s.login("alice@example.com")
	admin := s.adminToken()

	rec, env := s.do("POST", "/withdrawals", alice, map[string]string{
		"amount": "100", "mode": "manual_review", "proof_reference": "atm-slip",
	})
	s.Require().Equal(http.StatusAccepted, rec.Code)
	pending := decodeResult(s, env)

	rec, env = s.do("POST", "/admin/entries/"+pending.EntryID.String()+"/reject", admin, map[string]string{"reason": "unreadable slip"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(domain.EntryStatusFailed, decodeResult(s, env).Status)
	s.True(s.balance(alice).Equal(decimal.NewFromInt(1000)))

	rec, env = s.do("POST", "/admin/entries/not-a-uuid/confirm", admin, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("validation_error", env.Error.Code)
}

func (s *HandlerTestSuite) TestQuoteAndConvert() {
	s.register("Alice", "alice@example.com")
	alice := s.login("alice@example.com")

	rec, env := s.do("GET", "/conversions/quote?to=eur", alice, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var quote service.Quote
	s.Require().NoError(json.Unmarshal(env.Data, &quote))
	s.Equal("EUR", quote.To)
	s.True(quote.ConvertedBalance.Equal(decimal.NewFromInt(920)))

	rec, env = s.do("POST", "/conversions", alice, map[string]string{"target_currency": "EUR"})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	result := decodeResult(s, env)
	s.Equal("EUR", result.Currency)
	s.True(result.Balance.Equal(decimal.NewFromInt(920)))

	rec, env = s.do("POST", "/conversions", alice, map[string]string{"target_currency": "EUR"})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("no_op_conversion", env.Error.Code)
}

func (s *HandlerTestSuite) TestProfileAndHistory() {
	s.register("Alice", "alice@example.com")
	alice := s.login("alice@example.com")

	for i := 0; i < 12; i++ {
		rec, _ := s.do("POST", "/deposits", alice, map[string]string{"amount": "10"})
		s.Require().Equal(http.StatusCreated, rec.Code)
	}

	rec, env := s.do("GET", "/me/entries?page=2", alice, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var page service.EntryPage
	s.Require().NoError(json.Unmarshal(env.Data, &page))
	s.Equal(2, page.Page)
	s.Equal(2, page.TotalPages)
	s.Equal(12, page.Total)
	s.Len(page.Entries, 2)

	rec, env = s.do("GET", "/me/entries?page=9223372036854775807", alice, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Require().NoError(json.Unmarshal(env.Data, &page))
	s.Empty(page.Entries)
	s.Equal(12, page.Total)

	rec, env = s.do("GET", "/me/entries/recent?limit=3", alice, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var recent []domain.LedgerEntry
	s.Require().NoError(json.Unmarshal(env.Data, &recent))
	s.Len(recent, 3)

	rec, env = s.do("GET", "/me/summary", alice, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var summary service.AccountSummary
	s.Require().NoError(json.Unmarshal(env.Data, &summary))
	s.True(summary.TotalIncome.Equal(decimal.NewFromInt(120)))
	s.True(summary.Balance.Equal(decimal.NewFromInt(1120)))

	rec, env = s.do("PUT", "/me", alice, map[string]string{"name": "Alice Liddell", "email": "liddell@example.com"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var account domain.Account
	s.Require().NoError(json.Unmarshal(env.Data, &account))
	s.Equal("Alice Liddell", account.DisplayName)
	s.Equal("liddell@example.com", account.Email)
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}
