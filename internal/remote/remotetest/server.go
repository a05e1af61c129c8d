// Package remotetest provides an in-memory invoicing backend for tests.
package remotetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/cleared-dev/invoicer/internal/model"
)

// Account is a user known to the fake backend.
type Account struct {
	Password string
	User     model.User
}

type failure struct {
	status  int
	message string
}

// Server is an httptest server speaking the invoicing REST contract.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]Account
	access   map[string]string // access token -> username
	refresh  map[string]string // refresh token -> username
	invoices map[int64]model.Invoice
	nextID   int64
	seq      int
	fail     map[string]failure
	calls    []string
}

// NewServer starts a fake backend with the given accounts, keyed by
// username. It is closed when the test ends.
func NewServer(t interface{ Cleanup(func()) }, accounts map[string]Account) *Server {
	s := &Server{
		accounts: accounts,
		access:   make(map[string]string),
		refresh:  make(map[string]string),
		invoices: make(map[int64]model.Invoice),
		fail:     make(map[string]failure),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/signin", s.signIn)
	mux.HandleFunc("POST /api/auth/refreshtoken", s.refreshToken)
	mux.HandleFunc("POST /api/invoices", s.authed(s.createInvoice))
	mux.HandleFunc("GET /api/invoices/{id}", s.authed(s.getInvoice))
	mux.HandleFunc("PUT /api/invoices/{id}", s.authed(s.updateInvoice))
	mux.HandleFunc("PUT /api/invoices/{id}/status", s.authed(s.updateStatus))
	mux.HandleFunc("DELETE /api/invoices/{id}", s.authed(s.deleteInvoice))

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)
	return s
}

// Fail makes the next request matching "METHOD /path" fail with status and
// a JSON message body. An empty message sends an empty body.
func (s *Server) Fail(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[route] = failure{status: status, message: message}
}

// ExpireAccess invalidates every issued access token; refresh tokens stay
// valid.
func (s *Server) ExpireAccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = make(map[string]string)
}

// Calls returns the "METHOD /path" of every request received.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Count returns how many received requests match route.
func (s *Server) Count(route string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == route {
			n++
		}
	}
	return n
}

// Invoice returns the stored invoice.
func (s *Server) Invoice(invoiceID int64) (model.Invoice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[invoiceID]
	return inv, ok
}

// Put stores an invoice directly, assigning an id when it has none.
func (s *Server) Put(inv model.Invoice) model.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID == 0 {
		s.nextID++
		inv.ID = s.nextID
	} else if inv.ID > s.nextID {
		s.nextID = inv.ID
	}
	if inv.Status == "" {
		inv.Status = model.StatusDraft
	}
	s.invoices[inv.ID] = inv
	return inv
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.calls = append(s.calls, route)
		f, failing := s.fail[route]
		delete(s.fail, route)
		s.mu.Unlock()

		if failing {
			w.WriteHeader(f.status)
			if f.message != "" {
				_ = json.NewEncoder(w).Encode(map[string]string{"message": f.message})
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		_, ok := s.access[token]
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *Server) issue(username string) (string, string) {
	s.seq++
	access := fmt.Sprintf("access-%d", s.seq)
	refresh := fmt.Sprintf("refresh-%d", s.seq)
	s.access[access] = username
	s.refresh[refresh] = username
	return access, refresh
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[req.Username]
	if !ok || acct.Password != req.Password {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return
	}
	access, refresh := s.issue(req.Username)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"id":           acct.User.ID,
		"username":     acct.User.Username,
		"email":        acct.User.Email,
		"roles":        acct.User.Roles,
		"accessToken":  access,
		"refreshToken": refresh,
	})
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}

	s.mu.Lock()
	username, ok := s.refresh[req.RefreshToken]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "Refresh token is not in database!"})
		return
	}
	delete(s.refresh, req.RefreshToken)
	access, refresh := s.issue(username)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"accessToken": access, "refreshToken": refresh})
}

func (s *Server) createInvoice(w http.ResponseWriter, r *http.Request) {
	var inv model.Invoice
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}
	inv.ID = 0
	inv.Status = model.StatusDraft
	inv = s.Put(inv)
	writeJSON(w, http.StatusCreated, map[string]any{"id": inv.ID, "status": inv.Status})
}

func (s *Server) getInvoice(w http.ResponseWriter, r *http.Request) {
	inv, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) updateInvoice(w http.ResponseWriter, r *http.Request) {
	current, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var inv model.Invoice
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}
	inv.ID = current.ID
	inv.Status = current.Status
	inv.CreatedBy = current.CreatedBy
	s.Put(inv)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Invoice updated successfully"})
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	inv, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req struct {
		Status model.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid status"})
		return
	}
	inv.Status = req.Status
	s.Put(inv)
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	inv, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.invoices, inv.ID)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Invoice deleted successfully"})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (model.Invoice, bool) {
	invoiceID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid invoice id"})
		return model.Invoice{}, false
	}
	inv, ok := s.Invoice(invoiceID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": fmt.Sprintf("Invoice %d not found", invoiceID)})
		return model.Invoice{}, false
	}
	return inv, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
