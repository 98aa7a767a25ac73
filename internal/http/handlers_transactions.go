package http

import (
	"net/http"
	"strings"

	"budgettracker/internal/core"
)

const txNotFound = "Transaction not found"

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, sess core.Session) {
	txs, err := s.deps.Transactions.List(r.Context(), sess.UserID)
	if err != nil {
		s.writeError(w, r, err, txNotFound)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	NewJSONResponse().Field("transactions", txs).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, sess core.Session) {
	var tx core.Transaction
	if err := DecodeJSON(w, r, &tx); err != nil {
		s.writeError(w, r, err, txNotFound)
		return
	}
	tx.Notes = sanitizeInput(tx.Notes)

	created, err := s.deps.Transactions.Create(r.Context(), sess.UserID, tx)
	if err != nil {
		s.writeError(w, r, err, txNotFound)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Field("transaction", created).
		Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, sess core.Session) {
	id := strings.TrimSpace(r.PathValue("id"))
	var tx core.Transaction
	if err := DecodeJSON(w, r, &tx); err != nil {
		s.writeError(w, r, err, txNotFound)
		return
	}
	tx.Notes = sanitizeInput(tx.Notes)

	updated, err := s.deps.Transactions.Update(r.Context(), sess.UserID, id, tx)
	if err != nil {
		s.writeError(w, r, err, txNotFound)
		return
	}
	NewJSONResponse().Field("transaction", updated).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, sess core.Session) {
	id := strings.TrimSpace(r.PathValue("id"))
	if err := s.deps.Transactions.Delete(r.Context(), sess.UserID, id); err != nil {
		s.writeError(w, r, err, txNotFound)
		return
	}
	NewJSONResponse().Message("Transaction deleted").Write(w)
}

func (s *Server) handleClearTransactions(w http.ResponseWriter, r *http.Request, sess core.Session) {
	cleared, err := s.deps.Transactions.Clear(r.Context(), sess.UserID)
	if err != nil {
		s.writeError(w, r, err, txNotFound)
		return
	}
	if !cleared {
		NewJSONResponse().Message("No transactions to clear").Write(w)
		return
	}
	NewJSONResponse().Message("All transactions cleared").Write(w)
}
