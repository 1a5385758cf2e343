package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"kiptrack/internal/core"
)

// handleSummary reconciles the student's balance and returns the dashboard
// view.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Ledger.Reconcile(r.Context(), r.PathValue("id"))
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewJSONResponse().Data(toSummaryJSON(summary)).Write(w)
}

// handleListTransactions returns the student's transactions, newest first.
// The optional status filter matches PENDING, APPROVED or REJECTED.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	var status core.Status
	if v := strings.TrimSpace(r.URL.Query().Get("status")); v != "" {
		status = core.Status(strings.ToUpper(v))
		if !status.IsValid() {
			BadRequestError("unknown status " + strconv.Quote(v)).Write(w)
			return
		}
	}

	summary, err := s.deps.Ledger.Reconcile(r.Context(), r.PathValue("id"))
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}

	txs := summary.Transactions
	if status != "" {
		filtered := txs[:0:0]
		for _, tx := range txs {
			if tx.Status == status {
				filtered = append(filtered, tx)
			}
		}
		txs = filtered
	}
	NewJSONResponse().Data(map[string]any{
		"student_id":   summary.Student.ID,
		"transactions": toTransactionsJSON(txs),
	}).Write(w)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	in, err := ParseNewTransaction(NewRequestBodyParser(r), r.PathValue("id"))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	tx, err := s.deps.Review.Submit(r.Context(), in)
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/students/"+tx.StudentID+"/transactions/"+tx.ID).
		Data(toTransactionJSON(tx)).
		Write(w)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	tx, err := s.deps.Review.Approve(r.Context(), r.PathValue("id"), r.PathValue("txid"))
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewJSONResponse().Data(toTransactionJSON(tx)).Write(w)
}

// handleDeny rejects the transaction. An explicit "amount" in the body is
// recorded as the violation instead of the transaction amount.
func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	amount, explicit, err := ParseDenyAmount(NewRequestBodyParser(r))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	studentID, txID := r.PathValue("id"), r.PathValue("txid")
	var tx core.Transaction
	if explicit {
		tx, err = s.deps.Review.DenyAmount(r.Context(), studentID, txID, amount)
	} else {
		tx, err = s.deps.Review.Deny(r.Context(), studentID, txID)
	}
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewJSONResponse().Data(toTransactionJSON(tx)).Write(w)
}

// handleAdvance applies a due semester promotion. The boundary is evaluated
// at the optional "at" date, defaulting to today in the configured zone.
func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	at, err := ParseAt(r.URL.Query(), s.now(), s.deps.Location)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	out, err := s.deps.Advancer.Advance(r.Context(), r.PathValue("id"), at)
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	if out.State == core.Applied {
		slog.InfoContext(r.Context(), "Promotion applied via API",
			"student_id", out.StudentID,
			"period", out.Period)
	}
	NewJSONResponse().Data(toOutcomeJSON(out)).Write(w)
}

func handleTerbilang(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("n"))
	n, err := parseWhole(raw)
	if err != nil {
		BadRequestError("n: " + err.Error()).Write(w)
		return
	}
	NewJSONResponse().Data(map[string]any{
		"n":         n,
		"formatted": core.FormatRupiah(n),
		"terbilang": core.Terbilang(n),
	}).Write(w)
}
