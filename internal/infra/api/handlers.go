package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"coolpay-gateway/internal/domain"
	"coolpay-gateway/internal/domain/model"
	"coolpay-gateway/internal/infra/logging"
	"coolpay-gateway/internal/infra/payment"
	red "coolpay-gateway/internal/infra/redis"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const maxCallbackBody = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type actionRequest struct {
	Action string `json:"action"`
	Amount string `json:"amount"`
}

type refundRequest struct {
	Amount string `json:"amount"`
}

type changeTransactionRequest struct {
	TransactionID string `json:"transaction_id"`
}

type transactionResponse struct {
	TransactionID string `json:"transaction_id"`
	State         string `json:"state"`
	Type          string `json:"type"`
	Balance       string `json:"balance"`
	Currency      string `json:"currency"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// statusFor maps domain errors onto HTTP codes.
func statusFor(err error) int {
	var apiErr *domain.APIError
	var declined *domain.RecurringNotAcceptedError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownAction),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrEmptyTransactionID):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrActionNotAllowed),
		errors.Is(err, domain.ErrNotCaptured),
		errors.Is(err, domain.ErrRefundNotAllowed),
		errors.Is(err, domain.ErrLockNotAcquired):
		return http.StatusConflict
	case errors.As(err, &declined):
		return http.StatusPaymentRequired
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, code, err.Error())
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return domain.ErrInvalidArgument
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidArgument
	}
	return nil
}

func toResponse(tx *model.Transaction) transactionResponse {
	resp := transactionResponse{
		TransactionID: tx.IDString(),
		State:         string(tx.State),
		Currency:      tx.Currency,
	}
	resp.Type, _ = tx.TypeLabel()
	resp.Balance, _ = tx.FormattedBalance()
	return resp
}

// handleCallback always answers 200 so the gateway does not retry rejected bodies.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
	if err != nil {
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("read callback body")
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	// a gateway that hangs up must not abort a charge that is being recorded
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.httpCfg.RequestTimeout)
	defer cancel()

	sig := r.Header.Get(payment.SignatureHeader)
	if err := s.callbackUC.Handle(ctx, body, sig, r.URL.Query()); err != nil {
		logging.With(ctx, s.log).Warn().Err(err).Msg("callback not applied")
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if !s.auth.CheckAPIKey(r.Header.Get("X-Api-Key")) {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}
	tok, exp, err := s.auth.Mint("operator")
	if err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": tok, "expires_at": exp})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if err := s.txUC.Ping(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTransactionInfo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	info, err := s.txUC.TransactionInfo(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleAction runs POST /orders/{id}/actions. Without an amount, capture and
// split actions take the remaining balance while refund takes the captured
// balance; a remaining-balance refund of a fully captured payment would be zero.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req actionRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	req.Action = strings.TrimSpace(req.Action)

	if s.limiter != nil {
		ok, err := s.limiter.Allow(r.Context(), red.OrderActionKey(id, req.Action), s.adminCfg.ActionLimit, s.adminCfg.ActionWindow)
		if err != nil {
			// fail open, the state gate still protects the transaction
			logging.With(r.Context(), s.log).Warn().Err(err).Msg("rate limiter unavailable")
		} else if !ok {
			writeError(w, http.StatusTooManyRequests, "too many actions for this order")
			return
		}
	}

	tx, err := s.adminUC.Execute(r.Context(), id, req.Action, req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(tx))
}

func (s *Server) handlePaymentLink(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	link, err := s.txUC.PaymentLink(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req refundRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	amount := decimal.Zero
	if strings.TrimSpace(req.Amount) != "" {
		if amount, err = decimal.NewFromString(strings.TrimSpace(req.Amount)); err != nil || amount.IsNegative() {
			s.fail(w, r, domain.ErrInvalidArgument)
			return
		}
	}
	tx, err := s.txUC.ProcessRefund(r.Context(), id, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(tx))
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.orderCommand(w, r, s.txUC.CaptureOnComplete)
}

func (s *Server) handlePreOrder(w http.ResponseWriter, r *http.Request) {
	s.orderCommand(w, r, s.txUC.ProcessPreOrderPayment)
}

func (s *Server) handleRenewal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tx, err := s.recurringUC.ChargeRenewal(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if tx == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(tx))
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	s.orderCommand(w, r, s.txUC.CancelSubscription)
}

func (s *Server) handlePaymentMethodChanged(w http.ResponseWriter, r *http.Request) {
	s.orderCommand(w, r, s.txUC.PaymentMethodChanged)
}

func (s *Server) handleChangeTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req changeTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.txUC.ChangeSubscriptionTransactionID(r.Context(), id, strings.TrimSpace(req.TransactionID)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// orderCommand runs a use case that takes only the order id.
func (s *Server) orderCommand(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) error) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := fn(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
