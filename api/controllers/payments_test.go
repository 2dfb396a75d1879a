package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/invoice-ledger/api/responses"
	"github.com/angelmondragon/invoice-ledger/internal/payments"
	"github.com/angelmondragon/invoice-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
)

type stubPayments struct {
	applied  []payments.ApplyInput
	stored   map[string]json.RawMessage
	reversed []payments.ReverseInput
	err      error
}

func (s *stubPayments) Apply(_ context.Context, input payments.ApplyInput) (*payments.ApplyResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.stored == nil {
		s.stored = map[string]json.RawMessage{}
	}
	if raw, ok := s.stored[input.IdempotencyKey]; ok {
		return &payments.ApplyResult{Response: raw, Replayed: true}, nil
	}
	s.applied = append(s.applied, input)
	raw := json.RawMessage(`{"paymentId":"` + uuid.NewString() + `","amount":"` + input.Amount.StringFixed(2) + `"}`)
	s.stored[input.IdempotencyKey] = raw
	return &payments.ApplyResult{Response: raw}, nil
}

func (s *stubPayments) Reverse(_ context.Context, input payments.ReverseInput) (*payments.PaymentView, error) {
	s.reversed = append(s.reversed, input)
	now := time.Now()
	return &payments.PaymentView{PaymentID: input.PaymentID, Status: enums.PaymentStatusReversed, ReversedAt: &now}, nil
}

func (s *stubPayments) PurgeRecords(context.Context, time.Time, int) (int64, error) {
	return 0, nil
}

func paymentBody(customerID uuid.UUID, extra string) string {
	return `{"customerId":"` + customerID.String() + `","amount":"100.00","mode":"cash"` + extra + `}`
}

func TestApplyPaymentReplaysStoredBody(t *testing.T) {
	a := newActor()
	svc := &stubPayments{}
	customerID := uuid.New()

	req := a.request(http.MethodPost, "/api/v1/payments", paymentBody(customerID, ""))
	req.Header.Set("Idempotency-Key", "pay-abc")
	first := serve(ApplyPayment(svc, testLogger), req)
	requireStatus(t, first, http.StatusCreated)
	require.Empty(t, first.Header().Get(responses.HeaderIdempotentReplay))

	req = a.request(http.MethodPost, "/api/v1/payments", paymentBody(customerID, ""))
	req.Header.Set("Idempotency-Key", "pay-abc")
	replay := serve(ApplyPayment(svc, testLogger), req)
	requireStatus(t, replay, http.StatusOK)
	require.Equal(t, "true", replay.Header().Get(responses.HeaderIdempotentReplay))

	var firstBody, replayBody struct {
		Data json.RawMessage `json:"data"`
		Meta map[string]any  `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstBody))
	require.NoError(t, json.Unmarshal(replay.Body.Bytes(), &replayBody))
	require.JSONEq(t, string(firstBody.Data), string(replayBody.Data))
	require.Equal(t, true, replayBody.Meta["replayed"])
	require.Len(t, svc.applied, 1)

	input := svc.applied[0]
	require.Equal(t, a.owner, input.OwnerID)
	require.Equal(t, customerID, input.CustomerID)
	require.Equal(t, enums.PaymentModeCash, input.Mode)
	require.Nil(t, input.InvoiceID)
}

func TestApplyPaymentKeyFromBody(t *testing.T) {
	a := newActor()
	svc := &stubPayments{}
	invoiceID := uuid.New()

	req := a.request(http.MethodPost, "/api/v1/payments", paymentBody(uuid.New(), `,"idempotencyKey":"body-key","invoiceId":"`+invoiceID.String()+`","allowOverpayment":true`))
	resp := serve(ApplyPayment(svc, testLogger), req)
	requireStatus(t, resp, http.StatusCreated)
	require.Len(t, svc.applied, 1)
	require.Equal(t, "body-key", svc.applied[0].IdempotencyKey)
	require.Equal(t, invoiceID, *svc.applied[0].InvoiceID)
	require.True(t, svc.applied[0].AllowOverpayment)
}

func TestApplyPaymentHeaderKeyWins(t *testing.T) {
	a := newActor()
	svc := &stubPayments{}

	req := a.request(http.MethodPost, "/api/v1/payments", paymentBody(uuid.New(), `,"idempotencyKey":"body-key"`))
	req.Header.Set("Idempotency-Key", "header-key")
	resp := serve(ApplyPayment(svc, testLogger), req)
	requireStatus(t, resp, http.StatusCreated)
	require.Equal(t, "header-key", svc.applied[0].IdempotencyKey)
}

func TestApplyPaymentRequiresKey(t *testing.T) {
	a := newActor()
	svc := &stubPayments{}
	resp := serve(ApplyPayment(svc, testLogger), a.request(http.MethodPost, "/api/v1/payments", paymentBody(uuid.New(), "")))
	requireStatus(t, resp, http.StatusBadRequest)
	require.Empty(t, svc.applied)
}

func TestApplyPaymentRejectsUnknownMode(t *testing.T) {
	a := newActor()
	req := a.request(http.MethodPost, "/api/v1/payments", `{"customerId":"`+uuid.NewString()+`","amount":"1","mode":"bitcoin"}`)
	req.Header.Set("Idempotency-Key", "k")
	resp := serve(ApplyPayment(&stubPayments{}, testLogger), req)
	requireStatus(t, resp, http.StatusBadRequest)
}

func TestApplyPaymentRejectsSubCentAmount(t *testing.T) {
	a := newActor()
	svc := &stubPayments{}
	for _, amount := range []string{"10.005", "0", "-1.00"} {
		req := a.request(http.MethodPost, "/api/v1/payments", `{"customerId":"`+uuid.NewString()+`","amount":"`+amount+`","mode":"cash"}`)
		req.Header.Set("Idempotency-Key", "k-"+amount)
		resp := serve(ApplyPayment(svc, testLogger), req)
		requireStatus(t, resp, http.StatusBadRequest)
	}
	require.Empty(t, svc.applied)
}

func TestApplyPaymentKeyReuse(t *testing.T) {
	a := newActor()
	svc := &stubPayments{err: pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different parameters")}
	req := a.request(http.MethodPost, "/api/v1/payments", paymentBody(uuid.New(), ""))
	req.Header.Set("Idempotency-Key", "k")
	resp := serve(ApplyPayment(svc, testLogger), req)
	requireStatus(t, resp, http.StatusConflict)
	require.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, resp))
}

func TestReversePayment(t *testing.T) {
	a := newActor()
	svc := &stubPayments{}
	paymentID := uuid.New()

	req := addRouteParam(a.request(http.MethodPost, "/api/v1/payments/"+paymentID.String()+"/reverse", `{"reason":"bounced cheque"}`), "paymentId", paymentID.String())
	resp := serve(ReversePayment(svc, testLogger), req)
	requireStatus(t, resp, http.StatusOK)
	require.Len(t, svc.reversed, 1)
	require.Equal(t, "bounced cheque", svc.reversed[0].Reason)
	require.Equal(t, paymentID, svc.reversed[0].PaymentID)

	req = addRouteParam(a.request(http.MethodPost, "/api/v1/payments/"+paymentID.String()+"/reverse", `{}`), "paymentId", paymentID.String())
	resp = serve(ReversePayment(svc, testLogger), req)
	requireStatus(t, resp, http.StatusBadRequest)
}
