package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
	"github.com/angelmondragon/invoice-ledger/pkg/types"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"hello": "world"})

	if got := w.Code; got != http.StatusOK {
		t.Fatalf("expected status 200 but got %d", got)
	}

	var body types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode success envelope: %v", err)
	}
	if body.Data.(map[string]any)["hello"] != "world" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteRawDataIsByteStable(t *testing.T) {
	raw := json.RawMessage(`{"paymentId":"p-1","amount":"100.00"}`)

	first := httptest.NewRecorder()
	WriteRawData(first, http.StatusCreated, raw, false)
	replay := httptest.NewRecorder()
	WriteRawData(replay, http.StatusCreated, raw, true)

	var firstBody, replayBody types.RawSuccessEnvelope
	if err := json.Unmarshal(first.Body.Bytes(), &firstBody); err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if err := json.Unmarshal(replay.Body.Bytes(), &replayBody); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if string(firstBody.Data) != string(raw) || string(replayBody.Data) != string(raw) {
		t.Fatalf("data members differ:\n%s\n%s", firstBody.Data, replayBody.Data)
	}
	if firstBody.Meta != nil {
		t.Fatalf("first response must not carry meta, got %v", firstBody.Meta)
	}
	if replayBody.Meta["replayed"] != true {
		t.Fatalf("replay must carry replayed meta, got %v", replayBody.Meta)
	}
	if first.Header().Get(HeaderIdempotentReplay) != "" {
		t.Fatalf("first response must not carry the replay marker")
	}
	if replay.Header().Get(HeaderIdempotentReplay) != "true" {
		t.Fatalf("replay must carry the replay marker")
	}
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "demo"})
	WriteError(context.Background(), logger.Nop(), w, err)

	if got := w.Code; got != http.StatusBadRequest {
		t.Fatalf("expected status 400 but got %d", got)
	}

	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
	if body.Error.Message != "bad input" {
		t.Fatalf("unexpected message %q", body.Error.Message)
	}
	if body.Error.Details == nil {
		t.Fatalf("expected details in public payload")
	}
}

func TestWriteErrorLedgerCodes(t *testing.T) {
	tests := []struct {
		code   pkgerrors.Code
		status int
	}{
		{pkgerrors.CodeConcurrentModification, http.StatusPreconditionFailed},
		{pkgerrors.CodeInvoiceLocked, http.StatusLocked},
		{pkgerrors.CodeNumberExhausted, http.StatusConflict},
		{pkgerrors.CodeIdempotency, http.StatusConflict},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		WriteError(context.Background(), nil, w, pkgerrors.New(tt.code, "x"))
		if w.Code != tt.status {
			t.Fatalf("code %s expected %d got %d", tt.code, tt.status, w.Code)
		}
	}
}

func TestWriteErrorDefaultsToInternalForUntrustedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), logger.Nop(), w, errors.New("boom"))

	if got := w.Code; got != http.StatusInternalServerError {
		t.Fatalf("expected status 500 but got %d", got)
	}

	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if body.Error.Message != "internal server error" {
		t.Fatalf("internal errors must not leak messages, got %q", body.Error.Message)
	}
}
