//go:build !integration

package model

import (
	"errors"
	"testing"

	"coolpay-gateway/internal/domain"
)

func paymentWith(balance int64, ops ...Operation) *Transaction {
	return &Transaction{Type: "Payment", Accepted: true, Balance: balance, Operations: ops}
}

func TestIsActionAllowed_Payment(t *testing.T) {
	authorized := paymentWith(0, op(OperationAuthorize, 20000, 10000))
	partiallyCaptured := paymentWith(5000, op(OperationAuthorize, 20000, 10000), op(OperationCapture, 20000, 5000))
	fullyCaptured := paymentWith(10000, op(OperationAuthorize, 20000, 10000), op(OperationCapture, 20000, 10000))
	cancelled := paymentWith(0, op(OperationAuthorize, 20000, 10000), op(OperationCancel, 20000, 0))
	pending := paymentWith(0, op(OperationAuthorize, 20000, 10000), Operation{Type: OperationCapture, Pending: true})

	cases := []struct {
		name   string
		tx     *Transaction
		action Action
		want   bool
	}{
		{"refund after authorize", authorized, ActionRefund, false},
		{"refund after capture", fullyCaptured, ActionRefund, true},
		{"refund after cancel", cancelled, ActionRefund, false},
		{"refund while pending", pending, ActionRefund, false},
		{"cancel after authorize", authorized, ActionCancel, true},
		{"cancel after capture", fullyCaptured, ActionCancel, false},
		{"capture after authorize", authorized, ActionCapture, true},
		{"capture with remaining balance", partiallyCaptured, ActionCapture, true},
		{"capture when fully captured", fullyCaptured, ActionCapture, false},
		{"split capture after authorize", authorized, ActionSplitCapture, true},
		{"split finalize with remaining balance", partiallyCaptured, ActionSplitFinalize, true},
		{"split capture when fully captured", fullyCaptured, ActionSplitCapture, false},
		{"standard actions after authorize", authorized, ActionStandardActions, true},
		{"standard actions after capture", fullyCaptured, ActionStandardActions, false},
		{"recurring never on a payment", authorized, ActionRecurring, false},
		{"unknown action", authorized, Action("explode"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.tx.IsActionAllowed(tc.action)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("IsActionAllowed(%s) = %v, want %v", tc.action, got, tc.want)
			}
		})
	}
}

func TestIsActionAllowed_Subscription(t *testing.T) {
	sub := &Transaction{Type: "Subscription", Accepted: true, Operations: []Operation{op(OperationAuthorize, 20000, 0)}}

	for action, want := range map[Action]bool{
		ActionCancel:          true,
		ActionStandardActions: true,
		ActionRecurring:       true,
		ActionRefund:          false,
		ActionCapture:         false,
	} {
		got, err := sub.IsActionAllowed(action)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("subscription IsActionAllowed(%s) = %v, want %v", action, got, want)
		}
	}
}

func TestIsActionAllowed_CaptureThenRefund(t *testing.T) {
	tx := paymentWith(0, op(OperationAuthorize, 20000, 10000))

	ok, _ := tx.IsActionAllowed(ActionRefund)
	if ok {
		t.Fatal("refund must be rejected before any capture")
	}

	// capture(5000) declined by the gateway: still no successful capture
	tx.Operations = append(tx.Operations, op(OperationCapture, 40000, 5000))
	ok, _ = tx.IsActionAllowed(ActionRefund)
	if ok {
		t.Fatal("refund must be rejected after a failed capture")
	}

	tx.Operations = append(tx.Operations, op(OperationCapture, 20000, 5000))
	tx.Balance = 5000
	ok, _ = tx.IsActionAllowed(ActionRefund)
	if !ok {
		t.Fatal("refund must be allowed once a capture succeeded")
	}
}

func TestIsActionAllowed_Errors(t *testing.T) {
	var tx *Transaction
	if _, err := tx.IsActionAllowed(ActionCapture); !errors.Is(err, domain.ErrNotLoaded) {
		t.Errorf("expected ErrNotLoaded, got %v", err)
	}
	empty := &Transaction{}
	if _, err := empty.IsActionAllowed(ActionCapture); !errors.Is(err, domain.ErrMalformedOperation) {
		t.Errorf("expected ErrMalformedOperation, got %v", err)
	}
}

func TestParseAdminAction(t *testing.T) {
	for _, name := range []string{"capture", "captureAmount", "cancel", "refund", "split_capture", "split_finalize"} {
		a, err := ParseAdminAction(name)
		if err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
			continue
		}
		if a.Gate() == "" {
			t.Errorf("%s: expected a gate action", name)
		}
	}
	if AdminCaptureAmount.Gate() != ActionCapture {
		t.Errorf("captureAmount should be gated by capture, got %s", AdminCaptureAmount.Gate())
	}

	for _, bad := range []string{"", "delete", "get_transaction", "Capture"} {
		if _, err := ParseAdminAction(bad); !errors.Is(err, domain.ErrUnknownAction) {
			t.Errorf("%q: expected ErrUnknownAction, got %v", bad, err)
		}
	}
}
