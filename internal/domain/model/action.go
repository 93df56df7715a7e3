package model

import "coolpay-gateway/internal/domain"

// Action is a gateway operation gated by the current transaction type.
type Action string

const (
	ActionCapture         Action = "capture"
	ActionCancel          Action = "cancel"
	ActionRefund          Action = "refund"
	ActionRecurring       Action = "recurring"
	ActionSplitCapture    Action = "split_capture"
	ActionSplitFinalize   Action = "split_finalize"
	ActionStandardActions Action = "standard_actions" // capture/cancel visibility
)

var paymentAllowedStates = map[Action][]OperationType{
	ActionCancel:          {OperationAuthorize},
	ActionStandardActions: {OperationAuthorize},
	ActionCapture:         {OperationAuthorize, OperationRecurring},
	ActionSplitCapture:    {OperationAuthorize, OperationCapture},
	ActionSplitFinalize:   {OperationAuthorize, OperationCapture},
}

var subscriptionAllowedStates = map[Action][]OperationType{
	ActionCancel:          {OperationAuthorize},
	ActionStandardActions: {OperationAuthorize},
	ActionRecurring:       {OperationAuthorize},
}

// refunds need a captured amount
var refundBlockedStates = []OperationType{OperationAuthorize, OperationRecurring, OperationCancel, OperationPending}

// IsActionAllowed evaluates the action table against CurrentType. The result
// must not be cached: query it right before each mutating call.
func (t *Transaction) IsActionAllowed(action Action) (bool, error) {
	current, err := t.CurrentType()
	if err != nil {
		return false, err
	}

	if t.Kind() == KindSubscription {
		return containsType(subscriptionAllowedStates[action], current), nil
	}

	switch action {
	case ActionRefund:
		return !containsType(refundBlockedStates, current), nil
	case ActionCapture:
		if containsType(paymentAllowedStates[action], current) {
			return true, nil
		}
		// partial captures keep the payment open
		return current == OperationCapture && t.hasRemainingBalance(), nil
	case ActionSplitCapture, ActionSplitFinalize:
		return containsType(paymentAllowedStates[action], current) && t.hasRemainingBalance(), nil
	}
	return containsType(paymentAllowedStates[action], current), nil
}

func (t *Transaction) hasRemainingBalance() bool {
	r, err := t.RemainingBalance()
	return err == nil && r > 0
}

// AllowedActions lists every action currently permitted, in table order.
func (t *Transaction) AllowedActions() ([]Action, error) {
	all := []Action{ActionCapture, ActionSplitCapture, ActionSplitFinalize, ActionCancel, ActionRefund, ActionRecurring}
	out := make([]Action, 0, len(all))
	for _, a := range all {
		ok, err := t.IsActionAllowed(a)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func containsType(set []OperationType, v OperationType) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// AdminAction is an operator-triggered action name accepted by the admin endpoint.
type AdminAction string

const (
	AdminCapture       AdminAction = "capture"
	AdminCaptureAmount AdminAction = "captureAmount"
	AdminCancel        AdminAction = "cancel"
	AdminRefund        AdminAction = "refund"
	AdminSplitCapture  AdminAction = "split_capture"
	AdminSplitFinalize AdminAction = "split_finalize"
)

var adminActionGates = map[AdminAction]Action{
	AdminCapture:       ActionCapture,
	AdminCaptureAmount: ActionCapture,
	AdminCancel:        ActionCancel,
	AdminRefund:        ActionRefund,
	AdminSplitCapture:  ActionSplitCapture,
	AdminSplitFinalize: ActionSplitFinalize,
}

// ParseAdminAction rejects any name outside the closed admin action set.
func ParseAdminAction(s string) (AdminAction, error) {
	a := AdminAction(s)
	if _, ok := adminActionGates[a]; !ok {
		return "", domain.ErrUnknownAction
	}
	return a, nil
}

// Gate is the state machine action that must be allowed before running a.
func (a AdminAction) Gate() Action {
	return adminActionGates[a]
}
