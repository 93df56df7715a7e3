package payment

import (
	"sort"
	"strings"

	"coolpay-gateway/internal/config"
)

// Method is one checkout payment method and the card type lock it sends to
// the gateway. An empty lock falls back to the gateway-wide setting.
type Method struct {
	ID           string
	Enabled      bool
	CardTypeLock string
}

// MethodRegistry is built once at startup and is read-only afterwards.
type MethodRegistry struct {
	methods map[string]Method
}

var builtinMethods = map[string]string{
	"mobilepay": "mobilepay",
	"viabill":   "viabill",
	"klarna":    "klarna",
}

// DefaultMethodRegistry registers the built-in methods and applies overrides.
func DefaultMethodRegistry(overrides map[string]config.MethodConfig) *MethodRegistry {
	r := &MethodRegistry{methods: make(map[string]Method, len(builtinMethods)+len(overrides))}
	for id, lock := range builtinMethods {
		r.methods[id] = Method{ID: id, Enabled: true, CardTypeLock: lock}
	}
	for id, mc := range overrides {
		id = strings.ToLower(id)
		m := Method{ID: id, Enabled: mc.Enabled, CardTypeLock: mc.CardTypeLock}
		if m.CardTypeLock == "" {
			m.CardTypeLock = builtinMethods[id]
		}
		r.methods[id] = m
	}
	return r
}

// Lookup returns the enabled method with the given id.
func (r *MethodRegistry) Lookup(id string) (Method, bool) {
	if r == nil {
		return Method{}, false
	}
	m, ok := r.methods[strings.ToLower(id)]
	if !ok || !m.Enabled {
		return Method{}, false
	}
	return m, true
}

// CardTypeLock resolves the payment_methods value for an order's method.
func (r *MethodRegistry) CardTypeLock(methodID, fallback string) string {
	if m, ok := r.Lookup(methodID); ok && m.CardTypeLock != "" {
		return m.CardTypeLock
	}
	return fallback
}

// IDs lists enabled method ids in sorted order.
func (r *MethodRegistry) IDs() []string {
	var ids []string
	for id, m := range r.methods {
		if m.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
