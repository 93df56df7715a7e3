package payment

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Params is a request body for the CoolPay API. Nested Params encode as
// key[sub]=v and slices as repeated key[]=v without indexes, which is the
// only array form the API accepts.
type Params map[string]any

// Encode renders p as application/x-www-form-urlencoded with sorted keys.
func (p Params) Encode() string {
	var parts []string
	for _, k := range sortedKeys(p) {
		appendField(&parts, k, p[k])
	}
	return strings.Join(parts, "&")
}

func appendField(parts *[]string, key string, v any) {
	switch val := v.(type) {
	case nil:
		return
	case Params:
		for _, k := range sortedKeys(val) {
			appendField(parts, key+"["+k+"]", val[k])
		}
	case map[string]any:
		appendField(parts, key, Params(val))
	case []Params:
		for _, e := range val {
			appendField(parts, key+"[]", e)
		}
	case []string:
		for _, e := range val {
			appendField(parts, key+"[]", e)
		}
	case []any:
		for _, e := range val {
			appendField(parts, key+"[]", e)
		}
	default:
		*parts = append(*parts, url.QueryEscape(key)+"="+url.QueryEscape(formatScalar(val)))
	}
}

func formatScalar(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case decimal.Decimal:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func sortedKeys(p Params) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
