package harmony

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/natserract/harmony/pkg/calllog"
)

// Profile is a customer profile record as sent to the profiles endpoint.
type Profile map[string]interface{}

// CustomerKey returns the record key, or false when it is absent or empty.
func (p Profile) CustomerKey() (string, bool) {
	v, ok := p["CustomerKey"]
	if !ok || v == nil {
		return "", false
	}
	var key string
	switch k := v.(type) {
	case string:
		key = k
	case json.Number:
		key = k.String()
	case float64:
		// numbers decoded into interface{} arrive as float64
		key = strconv.FormatFloat(k, 'f', -1, 64)
	case float32:
		key = strconv.FormatFloat(float64(k), 'f', -1, 32)
	default:
		key = fmt.Sprint(v)
	}
	return key, key != ""
}

// Result is a successful records call.
type Result struct {
	Data       map[string]interface{}
	StatusCode int
	LogID      int64
	Record     *calllog.Record
}

// Token request form, see the Epsilon oauth2 docs.
const (
	tokenPath  = "/Epsilon/oauth2/access_token"
	tokenScope = "cn mail sn givenname uid employeeNumber"
	grantType  = "password"
)

// decodeObject decodes a JSON object body. It returns nil for empty bodies,
// invalid JSON, and non-object values.
func decodeObject(body []byte) map[string]interface{} {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return nil
	}
	return m
}

// faultString pulls fault.faultstring out of an oauth error body.
func faultString(body []byte) string {
	var fault struct {
		Fault struct {
			FaultString interface{} `json:"faultstring"`
		} `json:"fault"`
	}
	if err := json.Unmarshal(body, &fault); err != nil || fault.Fault.FaultString == nil {
		return ""
	}
	return fmt.Sprint(fault.Fault.FaultString)
}

// resultCode pulls resultCode out of a profiles API error body.
func resultCode(body []byte) string {
	var res struct {
		ResultCode interface{} `json:"resultCode"`
	}
	if err := json.Unmarshal(body, &res); err != nil || res.ResultCode == nil {
		return ""
	}
	return fmt.Sprint(res.ResultCode)
}

// responseJSON is what the call log stores for a non-error response.
func responseJSON(decoded map[string]interface{}, raw []byte) string {
	if decoded != nil {
		return calllog.EncodeJSON(decoded)
	}
	return string(raw)
}
