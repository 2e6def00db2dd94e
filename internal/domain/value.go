package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AttributeType tags a record attribute with its store-side type. Comparators
// and the search composer branch on it.
type AttributeType string

const (
	AttributeString   AttributeType = "string"
	AttributeMemo     AttributeType = "memo"
	AttributeInteger  AttributeType = "integer"
	AttributeBigInt   AttributeType = "bigint"
	AttributeDouble   AttributeType = "double"
	AttributeDecimal  AttributeType = "decimal"
	AttributeMoney    AttributeType = "money"
	AttributeBoolean  AttributeType = "boolean"
	AttributePicklist AttributeType = "picklist"
	AttributeState    AttributeType = "state"
	AttributeStatus   AttributeType = "status"
	AttributeLookup   AttributeType = "lookup"
	AttributeOwner    AttributeType = "owner"
	AttributeCustomer AttributeType = "customer"
	AttributeDateTime AttributeType = "datetime"
	AttributeUniqueID AttributeType = "uniqueid"
)

// OptionValue is a choice attribute value: a numeric code plus its localized
// display label.
type OptionValue struct {
	Code  int    `json:"code"`
	Label string `json:"label,omitempty"`
}

// Reference points at another record, carrying its resolved display name.
type Reference struct {
	ID         uuid.UUID `json:"id"`
	Collection string    `json:"collection"`
	Name       string    `json:"name,omitempty"`
}

// Value is one typed attribute value. Data is nil for null values; otherwise
// it holds the payload matching Type:
//
//	String/Memo           string
//	Integer/BigInt        int64
//	Double                float64
//	Decimal/Money         decimal.Decimal
//	Boolean               OptionValue (two-option set with labels)
//	Picklist/State/Status OptionValue
//	Lookup/Owner/Customer Reference
//	DateTime              time.Time
//	UniqueID              uuid.UUID
type Value struct {
	Type AttributeType
	Data any
}

// NullValue returns a typed null.
func NullValue(t AttributeType) Value {
	return Value{Type: t}
}

// StringValue wraps a string attribute value.
func StringValue(s string) Value {
	return Value{Type: AttributeString, Data: s}
}

// IntValue wraps an integer attribute value.
func IntValue(i int64) Value {
	return Value{Type: AttributeInteger, Data: i}
}

// DoubleValue wraps a floating-point attribute value.
func DoubleValue(f float64) Value {
	return Value{Type: AttributeDouble, Data: f}
}

// DecimalValue wraps an exact-decimal attribute value.
func DecimalValue(d decimal.Decimal) Value {
	return Value{Type: AttributeDecimal, Data: d}
}

// MoneyValue wraps a currency amount.
func MoneyValue(d decimal.Decimal) Value {
	return Value{Type: AttributeMoney, Data: d}
}

// BoolValue wraps a two-option attribute value with its labels.
func BoolValue(b bool, label string) Value {
	code := 0
	if b {
		code = 1
	}
	return Value{Type: AttributeBoolean, Data: OptionValue{Code: code, Label: label}}
}

// PicklistValue wraps a single-select choice value.
func PicklistValue(code int, label string) Value {
	return Value{Type: AttributePicklist, Data: OptionValue{Code: code, Label: label}}
}

// StatusValue wraps a status-reason choice value.
func StatusValue(code int, label string) Value {
	return Value{Type: AttributeStatus, Data: OptionValue{Code: code, Label: label}}
}

// LookupValue wraps a reference to another record.
func LookupValue(ref Reference) Value {
	return Value{Type: AttributeLookup, Data: ref}
}

// TimeValue wraps a date-time attribute value.
func TimeValue(t time.Time) Value {
	return Value{Type: AttributeDateTime, Data: t}
}

// IDValue wraps a unique-identifier attribute value.
func IDValue(id uuid.UUID) Value {
	return Value{Type: AttributeUniqueID, Data: id}
}

// IsNull reports whether the value carries no payload.
func (v Value) IsNull() bool {
	return v.Data == nil
}

// AsString returns the string payload for string/memo values.
func (v Value) AsString() (string, bool) {
	s, ok := v.Data.(string)
	return s, ok
}

// AsInt returns the integer payload.
func (v Value) AsInt() (int64, bool) {
	i, ok := v.Data.(int64)
	return i, ok
}

// AsFloat returns the floating-point payload.
func (v Value) AsFloat() (float64, bool) {
	f, ok := v.Data.(float64)
	return f, ok
}

// AsDecimal returns the decimal payload for decimal/money values.
func (v Value) AsDecimal() (decimal.Decimal, bool) {
	d, ok := v.Data.(decimal.Decimal)
	return d, ok
}

// AsOption returns the option payload for boolean/choice values.
func (v Value) AsOption() (OptionValue, bool) {
	o, ok := v.Data.(OptionValue)
	return o, ok
}

// AsReference returns the reference payload for lookup-family values.
func (v Value) AsReference() (Reference, bool) {
	r, ok := v.Data.(Reference)
	return r, ok
}

// AsTime returns the time payload.
func (v Value) AsTime() (time.Time, bool) {
	t, ok := v.Data.(time.Time)
	return t, ok
}

// AsID returns the unique-identifier payload.
func (v Value) AsID() (uuid.UUID, bool) {
	id, ok := v.Data.(uuid.UUID)
	return id, ok
}

// Display renders the value the way a grid cell would show it.
func (v Value) Display() string {
	if v.IsNull() {
		return ""
	}
	switch data := v.Data.(type) {
	case string:
		return data
	case int64:
		return strconv.FormatInt(data, 10)
	case float64:
		return strconv.FormatFloat(data, 'f', -1, 64)
	case decimal.Decimal:
		return data.String()
	case OptionValue:
		if data.Label != "" {
			return data.Label
		}
		return strconv.Itoa(data.Code)
	case Reference:
		return data.Name
	case time.Time:
		return data.Format(time.RFC3339)
	case uuid.UUID:
		return data.String()
	default:
		return fmt.Sprintf("%v", data)
	}
}

// DisplayAny renders a raw condition value the way Value.Display renders the
// matching attribute payload, so stores can compare the two textually.
func DisplayAny(raw any) string {
	switch typed := raw.(type) {
	case nil:
		return ""
	case string:
		return typed
	case uuid.UUID:
		return typed.String()
	case time.Time:
		return typed.Format(time.RFC3339)
	case decimal.Decimal:
		return typed.String()
	case Reference:
		return typed.ID.String()
	case OptionValue:
		return strconv.Itoa(typed.Code)
	default:
		return fmt.Sprintf("%v", typed)
	}
}

type valueEnvelope struct {
	Type AttributeType   `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes the value as a typed envelope so the payload survives a
// round-trip through JSONB storage and the HTTP surface.
func (v Value) MarshalJSON() ([]byte, error) {
	envelope := valueEnvelope{Type: v.Type}
	if v.Data != nil {
		data, err := json.Marshal(v.Data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s value: %w", v.Type, err)
		}
		envelope.Data = data
	}
	return json.Marshal(envelope)
}

// UnmarshalJSON decodes a typed envelope back into a payload matching Type.
func (v *Value) UnmarshalJSON(raw []byte) error {
	var envelope valueEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode value envelope: %w", err)
	}
	v.Type = envelope.Type
	v.Data = nil
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}

	switch envelope.Type {
	case AttributeString, AttributeMemo:
		var s string
		if err := json.Unmarshal(envelope.Data, &s); err != nil {
			return err
		}
		v.Data = s
	case AttributeInteger, AttributeBigInt:
		var i int64
		if err := json.Unmarshal(envelope.Data, &i); err != nil {
			return err
		}
		v.Data = i
	case AttributeDouble:
		var f float64
		if err := json.Unmarshal(envelope.Data, &f); err != nil {
			return err
		}
		v.Data = f
	case AttributeDecimal, AttributeMoney:
		var d decimal.Decimal
		if err := json.Unmarshal(envelope.Data, &d); err != nil {
			return err
		}
		v.Data = d
	case AttributeBoolean, AttributePicklist, AttributeState, AttributeStatus:
		var o OptionValue
		if err := json.Unmarshal(envelope.Data, &o); err != nil {
			return err
		}
		v.Data = o
	case AttributeLookup, AttributeOwner, AttributeCustomer:
		var r Reference
		if err := json.Unmarshal(envelope.Data, &r); err != nil {
			return err
		}
		v.Data = r
	case AttributeDateTime:
		var t time.Time
		if err := json.Unmarshal(envelope.Data, &t); err != nil {
			return err
		}
		v.Data = t
	case AttributeUniqueID:
		var id uuid.UUID
		if err := json.Unmarshal(envelope.Data, &id); err != nil {
			return err
		}
		v.Data = id
	default:
		return fmt.Errorf("unknown attribute type %q", envelope.Type)
	}
	return nil
}
