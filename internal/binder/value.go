package binder

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/dialect"
)

var numericRE = regexp.MustCompile(`^[-+]?(?:[0-9]+(?:\.[0-9]*)?|\.[0-9]+)(?:[eE][-+]?[0-9]+)?$`)

// DecodeJSON decodes b keeping numbers as json.Number so that no value goes
// through float64 on its way to the driver.
func DecodeJSON(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}

// BindParam converts a free-form statement parameter to a driver value.
func BindParam(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool:
		return x, nil
	case json.Number:
		return bindNumber(x)
	case float64:
		return x, nil
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return nil, fmt.Errorf("unsupported parameter type %T", v)
}

func bindNumber(n json.Number) (any, error) {
	s := n.String()
	if !numericRE.MatchString(s) {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	return s, nil
}

// BindValue converts v for column col, rejecting values whose JSON type does
// not fit the column's type family.
func BindValue(col dialect.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	family := dialect.FamilyOf(col.Type)
	mismatch := func() error {
		return dberr.Invalid("bind", fmt.Sprintf("column %q (%s) does not accept %s", col.Name, col.Type, jsonType(v)))
	}
	switch x := v.(type) {
	case json.Number:
		switch family {
		case dialect.FamilyInteger:
			i, err := strconv.ParseInt(x.String(), 10, 64)
			if err != nil {
				return nil, dberr.Invalid("bind", fmt.Sprintf("column %q (%s) expects an integer, got %s", col.Name, col.Type, x))
			}
			return i, nil
		case dialect.FamilyNumeric, dialect.FamilyOther:
			b, err := bindNumber(x)
			if err != nil {
				return nil, dberr.Invalid("bind", err.Error())
			}
			return b, nil
		case dialect.FamilyBool:
			switch x.String() {
			case "0":
				return false, nil
			case "1":
				return true, nil
			}
			return nil, mismatch()
		case dialect.FamilyJSON:
			return x.String(), nil
		}
		return nil, mismatch()

	case string:
		switch family {
		case dialect.FamilyText, dialect.FamilyOther:
			return x, nil
		case dialect.FamilyNumeric:
			if !numericRE.MatchString(strings.TrimSpace(x)) {
				return nil, dberr.Invalid("bind", fmt.Sprintf("column %q (%s) expects a number, got %q", col.Name, col.Type, x))
			}
			return strings.TrimSpace(x), nil
		case dialect.FamilyTemporal:
			return bindTemporal(col, x)
		case dialect.FamilyBinary:
			b, err := base64.StdEncoding.DecodeString(x)
			if err != nil {
				return nil, dberr.Invalid("bind", fmt.Sprintf("column %q (%s) expects base64 encoded bytes", col.Name, col.Type))
			}
			return b, nil
		case dialect.FamilyJSON:
			if json.Valid([]byte(x)) {
				return x, nil
			}
			b, _ := json.Marshal(x)
			return string(b), nil
		}
		return nil, mismatch()

	case bool:
		switch family {
		case dialect.FamilyBool, dialect.FamilyOther:
			return x, nil
		case dialect.FamilyInteger, dialect.FamilyNumeric:
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		case dialect.FamilyJSON:
			return strconv.FormatBool(x), nil
		}
		return nil, mismatch()

	case map[string]any, []any:
		if family != dialect.FamilyJSON && family != dialect.FamilyOther {
			return nil, mismatch()
		}
		b, err := json.Marshal(x)
		if err != nil {
			return nil, dberr.Invalid("bind", err.Error())
		}
		return string(b), nil
	}
	return nil, mismatch()
}

var temporalLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"15:04:05",
	"15:04:05.999999999",
}

// bindTemporal accepts RFC 3339 timestamps (bound as time.Time so the driver
// encodes the zone) and zone-less date/time text (bound unchanged).
func bindTemporal(col dialect.Column, s string) (any, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range temporalLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return s, nil
		}
	}
	if strings.HasPrefix(strings.ToLower(col.Type), "interval") {
		return s, nil
	}
	return nil, dberr.Invalid("bind", fmt.Sprintf("column %q (%s) expects a date/time (RFC 3339 or YYYY-MM-DD[ HH:MM:SS]), got %q", col.Name, col.Type, s))
}

// DefaultLiteral renders a create_table default. Defaults cannot be bound as
// parameters in DDL, so only plain literals are accepted.
func DefaultLiteral(d dialect.Dialect, v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case json.Number:
		if !numericRE.MatchString(x.String()) {
			return "", dberr.Invalid("create_table", fmt.Sprintf("invalid numeric default %q", x))
		}
		return x.String(), nil
	case bool:
		return d.BoolLiteral(x), nil
	case string:
		if strings.ContainsAny(x, "\\\x00") {
			return "", dberr.Invalid("create_table", "string defaults must not contain backslashes or NUL")
		}
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	}
	return "", dberr.Invalid("create_table", fmt.Sprintf("unsupported default of type %s", jsonType(v)))
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case json.Number, float64:
		return "a number"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	}
	return fmt.Sprintf("%T", v)
}
