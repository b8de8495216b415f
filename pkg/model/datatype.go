package model

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DataType is a UPnP state variable data type.
type DataType uint8

const (
	DataTypeUnknown DataType = iota
	DataTypeUI1
	DataTypeUI2
	DataTypeUI4
	DataTypeI1
	DataTypeI2
	DataTypeI4
	DataTypeInt
	DataTypeR4
	DataTypeR8
	DataTypeNumber
	DataTypeFixed144
	DataTypeFloat
	DataTypeChar
	DataTypeString
	DataTypeBoolean
	DataTypeBinBase64
	DataTypeBinHex
	DataTypeDate
	DataTypeDateTime
	DataTypeDateTimeTZ
	DataTypeTime
	DataTypeTimeTZ
	DataTypeURI
	DataTypeUUID
)

var dataTypeNames = []string{
	"unknown", "ui1", "ui2", "ui4", "i1", "i2", "i4", "int",
	"r4", "r8", "number", "fixed.14.4", "float", "char", "string", "boolean",
	"bin.base64", "bin.hex", "date", "dateTime", "dateTime.tz", "time", "time.tz",
	"uri", "uuid",
}

// Data type errors.
var (
	ErrUnknownDataType = errors.New("unknown data type")
	ErrValueType       = errors.New("invalid value for data type")
)

// String returns the UPnP name of the data type as used in SCPD documents.
func (d DataType) String() string {
	if int(d) < len(dataTypeNames) {
		return dataTypeNames[d]
	}
	return "unknown"
}

// ParseDataType returns the DataType for a UPnP data type name.
func ParseDataType(name string) (DataType, error) {
	for i, n := range dataTypeNames {
		if i > 0 && n == name {
			return DataType(i), nil
		}
	}
	return DataTypeUnknown, fmt.Errorf("%w: %q", ErrUnknownDataType, name)
}

// IsNumeric reports whether values of this type are numbers.
func (d DataType) IsNumeric() bool {
	switch d {
	case DataTypeUI1, DataTypeUI2, DataTypeUI4,
		DataTypeI1, DataTypeI2, DataTypeI4, DataTypeInt,
		DataTypeR4, DataTypeR8, DataTypeNumber, DataTypeFixed144, DataTypeFloat:
		return true
	}
	return false
}

// intBounds returns the inclusive bounds of an integer type.
func (d DataType) intBounds() (min, max int64, ok bool) {
	switch d {
	case DataTypeUI1:
		return 0, math.MaxUint8, true
	case DataTypeUI2:
		return 0, math.MaxUint16, true
	case DataTypeUI4:
		return 0, math.MaxUint32, true
	case DataTypeI1:
		return math.MinInt8, math.MaxInt8, true
	case DataTypeI2:
		return math.MinInt16, math.MaxInt16, true
	case DataTypeI4, DataTypeInt:
		return math.MinInt32, math.MaxInt32, true
	}
	return 0, 0, false
}

var (
	dateLayouts       = []string{"2006-01-02"}
	dateTimeLayouts   = []string{"2006-01-02T15:04:05", "2006-01-02T15:04:05.999999999", "2006-01-02"}
	dateTimeTZLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05Z0700", "2006-01-02T15:04:05"}
	timeLayouts       = []string{"15:04:05", "15:04:05.999999999"}
	timeTZLayouts     = []string{"15:04:05Z07:00", "15:04:05Z0700", "15:04:05"}
)

// Decode parses the wire representation of a value.
//
// Integer types decode to int64, floating types to float64, boolean to bool,
// binary types to []byte, date and time types to time.Time, and everything
// else to string.
func (d DataType) Decode(s string) (any, error) {
	s = strings.TrimSpace(s)
	switch d {
	case DataTypeUI1, DataTypeUI2, DataTypeUI4, DataTypeI1, DataTypeI2, DataTypeI4, DataTypeInt:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %q", ErrValueType, d, s)
		}
		min, max, _ := d.intBounds()
		if v < min || v > max {
			return nil, fmt.Errorf("%w %s: %q overflows", ErrValueType, d, s)
		}
		return v, nil

	case DataTypeR4, DataTypeR8, DataTypeNumber, DataTypeFixed144, DataTypeFloat:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %q", ErrValueType, d, s)
		}
		return v, nil

	case DataTypeBoolean:
		switch strings.ToLower(s) {
		case "1", "true", "yes":
			return true, nil
		case "0", "false", "no":
			return false, nil
		}
		return nil, fmt.Errorf("%w %s: %q", ErrValueType, d, s)

	case DataTypeChar:
		if utf8.RuneCountInString(s) != 1 {
			return nil, fmt.Errorf("%w %s: %q", ErrValueType, d, s)
		}
		return s, nil

	case DataTypeBinBase64:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrValueType, d, err)
		}
		return b, nil

	case DataTypeBinHex:
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrValueType, d, err)
		}
		return b, nil

	case DataTypeDate:
		return parseTime(d, s, dateLayouts)
	case DataTypeDateTime:
		return parseTime(d, s, dateTimeLayouts)
	case DataTypeDateTimeTZ:
		return parseTime(d, s, dateTimeTZLayouts)
	case DataTypeTime:
		return parseTime(d, s, timeLayouts)
	case DataTypeTimeTZ:
		return parseTime(d, s, timeTZLayouts)

	case DataTypeString, DataTypeURI, DataTypeUUID:
		// Strings keep surrounding whitespace.
		return s, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownDataType, d)
}

func parseTime(d DataType, s string, layouts []string) (any, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w %s: %q", ErrValueType, d, s)
}

// Encode renders a value in its wire representation.
func (d DataType) Encode(value any) (string, error) {
	if value == nil {
		return "", nil
	}
	switch d {
	case DataTypeUI1, DataTypeUI2, DataTypeUI4, DataTypeI1, DataTypeI2, DataTypeI4, DataTypeInt:
		v, ok := toInt64(value)
		if !ok {
			return "", fmt.Errorf("%w %s: %T", ErrValueType, d, value)
		}
		return strconv.FormatInt(v, 10), nil

	case DataTypeR4:
		v, ok := toFloat64(value)
		if !ok {
			return "", fmt.Errorf("%w %s: %T", ErrValueType, d, value)
		}
		return strconv.FormatFloat(v, 'g', -1, 32), nil

	case DataTypeR8, DataTypeNumber, DataTypeFloat:
		v, ok := toFloat64(value)
		if !ok {
			return "", fmt.Errorf("%w %s: %T", ErrValueType, d, value)
		}
		return strconv.FormatFloat(v, 'g', -1, 64), nil

	case DataTypeFixed144:
		v, ok := toFloat64(value)
		if !ok {
			return "", fmt.Errorf("%w %s: %T", ErrValueType, d, value)
		}
		return strconv.FormatFloat(v, 'f', 4, 64), nil

	case DataTypeBoolean:
		v, ok := value.(bool)
		if !ok {
			return "", fmt.Errorf("%w %s: %T", ErrValueType, d, value)
		}
		if v {
			return "1", nil
		}
		return "0", nil

	case DataTypeBinBase64:
		b, ok := value.([]byte)
		if !ok {
			return "", fmt.Errorf("%w %s: %T", ErrValueType, d, value)
		}
		return base64.StdEncoding.EncodeToString(b), nil

	case DataTypeBinHex:
		b, ok := value.([]byte)
		if !ok {
			return "", fmt.Errorf("%w %s: %T", ErrValueType, d, value)
		}
		return hex.EncodeToString(b), nil

	case DataTypeDate:
		return formatTime(d, value, "2006-01-02")
	case DataTypeDateTime:
		return formatTime(d, value, "2006-01-02T15:04:05")
	case DataTypeDateTimeTZ:
		return formatTime(d, value, time.RFC3339)
	case DataTypeTime:
		return formatTime(d, value, "15:04:05")
	case DataTypeTimeTZ:
		return formatTime(d, value, "15:04:05Z07:00")

	case DataTypeChar, DataTypeString, DataTypeURI, DataTypeUUID:
		switch v := value.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		}
		return "", fmt.Errorf("%w %s: %T", ErrValueType, d, value)
	}
	return "", fmt.Errorf("%w: %d", ErrUnknownDataType, d)
}

func formatTime(d DataType, value any, layout string) (string, error) {
	switch v := value.(type) {
	case time.Time:
		return v.Format(layout), nil
	case string:
		return v, nil
	}
	return "", fmt.Errorf("%w %s: %T", ErrValueType, d, value)
}

// normalize converts a Go value supplied by a service implementation into the
// canonical representation used by Decode, validating its type.
func (d DataType) normalize(value any) (any, error) {
	switch {
	case d == DataTypeUnknown:
		return nil, ErrUnknownDataType
	case d.IsNumeric():
		if _, _, isInt := d.intBounds(); isInt {
			v, ok := toInt64(value)
			if !ok {
				return nil, fmt.Errorf("%w %s: %T", ErrValueType, d, value)
			}
			min, max, _ := d.intBounds()
			if v < min || v > max {
				return nil, fmt.Errorf("%w %s: %d overflows", ErrValueType, d, v)
			}
			return v, nil
		}
		v, ok := toFloat64(value)
		if !ok {
			return nil, fmt.Errorf("%w %s: %T", ErrValueType, d, value)
		}
		return v, nil
	case d == DataTypeBoolean:
		if _, ok := value.(bool); !ok {
			return nil, fmt.Errorf("%w %s: %T", ErrValueType, d, value)
		}
		return value, nil
	case d == DataTypeBinBase64 || d == DataTypeBinHex:
		if _, ok := value.([]byte); !ok {
			return nil, fmt.Errorf("%w %s: %T", ErrValueType, d, value)
		}
		return value, nil
	case d >= DataTypeDate && d <= DataTypeTimeTZ:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			return d.Decode(v)
		}
		return nil, fmt.Errorf("%w %s: %T", ErrValueType, d, value)
	default:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w %s: %T", ErrValueType, d, value)
		}
		if d == DataTypeChar && utf8.RuneCountInString(s) != 1 {
			return nil, fmt.Errorf("%w %s: %q", ErrValueType, d, s)
		}
		return s, nil
	}
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	if i, ok := toInt64(value); ok {
		return float64(i), true
	}
	return 0, false
}
