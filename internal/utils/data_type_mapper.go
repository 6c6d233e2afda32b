package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"nl2sql-tool/internal/model"
)

// DateTimeLayout is how timestamps appear in results.
const DateTimeLayout = "2006-01-02 15:04:05"

const dateLayout = "2006-01-02"

// DataTypeMapper maps database-specific types to standardized types and
// turns scanned driver values into JSON friendly ones.
type DataTypeMapper struct{}

// NewDataTypeMapper creates a new DataTypeMapper instance
func NewDataTypeMapper() *DataTypeMapper {
	return &DataTypeMapper{}
}

// MapToStandardType maps a database-specific type to a standard type
func (dtm *DataTypeMapper) MapToStandardType(dbType model.DatabaseType, dbColumnType string) model.StandardizedType {
	normalizedType := dtm.normalizeColumnType(dbColumnType)

	switch dbType {
	case model.DatabaseTypeMySQL:
		return dtm.mapMySQLType(normalizedType)
	case model.DatabaseTypePostgreSQL:
		return dtm.mapPostgreSQLType(normalizedType)
	case model.DatabaseTypeSQLite:
		return dtm.mapSQLiteType(normalizedType)
	default:
		return model.TypeUnknown
	}
}

func (dtm *DataTypeMapper) mapMySQLType(columnType string) model.StandardizedType {
	switch {
	case columnType == "BOOL" || columnType == "BOOLEAN" || columnType == "BIT":
		return model.TypeBoolean
	case columnType == "BIGINT" || columnType == "UNSIGNED BIGINT":
		return model.TypeBigInt
	case strings.Contains(columnType, "INT") || columnType == "YEAR":
		return model.TypeInteger
	case columnType == "FLOAT":
		return model.TypeFloat
	case columnType == "DOUBLE" || columnType == "REAL":
		return model.TypeDouble
	case columnType == "DECIMAL" || columnType == "NUMERIC":
		return model.TypeDecimal
	case columnType == "DATE":
		return model.TypeDate
	case columnType == "TIME":
		return model.TypeTime
	case columnType == "DATETIME":
		return model.TypeDateTime
	case columnType == "TIMESTAMP":
		return model.TypeTimestamp
	case columnType == "JSON":
		return model.TypeJSON
	case strings.Contains(columnType, "BLOB") || strings.Contains(columnType, "BINARY"):
		return model.TypeBinary
	case strings.Contains(columnType, "TEXT"):
		return model.TypeText
	case strings.Contains(columnType, "CHAR") || columnType == "ENUM" || columnType == "SET":
		return model.TypeString
	default:
		return model.TypeUnknown
	}
}

func (dtm *DataTypeMapper) mapPostgreSQLType(columnType string) model.StandardizedType {
	switch columnType {
	case "INT2", "INT4", "SMALLINT", "INTEGER", "SERIAL", "SMALLSERIAL":
		return model.TypeInteger
	case "INT8", "BIGINT", "BIGSERIAL":
		return model.TypeBigInt
	case "FLOAT4", "REAL":
		return model.TypeFloat
	case "FLOAT8", "DOUBLE PRECISION":
		return model.TypeDouble
	case "NUMERIC", "DECIMAL", "MONEY":
		return model.TypeDecimal
	case "BOOL", "BOOLEAN":
		return model.TypeBoolean
	case "DATE":
		return model.TypeDate
	case "TIME", "TIMETZ":
		return model.TypeTime
	case "TIMESTAMP", "TIMESTAMPTZ":
		return model.TypeTimestamp
	case "TEXT":
		return model.TypeText
	case "VARCHAR", "BPCHAR", "CHAR", "NAME":
		return model.TypeString
	case "UUID":
		return model.TypeUUID
	case "JSON", "JSONB":
		return model.TypeJSON
	case "BYTEA":
		return model.TypeBinary
	default:
		return model.TypeUnknown
	}
}

// mapSQLiteType follows SQLite's column affinity rules on the declared type.
func (dtm *DataTypeMapper) mapSQLiteType(columnType string) model.StandardizedType {
	switch {
	case columnType == "BOOLEAN" || columnType == "BOOL":
		return model.TypeBoolean
	case columnType == "DATE":
		return model.TypeDate
	case columnType == "DATETIME":
		return model.TypeDateTime
	case columnType == "TIMESTAMP":
		return model.TypeTimestamp
	case strings.Contains(columnType, "INT"):
		return model.TypeInteger
	case strings.Contains(columnType, "CHAR") || strings.Contains(columnType, "CLOB") || strings.Contains(columnType, "TEXT"):
		return model.TypeText
	case strings.Contains(columnType, "BLOB"):
		return model.TypeBinary
	case strings.Contains(columnType, "REAL") || strings.Contains(columnType, "FLOA") || strings.Contains(columnType, "DOUB"):
		return model.TypeDouble
	case strings.Contains(columnType, "NUMERIC") || strings.Contains(columnType, "DECIMAL"):
		return model.TypeDecimal
	default:
		return model.TypeUnknown
	}
}

// normalizeColumnType upper-cases the type and strips size constraints
func (dtm *DataTypeMapper) normalizeColumnType(columnType string) string {
	normalized := strings.ToUpper(strings.TrimSpace(columnType))

	if start := strings.Index(normalized, "("); start != -1 {
		if end := strings.Index(normalized[start:], ")"); end != -1 {
			normalized = normalized[:start] + normalized[start+end+1:]
		}
	}

	return strings.Join(strings.Fields(normalized), " ")
}

// StandardizeValue converts a scanned value into a string, number, bool or nil.
// Values that do not fit the target type fall back to NormalizeValue.
func (dtm *DataTypeMapper) StandardizeValue(value interface{}, targetType model.StandardizedType) interface{} {
	if value == nil {
		return nil
	}

	var (
		out interface{}
		err error
	)
	switch targetType {
	case model.TypeInteger, model.TypeBigInt:
		out, err = dtm.convertToInteger(value)
	case model.TypeFloat, model.TypeDouble, model.TypeDecimal:
		out, err = dtm.convertToFloat(value)
	case model.TypeBoolean:
		out, err = dtm.convertToBoolean(value)
	case model.TypeDate:
		out, err = dtm.convertToTimeString(value, dateLayout)
	case model.TypeDateTime, model.TypeTimestamp:
		out, err = dtm.convertToTimeString(value, DateTimeLayout)
	default:
		return dtm.NormalizeValue(value)
	}
	if err != nil {
		return dtm.NormalizeValue(value)
	}
	return out
}

// NormalizeValue converts a driver value using only its Go type.
func (dtm *DataTypeMapper) NormalizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(DateTimeLayout)
	case string, bool, float64, int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int8:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return v
	case uint:
		return uint64(v)
	case float32:
		return float64(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (dtm *DataTypeMapper) convertToInteger(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int, int8, int16, int32, uint, uint8, uint16, uint32, uint64:
		return dtm.NormalizeValue(v), nil
	case float64:
		return int64(v), nil
	case float32:
		return int64(v), nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
	default:
		return nil, fmt.Errorf("cannot convert %T to integer", value)
	}
}

func (dtm *DataTypeMapper) convertToFloat(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	default:
		return nil, fmt.Errorf("cannot convert %T to float", value)
	}
}

func (dtm *DataTypeMapper) convertToBoolean(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case string:
		return parseBool(v)
	case []byte:
		return parseBool(string(v))
	default:
		return nil, fmt.Errorf("cannot convert %T to boolean", value)
	}
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1", "yes", "y":
		return true, nil
	case "false", "f", "0", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("cannot parse %q as boolean", s)
}

func (dtm *DataTypeMapper) convertToTimeString(value interface{}, layout string) (interface{}, error) {
	switch v := value.(type) {
	case time.Time:
		return v.Format(layout), nil
	case string:
		t, err := parseTime(v)
		if err != nil {
			return nil, err
		}
		return t.Format(layout), nil
	case []byte:
		return dtm.convertToTimeString(string(v), layout)
	default:
		return nil, fmt.Errorf("cannot convert %T to time", value)
	}
}

func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		DateTimeLayout,
		"2006-01-02T15:04:05",
		dateLayout,
	}
	s = strings.TrimSpace(s)
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time string: %s", s)
}
