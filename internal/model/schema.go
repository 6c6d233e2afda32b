package model

// DatabaseType names one of the supported relational backends.
type DatabaseType string

const (
	DatabaseTypeSQLite     DatabaseType = "sqlite"
	DatabaseTypePostgreSQL DatabaseType = "postgresql"
	DatabaseTypeMySQL      DatabaseType = "mysql"
)

// SupportedDatabaseTypes lists every accepted DATABASE_TYPE value.
var SupportedDatabaseTypes = []DatabaseType{
	DatabaseTypeSQLite,
	DatabaseTypePostgreSQL,
	DatabaseTypeMySQL,
}

// IsSupported reports whether t is one of SupportedDatabaseTypes.
func (t DatabaseType) IsSupported() bool {
	for _, s := range SupportedDatabaseTypes {
		if s == t {
			return true
		}
	}
	return false
}

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

// TableInfo describes one table with a few sample rows.
type TableInfo struct {
	TableName  string           `json:"table_name"`
	Columns    []ColumnInfo     `json:"columns"`
	SampleData []map[string]any `json:"sample_data"`
}

// DatabaseSchema is the live catalog as returned by /schema.
type DatabaseSchema struct {
	Tables      []TableInfo `json:"tables"`
	TotalTables int         `json:"total_tables"`
}

// TableNames returns the names of all tables in catalog order.
func (s *DatabaseSchema) TableNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.TableName)
	}
	return names
}
