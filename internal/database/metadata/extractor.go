package metadata

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"nl2sql-tool/internal/model"
	"nl2sql-tool/internal/utils"
)

// Introspector reads the live catalog. Nothing is cached: every call sees the
// database as it is now.
type Introspector struct {
	db         *gorm.DB
	dbType     model.DatabaseType
	sampleRows int
	typeMapper *utils.DataTypeMapper
	log        zerolog.Logger
}

// NewIntrospector creates an Introspector reading up to sampleRows rows per table.
func NewIntrospector(db *gorm.DB, dbType model.DatabaseType, sampleRows int, log zerolog.Logger) *Introspector {
	if sampleRows < 0 {
		sampleRows = 0
	}
	return &Introspector{
		db:         db,
		dbType:     dbType,
		sampleRows: sampleRows,
		typeMapper: utils.NewDataTypeMapper(),
		log:        log.With().Str("component", "introspector").Logger(),
	}
}

// DescribeSchema returns every table with its columns and a few sample rows.
// It fails with CONNECTION_FAILED when the catalog cannot be read.
func (i *Introspector) DescribeSchema(ctx context.Context) (*model.DatabaseSchema, error) {
	sqlDB, err := i.db.DB()
	if err != nil {
		return nil, utils.NewConnectionError(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, utils.NewConnectionError(err)
	}

	tx := i.db.WithContext(ctx)
	tableNames, err := tx.Migrator().GetTables()
	if err != nil {
		return nil, utils.NewConnectionError(err)
	}
	tableNames = uniqueSorted(tableNames)

	schema := &model.DatabaseSchema{Tables: make([]model.TableInfo, 0, len(tableNames))}
	for _, name := range tableNames {
		columns, err := i.extractColumns(tx, name)
		if err != nil {
			return nil, utils.NewConnectionError(err)
		}

		schema.Tables = append(schema.Tables, model.TableInfo{
			TableName:  name,
			Columns:    columns,
			SampleData: i.extractSampleRows(tx, name, columns),
		})
	}
	schema.TotalTables = len(schema.Tables)

	return schema, nil
}

func (i *Introspector) extractColumns(tx *gorm.DB, tableName string) ([]model.ColumnInfo, error) {
	columnTypes, err := tx.Migrator().ColumnTypes(tableName)
	if err != nil {
		return nil, err
	}

	columns := make([]model.ColumnInfo, 0, len(columnTypes))
	for _, ct := range columnTypes {
		colType, ok := ct.ColumnType()
		if !ok || colType == "" {
			colType = ct.DatabaseTypeName()
		}
		nullable, ok := ct.Nullable()
		if !ok {
			nullable = true
		}
		primaryKey, _ := ct.PrimaryKey()
		if primaryKey {
			nullable = false
		}

		columns = append(columns, model.ColumnInfo{
			Name:       ct.Name(),
			Type:       colType,
			Nullable:   nullable,
			PrimaryKey: primaryKey,
		})
	}
	return columns, nil
}

// extractSampleRows never fails; unreadable tables yield no samples.
func (i *Introspector) extractSampleRows(tx *gorm.DB, tableName string, columns []model.ColumnInfo) []map[string]any {
	samples := make([]map[string]any, 0, i.sampleRows)
	if i.sampleRows == 0 {
		return samples
	}

	var rows []map[string]interface{}
	if err := tx.Table(tableName).Limit(i.sampleRows).Find(&rows).Error; err != nil {
		i.log.Debug().Err(err).Str("table", tableName).Msg("sample rows unavailable")
		return samples
	}

	types := make(map[string]model.StandardizedType, len(columns))
	for _, col := range columns {
		types[col.Name] = i.typeMapper.MapToStandardType(i.dbType, col.Type)
	}

	for _, row := range rows {
		sample := make(map[string]any, len(row))
		for key, value := range row {
			sample[key] = i.typeMapper.StandardizeValue(value, types[key])
		}
		samples = append(samples, sample)
	}
	return samples
}

func uniqueSorted(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
