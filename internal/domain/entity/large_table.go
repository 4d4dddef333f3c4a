// Package entity holds the GORM entities of the sink schema.
package entity

import (
	"time"

	"github.com/tigerroll/bulkload/pkg/batch/core/domain/model"
)

// LargeTableRow is one row of the bulk-loaded table.
type LargeTableRow struct {
	ID      uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Column1 string    `gorm:"column:column1;type:varchar(255)"`
	Column2 int64     `gorm:"column:column2;type:int"`
	Column3 float64   `gorm:"column:column3;type:float"`
	Column4 time.Time `gorm:"column:column4;type:date"`
}

// TableName specifies the table name for LargeTableRow.
func (LargeTableRow) TableName() string {
	return "large_table"
}

// LargeTableColumns is the number of columns written per row.
const LargeTableColumns = 4

// FromRecord converts a parsed record into a row.
func FromRecord(r model.Record) LargeTableRow {
	return LargeTableRow{
		Column1: r.Column1,
		Column2: r.Column2,
		Column3: r.Column3,
		Column4: r.Column4,
	}
}
