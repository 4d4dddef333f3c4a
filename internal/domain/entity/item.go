package entity

import "github.com/shopspring/decimal"

// Item is a stock item managed through the bulk API.
type Item struct {
	ID                uint            `gorm:"column:id;primaryKey;autoIncrement"`
	Name              string          `gorm:"column:name;size:100;not null"`
	Description       string          `gorm:"column:description;type:text;not null"`
	Price             decimal.Decimal `gorm:"column:price;type:decimal(10,2);not null"`
	AvailableQuantity uint32          `gorm:"column:available_quantity;not null"`
}

// TableName specifies the table name for Item.
func (Item) TableName() string {
	return "items"
}
