package models

// Transaction is the persisted record of a submitted ledger transaction
type Transaction struct {
	Digest      string  `gorm:"column:digest;primaryKey;type:varchar(44)" json:"digest"`
	TxBytes     []byte  `gorm:"column:tx_bytes;type:bytea;not null" json:"tx_bytes"`
	Sender      string  `gorm:"column:sender;type:varchar(66);index;not null" json:"sender"`
	Description *string `gorm:"column:description;type:text" json:"description"`
	AddedAt     int64   `gorm:"column:added_at;not null" json:"added_at"`
}

// TableName pins the table name regardless of naming strategy
func (Transaction) TableName() string {
	return "transactions"
}
