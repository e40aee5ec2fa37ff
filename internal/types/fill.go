package types

import "time"

// Fill is a completed execution of an order intent. Immutable once created.
type Fill struct {
	// OrderID references the intent that produced this fill.
	OrderID string `yaml:"order_id" json:"order_id" csv:"order_id"`
	Symbol  string `yaml:"symbol" json:"symbol" csv:"symbol"`
	Side    Side   `yaml:"side" json:"side" csv:"side"`
	// Quantity is the signed exposure delta: positive adds long exposure,
	// negative adds short exposure or reduces a long.
	Quantity float64 `yaml:"quantity" json:"quantity" csv:"quantity"`
	// Price is the executed price including spread and slippage.
	Price     float64   `yaml:"price" json:"price" csv:"price"`
	Fee       float64   `yaml:"fee" json:"fee" csv:"fee"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp" csv:"timestamp"`
	Reason    Reason    `yaml:"reason" json:"reason" csv:"reason"`
}
