package domain

import "time"

// PriceData is a single oracle observation with the exponent already applied.
type PriceData struct {
	Symbol      string    `json:"symbol"`
	FeedID      string    `json:"feedId"`
	Price       float64   `json:"price"`
	Confidence  float64   `json:"confidence"`
	PublishTime time.Time `json:"publishTime"`
}
