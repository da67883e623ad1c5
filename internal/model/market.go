package model

import "time"

// Exchange is the listing venue reported by the asset source.
type Exchange string

const (
	ExchangeNYSE   Exchange = "NYSE"
	ExchangeNASDAQ Exchange = "NASDAQ"
	ExchangeAMEX   Exchange = "AMEX"
	ExchangeARCA   Exchange = "ARCA"
	ExchangeBATS   Exchange = "BATS"
	ExchangeOTC    Exchange = "OTC"
)

// Asset is one entry of the asset metadata feed.
type Asset struct {
	Symbol     string
	Exchange   Exchange
	Tradable   bool
	Marginable bool
	Name       string // may be empty
}

// PricePoint is a single daily close.
type PricePoint struct {
	Time  time.Time
	Close float64
}

// PriceSeries holds the daily closes of one symbol, ascending by date.
type PriceSeries struct {
	Symbol string
	Points []PricePoint
}

func (s PriceSeries) Len() int { return len(s.Points) }

// Closes returns the close prices in chronological order.
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Points))
	for i, p := range s.Points {
		closes[i] = p.Close
	}
	return closes
}

// First returns the earliest point. The series must not be empty.
func (s PriceSeries) First() PricePoint { return s.Points[0] }

// Last returns the most recent point. The series must not be empty.
func (s PriceSeries) Last() PricePoint { return s.Points[len(s.Points)-1] }
