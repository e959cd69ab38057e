package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

type CoinPackage struct {
	ID    string
	Title string
	Coins int64
	Price decimal.Decimal
}

// Packages is the static price table, keyed by package id.
var Packages = map[string]CoinPackage{
	"light":    {ID: "light", Title: "Light", Coins: 30, Price: decimal.NewFromInt(290)},
	"starter":  {ID: "starter", Title: "Starter", Coins: 100, Price: decimal.NewFromInt(790)},
	"standard": {ID: "standard", Title: "Standard", Coins: 300, Price: decimal.NewFromInt(1990)},
	"pro":      {ID: "pro", Title: "Pro", Coins: 1000, Price: decimal.NewFromInt(4990)},
}

// LookupPackage finds a package by id or, failing that, by title (case-insensitive).
func LookupPackage(key string) (CoinPackage, bool) {
	key = strings.TrimSpace(key)
	if p, ok := Packages[key]; ok {
		return p, true
	}
	for _, p := range Packages {
		if strings.EqualFold(p.ID, key) || strings.EqualFold(p.Title, key) {
			return p, true
		}
	}
	return CoinPackage{}, false
}
