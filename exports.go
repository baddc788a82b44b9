package telstar

import "github.com/Nityam-7/TELSTAR/types"

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Money constructors
var (
	USD        = types.USD
	EUR        = types.EUR
	INR        = types.INR
	Zero       = types.Zero
	ParseMoney = types.Parse
)
