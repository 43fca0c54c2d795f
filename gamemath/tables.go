package gamemath

// DefaultSlotsTable is the three-reel paytable before RTP tuning. Tier ids are
// the symbol that lands three times.
func DefaultSlotsTable() []PrizeTier {
	return []PrizeTier{
		{Tier: "cherry", Multiplier: 2, Weight: 12000},
		{Tier: "lemon", Multiplier: 5, Weight: 3000},
		{Tier: "bell", Multiplier: 10, Weight: 1200},
		{Tier: "star", Multiplier: 25, Weight: 300},
		{Tier: "seven", Multiplier: 100, Weight: 40},
	}
}

// DefaultSlotsMath wraps DefaultSlotsTable as a storable model.
func DefaultSlotsMath() *GameMath {
	return &GameMath{
		SchemaVersion: 1,
		ModelID:       Slots,
		ModelVersion:  "1.0",
		Mechanic:      Mechanic{Type: "match_3", MatchCount: 3},
		MathMode:      "UNLIMITED",
		WinLogic:      "SINGLE_WIN",
		PrizeTable:    DefaultSlotsTable(),
	}
}
