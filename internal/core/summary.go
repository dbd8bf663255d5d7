package core

// CategoryAmount is an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// VaultBalance pairs a vault name with its current balance.
type VaultBalance struct {
	Name    string
	Balance Money
}

// MonthSummary is the per-user dashboard aggregate for one year+month:
// the signed net movement, a per-category breakdown of spending and the
// current balances of every vault.
type MonthSummary struct {
	Year       int
	Month      int // 1-12
	Net        Money
	Spent      Money // outflows only, as a positive amount
	Received   Money // inflows only
	ByCategory []CategoryAmount
	Vaults     []VaultBalance
	Total      Money // sum of all vault balances
}
