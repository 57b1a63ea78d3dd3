package models

// MarketTotals are the admin dashboard counters.
type MarketTotals struct {
	Users           int `bun:"users" json:"users"`
	VerifiedUsers   int `bun:"verified_users" json:"verifiedUsers"`
	Listings        int `bun:"listings" json:"listings"`
	OpenListings    int `bun:"open_listings" json:"openListings"`
	PendingRequests int `bun:"pending_requests" json:"pendingRequests"`
	Transactions    int `bun:"transactions" json:"transactions"`
	Ratings         int `bun:"ratings" json:"ratings"`
}
