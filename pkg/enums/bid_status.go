package enums

// BidStatus maps to the bid_status enum in Postgres.
type BidStatus string

const (
	BidStatusPending BidStatus = "pending"
	BidStatusWon     BidStatus = "won"
	BidStatusLost    BidStatus = "lost"
)

func (s BidStatus) IsValid() bool {
	switch s {
	case BidStatusPending, BidStatusWon, BidStatusLost:
		return true
	}
	return false
}
