package layer

// Rank values for the JSON layers. Higher values override lower values.
const (
	// RankNone is used by layers that never merge.
	RankNone = 0

	RankGlobalShared  = 100
	RankGlobalLocal   = 200
	RankProjectShared = 300
	RankProjectLocal  = 400

	// RankEnterpriseManaged is the highest rank: managed policy always wins.
	RankEnterpriseManaged = 1000
)
