package domain

// Tier names the search strategy that produced a result.
type Tier string

const (
	TierWeighted Tier = "weighted"
	TierHops     Tier = "hops"
	TierFlat     Tier = "flat"
)

// RawPath is a single row returned by a graph store path query, before it is
// joined with distance, walking time and address.
type RawPath struct {
	PointOfInterest PointOfInterest
	// Cost is meters for weighted paths, the hop count for hop paths and
	// approximate kilometers for flat proximity.
	Cost           float64
	Hops           int
	TargetVertexID int64
}

// PathResult is a ranked search result shown to the user.
type PathResult struct {
	PointOfInterest PointOfInterest `json:"pharmacy"`
	Tier            Tier            `json:"tier"`
	PathCost        float64         `json:"pathCost"`
	Hops            int             `json:"hops"`
	TargetVertexID  int64           `json:"targetVertexId"`
	DistanceKm      float64         `json:"distanceKm"`
	WalkingMinutes  int             `json:"walkingMinutes"`
	Address         string          `json:"address,omitempty"`
}
