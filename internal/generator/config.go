package generator

// Config drives the synthetic road network generator.
type Config struct {
	Area string
	// CenterLatitude and CenterLongitude place the middle of the grid.
	CenterLatitude  float64
	CenterLongitude float64
	Rows            int
	Cols            int
	// SpacingMeters is the distance between neighbouring intersections.
	SpacingMeters float64
	// MissingStreetChance is the probability a grid segment is left out.
	MissingStreetChance float64
	// MaxDetour stretches segment lengths by a random factor in [1, MaxDetour].
	MaxDetour     float64
	NumPharmacies int
	// UnnamedChance is the probability a pharmacy is written without a name.
	UnnamedChance float64
	Seed          int64
}

// DefaultConfig returns a small district centred on Fès.
func DefaultConfig() Config {
	return Config{
		Area:                "Fès, Maroc (synthetic)",
		CenterLatitude:      34.0349,
		CenterLongitude:     -4.9764,
		Rows:                40,
		Cols:                40,
		SpacingMeters:       80,
		MissingStreetChance: 0.1,
		MaxDetour:           1.3,
		NumPharmacies:       60,
		UnnamedChance:       0.02,
		Seed:                42,
	}
}
