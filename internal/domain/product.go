package domain

// Product is a bookable tour owned by the catalog; the engine treats it as
// read-only collaborator data.
type Product struct {
	ID          string
	Title       string
	Slug        string
	Destination string
	Duration    string
	AdultPrice  float64
	ChildPrice  float64
	InfantPrice float64
	Currency    string
	// Schedule metadata used when the catalog materializes availability rows.
	OperatingDays []string
	StartTimes    []string
}
