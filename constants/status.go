package constants

// EstimateStatus is the tag of an Estimate variant.
type EstimateStatus string

// Stable values (stored verbatim in the quotes table).
const (
	EstimateIncomplete EstimateStatus = "INCOMPLETE"
	EstimateComplete   EstimateStatus = "COMPLETE"
)

// IncompleteMessage is returned with every Incomplete estimate.
const IncompleteMessage = "Need a few more details to generate a quote."
