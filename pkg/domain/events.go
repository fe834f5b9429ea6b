package domain

// EventType tags the operational event union.
type EventType string

// Operational event types emitted by the simulation engine.
const (
	EventFeeding      EventType = "feeding"
	EventMortality    EventType = "mortality"
	EventGrowthSample EventType = "growth_sample"
	EventTransfer     EventType = "transfer"
	EventHarvest      EventType = "harvest"
)

// Event is the tagged union of operational events. Exactly one payload field
// matching Type is populated.
type Event struct {
	BatchID string    `json:"batch_id"`
	Day     int       `json:"day"`
	Type    EventType `json:"type"`

	Feeding   *FeedingPayload   `json:"feeding,omitempty"`
	Mortality *MortalityPayload `json:"mortality,omitempty"`
	Sample    *SamplePayload    `json:"sample,omitempty"`
	Transfer  *TransferPayload  `json:"transfer,omitempty"`
	Harvest   *HarvestPayload   `json:"harvest,omitempty"`
}

// FeedingPayload records one day's feed allocation.
type FeedingPayload struct {
	AmountKG   float64 `json:"amount_kg"`
	FeedType   string  `json:"feed_type"`
	Population int     `json:"population"`
}

// MortalityPayload records deaths applied on one day.
type MortalityPayload struct {
	Count     int    `json:"count"`
	Remaining int    `json:"remaining"`
	Cause     string `json:"cause"`
}

// SamplePayload records a periodic growth subsample.
type SamplePayload struct {
	SampleSize int     `json:"sample_size"`
	AvgWeightG float64 `json:"avg_weight_g"`
}

// TransferPayload links the outgoing and incoming schedule entries of a stage
// transition. Population and weight are continuous across the boundary.
type TransferPayload struct {
	FromStage  string  `json:"from_stage"`
	ToStage    string  `json:"to_stage"`
	FromGroup  string  `json:"from_group"`
	ToGroup    string  `json:"to_group"`
	Count      int     `json:"count"`
	AvgWeightG float64 `json:"avg_weight_g"`
}

// HarvestPayload terminates a batch at the end of its final stage.
type HarvestPayload struct {
	Count      int     `json:"count"`
	AvgWeightG float64 `json:"avg_weight_g"`
	BiomassKG  float64 `json:"biomass_kg"`
	// Early is set when the harvest threshold ended the stage before its
	// planned duration.
	Early bool `json:"early,omitempty"`
}
