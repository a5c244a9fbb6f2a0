package domain

// Window is the normalized, deduplicated transaction set fetched for one analysis.
// Partial is set when a timeout or the page ceiling cut the scan short.
type Window struct {
	Transactions   []Transaction `json:"-"`
	PagesFetched   int           `json:"pages_fetched"`
	DroppedRecords int           `json:"dropped_records"`
	Partial        bool          `json:"partial"`
	Note           string        `json:"note,omitempty"`
}
