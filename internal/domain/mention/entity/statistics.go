package entity

// AccountStatistics summarizes mentions received by one account
type AccountStatistics struct {
	AccountID string `json:"account_id"`
	Total     int64  `json:"total_mentions"`
	Pending   int64  `json:"pending_mentions"`
	Replied   int64  `json:"replied_mentions"`
	Ignored   int64  `json:"ignored_mentions"`
	Failed    int64  `json:"failed_mentions"`
}
