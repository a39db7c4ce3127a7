package domain

type QueueEntry struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	AddedByID string `json:"added_by_id"`
}
