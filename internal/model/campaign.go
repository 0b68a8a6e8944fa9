package model

// Campaign is the slice of the governance record Beacon reads. Everything
// else about a campaign belongs to the CRUD collaborator.
type Campaign struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
