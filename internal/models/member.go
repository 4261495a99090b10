package models

// Member is a newsletter subscriber. Email segments are filters over members.
type Member struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Status string `json:"status"` // "free", "paid", "comped"
}
