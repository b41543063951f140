// Package models contains domain types for the marker service.
package models

import "time"

// Position is a latitude/longitude pair in decimal degrees.
type Position struct {
	Lat float64 `json:"lat" msgpack:"lat"`
	Lng float64 `json:"lng" msgpack:"lng"`
}

// Marker is a persisted annotation pinned to a unique position.
type Marker struct {
	ID        string    `json:"id" msgpack:"id"`
	Position  Position  `json:"position" msgpack:"position"`
	Content   string    `json:"content" msgpack:"content"`
	CreatedAt time.Time `json:"createdAt" msgpack:"createdAt"`
}

// Draft is a validated marker payload that has not been stored yet.
type Draft struct {
	Position Position
	Content  string
}
