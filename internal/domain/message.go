// Package domain contains core domain types for the NutriBot client.
package domain

import (
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser marks messages typed or dictated by the user.
	RoleUser Role = "user"
	// RoleAgent marks messages produced by the assistant (or its failure substitute).
	RoleAgent Role = "agent"
)

// ChatMessage is a single entry in the conversation. Messages are immutable
// once appended.
type ChatMessage struct {
	ID              string               `json:"id"`
	Role            Role                 `json:"role"`
	Content         string               `json:"content"`
	Timestamp       time.Time            `json:"timestamp"`
	Intent          string               `json:"intent,omitempty"`
	Recommendations []FoodRecommendation `json:"recommendations,omitempty"`
}
