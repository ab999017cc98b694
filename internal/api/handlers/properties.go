package handlers

import (
	"net/http"

	"github.com/Martyparty1988/Martyai/internal/config"
)

// PropertyResponse is a configured property without its feed URL.
type PropertyResponse struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Color   string `json:"color,omitempty"`
	HasFeed bool   `json:"has_feed"`
}

// ListProperties returns the configured properties. Feed URLs are not exposed.
func ListProperties(properties []config.Property) http.HandlerFunc {
	response := make([]PropertyResponse, 0, len(properties))
	for _, p := range properties {
		response = append(response, PropertyResponse{
			Key:     p.Key,
			Name:    p.Name,
			Color:   p.Color,
			HasFeed: p.FeedURL != "",
		})
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response)
	}
}
