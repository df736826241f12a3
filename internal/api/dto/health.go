package dto

type HealthResponse struct {
	Status     string   `json:"status"`
	Database   string   `json:"database"`
	Procedures []string `json:"procedures,omitempty"`
}
