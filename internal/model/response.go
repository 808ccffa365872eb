package model

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type LogoutResult struct {
	Success bool `json:"success"`
}

type FavoriteList struct {
	PropertyIDs []string `json:"propertyIds"`
}

type Favorite struct {
	PropertyID string `json:"propertyId"`
}
