package server

import "encoding/json"

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type ProjectCreateRequest struct {
	Name     string          `json:"name"`
	RawSpec  string          `json:"raw_spec"`
	Settings json.RawMessage `json:"settings"`
}

type RunRequest struct {
	ProjectID string `json:"project_id"`
}

type IngestRequest struct {
	ProjectID  string `json:"project_id"`
	URL        string `json:"url"`
	SourceType string `json:"source_type"`
}

type HTTPError struct {
	Error string `json:"error"`
}
