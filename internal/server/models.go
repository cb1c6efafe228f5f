package server

// HTTPError is the JSON error body returned by all handlers.
type HTTPError struct {
	Error string `json:"error"`
}

// IDResponse carries a newly created resource id.
type IDResponse struct {
	ID string `json:"id"`
}

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

// RunRequest submits a query for execution. Async runs are queued for a
// worker; sync runs block until the workflow finishes.
type RunRequest struct {
	Query         string `json:"query"`
	MaxIterations int    `json:"max_iterations,omitempty"`
	Async         bool   `json:"async,omitempty"`
}

type ScheduleRequest struct {
	Query         string `json:"query"`
	CronSpec      string `json:"cron_spec"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

type ScheduleUpdateRequest struct {
	Enabled *bool `json:"enabled"`
}
