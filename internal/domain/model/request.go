package model

// RequestSpec describes one outbound platform call. Params are sent as query
// parameters for GET requests and as a form-encoded body otherwise; in both
// cases they are included in the OAuth signature when the credential is an
// OAuth token pair.
type RequestSpec struct {
	Action ActionType
	Method string
	URL    string
	Params map[string]string
}

// PlatformResponse is the classified result of a successful dispatch.
type PlatformResponse struct {
	StatusCode int
	Body       []byte
}
