package flows

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Authenticate AuthenticateDeps
	Login        LoginDeps
	Refresh      RefreshDeps
	Sessions     SessionsDeps
	Validate     ValidateDeps
}

// Client describes the caller of a session-creating request.
type Client struct {
	IP    string
	Title string
}
