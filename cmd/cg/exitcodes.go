package main

// Exit codes
const (
	ExitSuccess         = 0 // Success
	ExitError           = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError     = 2 // Configuration error (missing or invalid project file)
	ExitAuthError       = 3 // Missing or invalid SCOPUS_API_KEY
	ExitProviderError   = 4 // Provider error (rate limit, quota, network, unexpected response)
	ExitAccountingError = 5 // Parallel workers lost results; the run is unusable
)
