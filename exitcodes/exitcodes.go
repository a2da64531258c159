// Package exitcodes defines the standard exit codes used by sim-acceptor.
package exitcodes

// Exit code constants used by sim-acceptor
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every scenario in the regression passes
// * RegressionFailure (1): Used when one or more scenarios fail, crash or come back unknown
// * RuntimeErr (2): Used for runtime errors such as compile failures, missing tools or bad configuration
const (
	Success           = 0 // All scenarios pass
	RegressionFailure = 1 // Scenario failures
	RuntimeErr        = 2 // Runtime errors, compile failures or timeouts
)
