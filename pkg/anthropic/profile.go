package anthropic

import "time"

// Profile bundles the call parameters for a class of generation requests.
// The fast profile serves interactive prediction; the detailed profile
// serves full analysis generation.
type Profile struct {
	// MaxCallTimeout caps the wall-clock time of a single upstream call.
	MaxCallTimeout time.Duration

	// MaxAttempts is the total attempt count including the first try.
	// 1 disables retries.
	MaxAttempts int

	MaxTokens   int64
	Temperature float64
}

// FastProfile returns the low-latency profile used for expert prediction.
func FastProfile() Profile {
	return Profile{
		MaxCallTimeout: 1800 * time.Millisecond,
		MaxAttempts:    1,
		MaxTokens:      1024,
		Temperature:    0.3,
	}
}

// DetailedProfile returns the profile used for full analysis generation.
func DetailedProfile() Profile {
	return Profile{
		MaxCallTimeout: 10 * time.Second,
		MaxAttempts:    3,
		MaxTokens:      4096,
		Temperature:    0.7,
	}
}
