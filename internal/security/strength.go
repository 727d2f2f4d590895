package security

import (
	"github.com/nbutton23/zxcvbn-go"
)

// StrengthResult is the outcome of estimating one candidate password.
// Score ranges 0 (trivial) to 4 (strong).
type StrengthResult struct {
	Score       int
	Warning     string
	Suggestions []string
}

// ScorePassword estimates password strength. Contextual inputs (the
// user's name, email) are penalized so that passwords derived from known
// account data score low.
func ScorePassword(password string, contextualInputs ...string) StrengthResult {
	estimate := zxcvbn.PasswordStrength(password, contextualInputs)

	result := StrengthResult{Score: estimate.Score}

	switch {
	case len(password) < 8:
		result.Warning = "password is too short"
		result.Suggestions = append(result.Suggestions, "use at least 8 characters")
	case estimate.Score <= 1:
		result.Warning = "password is easy to guess"
		result.Suggestions = append(result.Suggestions,
			"avoid common words and personal information",
			"add more words or symbols")
	case estimate.Score == 2:
		result.Suggestions = append(result.Suggestions, "a longer passphrase would be stronger")
	}

	return result
}
