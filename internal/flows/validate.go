package flows

import "github.com/MrEthical07/deviceauth/jwt"

// ValidateDeps captures access-credential validation dependencies.
type ValidateDeps struct {
	VerifyAccess func(string) (*jwt.AccessClaims, bool)
}

// ValidateResult returns the verified access identity.
type ValidateResult struct {
	OK     bool
	Claims *jwt.AccessClaims
}

// RunValidate verifies an access credential. It does not consult the
// session store: access credentials are short-lived and stateless.
func RunValidate(token string, deps ValidateDeps) ValidateResult {
	claims, ok := deps.VerifyAccess(token)
	if !ok {
		return ValidateResult{}
	}
	return ValidateResult{OK: true, Claims: claims}
}
