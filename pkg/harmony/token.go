package harmony

import "time"

// TokenLifetime is how long, in seconds, an acquired token is reused.
const TokenLifetime int64 = 3600

// TokenState is the cached bearer token and the unix time it was acquired.
type TokenState struct {
	AccessToken string
	// IssuedAt is 0 when no token has been acquired.
	IssuedAt int64
}

// Fresh reports whether the token may be used at now without reacquiring.
func (s TokenState) Fresh(now time.Time) bool {
	return s.IssuedAt != 0 && now.Unix()-s.IssuedAt <= TokenLifetime
}
