package vaulta

// Version is reported in the default User-Agent. Release builds override it:
//
//	go build -ldflags "-X github.com/vaulta/vaulta-go.Version=1.2.3"
var Version = "0.1.0"

// DefaultUserAgent returns the User-Agent sent when none is configured.
func DefaultUserAgent() string {
	return "vaulta-go/" + Version
}
