package apiframework

// version is stamped at build time via
// -ldflags "-X github.com/tourdesk/tourdesk/apiframework.version=...".
var version = "0.1.0-dev"

// GetVersion returns the build version of the running binary.
func GetVersion() string {
	return version
}

// AboutServer describes a running server instance.
type AboutServer struct {
	Version        string `json:"version"`
	NodeInstanceID string `json:"nodeInstanceID"`
	Tenancy        string `json:"tenancy"`
}
