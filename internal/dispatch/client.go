package dispatch

import "strings"

const (
	ConnWeb    = "W"
	ConnMobile = "M"

	unknownAgent = "unknown"
)

var mobileMarkers = []string{"mobile", "android", "iphone", "ipad"}

// Client describes where a dispatch came from. The resolver procedures log
// and authorize against it.
type Client struct {
	IP        string
	UserAgent string
}

func (c Client) Agent() string {
	ua := strings.TrimSpace(c.UserAgent)
	if ua == "" {
		return unknownAgent
	}
	return ua
}

// ConnectionClass is ConnMobile for phone and tablet agents, ConnWeb otherwise.
func (c Client) ConnectionClass() string {
	ua := c.Agent()
	if ua == unknownAgent {
		return ConnWeb
	}
	lower := strings.ToLower(ua)
	for _, m := range mobileMarkers {
		if strings.Contains(lower, m) {
			return ConnMobile
		}
	}
	return ConnWeb
}
