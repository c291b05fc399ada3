package validate

import (
	"fmt"
	"regexp"
)

// mdnsServiceTagRe matches the DNS-SD service instance shape go-libp2p's
// mdns package expects: an underscore-prefixed label, a dot, and a
// transport of "_tcp" or "_udp".
var mdnsServiceTagRe = regexp.MustCompile(`^_[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\._(tcp|udp)$`)

// MdnsServiceTag checks that a service tag is a well-formed DNS-SD service
// type, preventing a malformed tag from silently browsing (or advertising)
// the wrong multicast group.
func MdnsServiceTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("%w: tag cannot be empty", ErrInvalidServiceTag)
	}
	if !mdnsServiceTagRe.MatchString(tag) {
		return fmt.Errorf("%w: %q must look like \"_<label>._tcp\" or \"_<label>._udp\"", ErrInvalidServiceTag, tag)
	}
	return nil
}
