package config

import (
	"errors"
	"fmt"
	"strings"
)

// ServiceMode names one of the processes a gateway binary can run.
type ServiceMode string

const (
	// ServiceModeHTTP serves the SPA's auth API and the admin guard.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeEventRelay applies auth events published by other instances.
	ServiceModeEventRelay ServiceMode = "event-relay"
	// ServiceModeSessionJanitor stops synchronizers for idle browser sessions.
	ServiceModeSessionJanitor ServiceMode = "session-janitor"
)

var serviceModes = []ServiceMode{ServiceModeHTTP, ServiceModeEventRelay, ServiceModeSessionJanitor}

// ValidServiceModes lists every mode in startup order.
func ValidServiceModes() []ServiceMode {
	return append([]ServiceMode(nil), serviceModes...)
}

func (m ServiceMode) valid() bool {
	for _, known := range serviceModes {
		if m == known {
			return true
		}
	}
	return false
}

// ServiceSet is the set of modes enabled for this process.
type ServiceSet map[ServiceMode]bool

// Has reports whether mode is enabled. A nil set has nothing enabled.
func (s ServiceSet) Has(mode ServiceMode) bool { return s[mode] }

// Names returns the enabled modes in startup order.
func (s ServiceSet) Names() []string {
	out := make([]string, 0, len(s))
	for _, m := range serviceModes {
		if s[m] {
			out = append(out, string(m))
		}
	}
	return out
}

// ParseServices reads a comma separated SERVICES value. Blank entries are
// skipped and duplicates collapse; an unknown name is an error.
func ParseServices(raw string) (ServiceSet, error) {
	set := ServiceSet{}
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		mode := ServiceMode(name)
		if !mode.valid() {
			return nil, fmt.Errorf("invalid service name %q (valid: http, event-relay, session-janitor)", name)
		}
		set[mode] = true
	}
	if len(set) == 0 {
		return nil, errors.New("at least one service must be enabled")
	}
	return set, nil
}
