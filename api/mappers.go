package api

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Action names accepted by the macro engine.
const (
	ActionOn    = "on"
	ActionOff   = "off"
	ActionPlay  = "play"
	ActionEco   = "eco"
	ActionFrost = "frost"
	ActionHalf  = "half"
)

var securityLevels = map[string]int{
	ActionOff:  1,
	ActionHalf: 2,
	ActionOn:   4,
}

// MapSecurityLevel maps an alarm action to the level number the portal
// expects in /protection/seclev/{level}.
func MapSecurityLevel(action string) (int, error) {
	level, ok := securityLevels[action]
	if !ok {
		return 0, fmt.Errorf("no security level for alarm action %q", action)
	}
	return level, nil
}

// RemapSecurityLevel is the inverse of [MapSecurityLevel].
func RemapSecurityLevel(level int) (string, error) {
	for action, l := range securityLevels {
		if l == level {
			return action, nil
		}
	}
	return "", fmt.Errorf("unknown security level %d", level)
}

// ParseSiteID extracts the site id from a login redirect.
//
// Example:
//
// "https://myfox.me/home/1234" -> 1234
func ParseSiteID(redirect string) (int, error) {
	u, err := url.Parse(redirect)
	if err != nil {
		return 0, fmt.Errorf("failed to parse redirect %s: %v", redirect, err)
	}

	last := path.Base(strings.TrimSuffix(u.Path, "/"))
	id, err := strconv.Atoi(last)
	if err != nil {
		return 0, fmt.Errorf("failed to parse site id from %s: %v", redirect, err)
	}
	return id, nil
}

// ExpandSitePath substitutes the site id placeholder in p.
//
// Example:
//
// "/widget/{siteId}/scenario/on/12", 1234 -> "/widget/1234/scenario/on/12"
func ExpandSitePath(p string, siteID int) string {
	return strings.ReplaceAll(p, "{siteId}", strconv.Itoa(siteID))
}
