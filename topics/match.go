// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topics

import "strings"

// Match reports whether topic matches filter under MQTT wildcard rules.
// '+' matches exactly one level, a trailing '#' matches the parent level and
// everything below it. Topics starting with '$' are only matched by filters
// whose first level is literal.
func Match(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	if filter == topic {
		return true
	}
	if topic[0] == '$' && (filter[0] == '+' || filter[0] == '#') {
		return false
	}

	for {
		fLevel, fRest, fMore := strings.Cut(filter, "/")
		if fLevel == "#" {
			return !fMore
		}
		tLevel, tRest, tMore := strings.Cut(topic, "/")
		if fLevel != "+" && fLevel != tLevel {
			return false
		}
		switch {
		case !fMore && !tMore:
			return true
		case !tMore:
			// "a/#" matches "a".
			return fRest == "#"
		case !fMore:
			return false
		}
		filter, topic = fRest, tRest
	}
}

// Any reports whether topic matches at least one of filters. An empty filter list matches everything.
func Any(filters []string, topic string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if Match(f, topic) {
			return true
		}
	}
	return false
}
