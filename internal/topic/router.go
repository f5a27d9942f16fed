// Package topic maps bus topic strings to device addresses and back.
//
// Two address schemes coexist on the bus:
//
//	home/<floor-token>/<location>/<type>   current
//	home/<location>/<type>                 legacy
//
// Everything here is pure: no I/O, no shared state.
package topic

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// Root is the first segment of every device topic.
	Root = "home"

	// ControlSuffix is appended to a device address to form its command topic.
	ControlSuffix = "control"

	floorPrefix  = "floor"
	defaultFloor = 1

	currentSegments = 4
	legacySegments  = 3
)

// Measurement types carried on the bus.
const (
	TypeTemperature = "temperature"
	TypeHumidity    = "humidity"
	TypeLight       = "light"
	TypeStatus      = "status"
)

// Route is the structured target of a topic.
// Legacy routes carry no floor; Floor is zero for them.
type Route struct {
	Floor           int
	Location        string
	MeasurementType string
	Legacy          bool
}

// String renders the route in the scheme it came from.
func (r Route) String() string {
	if r.Legacy {
		return fmt.Sprintf("%s/%s/%s", Root, r.Location, r.MeasurementType)
	}
	return fmt.Sprintf("%s/%s%d/%s/%s", Root, floorPrefix, r.Floor, r.Location, r.MeasurementType)
}

// Parse resolves a current-scheme topic. Segments beyond the fourth are
// ignored. A floor token without the "floor" prefix means floor 1; a
// "floor" prefix followed by anything but digits is no match.
func Parse(t string) (Route, bool) {
	parts := strings.Split(t, "/")
	if len(parts) < currentSegments || parts[0] != Root {
		return Route{}, false
	}
	for _, p := range parts[1:currentSegments] {
		if p == "" {
			return Route{}, false
		}
	}

	floor, ok := parseFloor(parts[1])
	if !ok {
		return Route{}, false
	}
	return Route{Floor: floor, Location: parts[2], MeasurementType: parts[3]}, true
}

// ParseLegacy resolves a three-segment legacy topic.
func ParseLegacy(t string) (Route, bool) {
	parts := strings.Split(t, "/")
	if len(parts) != legacySegments || parts[0] != Root || parts[1] == "" || parts[2] == "" {
		return Route{}, false
	}
	return Route{Location: parts[1], MeasurementType: parts[2], Legacy: true}, true
}

// Candidates returns the routes to try for a topic in precedence order:
// the current-scheme route first, then the legacy route. The first route
// that resolves to a registered device wins. An unparseable topic yields
// no candidates.
func Candidates(t string) []Route {
	var routes []Route
	if r, ok := Parse(t); ok {
		routes = append(routes, r)
	}
	if r, ok := ParseLegacy(t); ok {
		routes = append(routes, r)
	}
	return routes
}

func parseFloor(token string) (int, bool) {
	digits, hasPrefix := strings.CutPrefix(token, floorPrefix)
	if !hasPrefix {
		return defaultFloor, true
	}
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FloorToken renders a floor number as its topic segment ("floor2").
func FloorToken(floor int) string {
	return floorPrefix + strconv.Itoa(floor)
}

// ControlTopic builds the command topic for a device address:
// home/<floor>/<location>/<type>/control.
func ControlTopic(floorOrName, locationOrRoom, deviceType string) string {
	return strings.Join([]string{Root, floorOrName, locationOrRoom, deviceType, ControlSuffix}, "/")
}

// IsReadingType reports whether a measurement type produces stored readings.
func IsReadingType(measurementType string) bool {
	switch measurementType {
	case TypeTemperature, TypeHumidity, TypeLight:
		return true
	}
	return false
}

// DefaultUnit returns the unit assumed when a reading payload omits one.
func DefaultUnit(measurementType string) string {
	switch measurementType {
	case TypeTemperature:
		return "°C"
	case TypeHumidity:
		return "%"
	case TypeLight:
		return "lux"
	}
	return ""
}

// SubscriptionFilters returns every wildcard filter the ingestion bridge
// subscribes to: current scheme first, then legacy.
func SubscriptionFilters() []string {
	types := []string{TypeTemperature, TypeHumidity, TypeLight, TypeStatus}
	filters := make([]string, 0, 2*len(types))
	for _, t := range types {
		filters = append(filters, Root+"/+/+/"+t)
	}
	for _, t := range types {
		filters = append(filters, Root+"/+/"+t)
	}
	return filters
}
