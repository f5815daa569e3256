package nlu

import (
	"net/url"
	"strings"
)

const (
	RouteDirections   = "/directions"
	RouteHospitalList = "/hospital-list"
)

// Severity levels offered by the symptom form.
var Severities = []string{"조금 아픔", "아픔", "많이 아픔"}

// NavigationTarget is the next screen for the UI router and its parameters.
type NavigationTarget struct {
	Route  string            `json:"route"`
	Params map[string]string `json:"params"`
}

// Dispatch maps an intent onto a target. A named hospital skips search and
// goes straight to directions.
func Dispatch(in Intent) NavigationTarget {
	if in.Kind == KindHospital {
		return ForHospital(in.HospitalName, "")
	}
	return DispatchSymptom(in.SymptomQuery, "")
}

// DispatchSymptom targets the hospital search with an optional severity.
func DispatchSymptom(symptom, severity string) NavigationTarget {
	params := map[string]string{"symptom": symptom}
	if severity = strings.TrimSpace(severity); severity != "" {
		params["severity"] = severity
	}
	return NavigationTarget{Route: RouteHospitalList, Params: params}
}

// ForHospital targets directions to a hospital, usually one picked from
// search results.
func ForHospital(name, address string) NavigationTarget {
	params := map[string]string{"hospital": name}
	if address != "" {
		params["address"] = address
	}
	return NavigationTarget{Route: RouteDirections, Params: params}
}

// Hospital returns the hospital name for directions targets.
func (t NavigationTarget) Hospital() (string, bool) {
	if t.Route != RouteDirections {
		return "", false
	}
	name, ok := t.Params["hospital"]
	return name, ok
}

// String encodes the target as a router path with query string.
func (t NavigationTarget) String() string {
	if len(t.Params) == 0 {
		return t.Route
	}
	q := url.Values{}
	for k, v := range t.Params {
		q.Set(k, v)
	}
	return t.Route + "?" + q.Encode()
}

// ParseTarget is the inverse of NavigationTarget.String.
func ParseTarget(s string) (NavigationTarget, error) {
	u, err := url.Parse(s)
	if err != nil {
		return NavigationTarget{}, err
	}
	t := NavigationTarget{Route: u.Path, Params: map[string]string{}}
	for k, v := range u.Query() {
		if len(v) > 0 {
			t.Params[k] = v[0]
		}
	}
	return t, nil
}
