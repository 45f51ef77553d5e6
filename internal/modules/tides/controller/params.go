package controller

import (
	"html"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"thamestides-server/internal/modules/tides/types"
)

const defaultLastN = 1

// timeLayouts are tried in order after plain Unix seconds. All are read as UTC.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseQuery turns the raw query string into a QuerySpec. Checks run in a
// fixed order and the first failure is returned. Station names are escaped
// here but only checked against the whitelists when the request is planned.
func parseQuery(q url.Values, wl types.Whitelists) (types.QuerySpec, error) {
	if len(q) == 0 {
		return types.QuerySpec{}, types.NewRequestError(types.KindEmptyRequest, "No data was requested; check your url")
	}

	spec := types.QuerySpec{
		WantReadings:    q.Has("readings"),
		WantPredictions: q.Has("predictions"),
		FilterNonNull:   q.Has("filter_non_null"),
	}
	if !spec.WantReadings && !spec.WantPredictions {
		return types.QuerySpec{}, types.NewRequestError(types.KindNoDatasetSelected, "Please select one of `predictions` or `readings`")
	}

	switch {
	case q.Has("stations"):
		raw := lastValue(q, "stations")
		if raw == "all" {
			spec.Stations = wl.Union(spec.WantReadings, spec.WantPredictions)
			break
		}
		for _, name := range strings.Split(raw, ",") {
			spec.Stations = append(spec.Stations, html.EscapeString(name))
		}
	case q.Has("station"):
		spec.Stations = []string{html.EscapeString(lastValue(q, "station"))}
	default:
		return types.QuerySpec{}, types.NewRequestError(types.KindNoStationSpecified,
			"No station name(s) included in request. If you are certain that you need all the stations, set `stations=all`")
	}

	hasStart, hasEnd := q.Has("start"), q.Has("end")

	spec.LastN = defaultLastN
	if hasStart && hasEnd {
		spec.LastN = types.MaxLastN
	}
	if q.Has("last_n") {
		spec.LastN = leadingInt(lastValue(q, "last_n"))
	}
	switch {
	case spec.LastN > types.MaxLastN:
		return types.QuerySpec{}, types.NewRequestError(types.KindInvalidLastN,
			"Request received for %d readings. The maximum is %d readings per request.", spec.LastN, types.MaxLastN)
	case spec.LastN < 1:
		return types.QuerySpec{}, types.NewRequestError(types.KindInvalidLastN, "Invalid value for last_n: %d", spec.LastN)
	}

	if hasStart != hasEnd {
		return types.QuerySpec{}, types.NewRequestError(types.KindIncompleteTimeRange, "Please set both `start` and `end` or neither")
	}
	if hasStart {
		start, err := parseTimestamp(lastValue(q, "start"))
		if err != nil {
			return types.QuerySpec{}, types.WrapRequestError(types.KindInvalidTimeRange, err,
				"Invalid value for start: %s", html.EscapeString(lastValue(q, "start")))
		}
		end, err := parseTimestamp(lastValue(q, "end"))
		if err != nil {
			return types.QuerySpec{}, types.WrapRequestError(types.KindInvalidTimeRange, err,
				"Invalid value for end: %s", html.EscapeString(lastValue(q, "end")))
		}
		spec.Window = &types.Window{Start: start, End: end}
	}

	return spec, nil
}

// lastValue returns the final value given for key, so ?a=1&a=2 reads as 2.
func lastValue(q url.Values, key string) string {
	vs := q[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[len(vs)-1]
}

// numericPrefix is the leading numeric part of a string, decimal or
// exponent form included, as integer casts of query strings read it.
var numericPrefix = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

// leadingInt reads the numeric prefix of s and truncates it toward zero,
// ignoring anything after it: "12abc" is 12 and "1e3" is 1000. Input with no
// numeric prefix is 0. Results are clamped to the int32 range.
func leadingInt(s string) int {
	m := numericPrefix.FindString(strings.TrimLeft(s, " \t\n\r\v\f"))
	if m == "" {
		return 0
	}
	// a matched prefix only fails with ErrRange, and f is then ±Inf
	f, _ := strconv.ParseFloat(m, 64)
	switch {
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int(f)
}

func parseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	var firstErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t.Unix(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return 0, firstErr
}

// inputEcho flattens the query string for error bodies.
func inputEcho(q url.Values) map[string]string {
	out := make(map[string]string, len(q))
	for k := range q {
		out[k] = lastValue(q, k)
	}
	return out
}
