package types

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Units is attached to every station entry that carries data.
const Units = "m"

// MaxLastN is one day of minutely readings.
const MaxLastN = 1440

type Dataset string

const (
	DatasetReadings    Dataset = "readings"
	DatasetPredictions Dataset = "predictions"
)

// Table returns the storage table backing the dataset.
func (d Dataset) Table() string { return string(d) }

// Window is an inclusive range of Unix timestamps.
type Window struct {
	Start int64
	End   int64
}

// QuerySpec is the validated form of a request.
type QuerySpec struct {
	WantReadings    bool
	WantPredictions bool
	Stations        []string
	LastN           int
	// Window is nil when the caller did not supply start/end.
	Window        *Window
	FilterNonNull bool
}

type Point struct {
	Time  int64
	Value *float64
}

// Series is ordered ascending by Time and encodes as a JSON object keyed by
// timestamp, preserving that order.
type Series []Point

func (s Series) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strconv.FormatInt(p.Time, 10))
		buf.WriteString(`":`)
		if p.Value == nil {
			buf.WriteString("null")
			continue
		}
		v, err := json.Marshal(*p.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type StationResult struct {
	Readings    Series `json:"readings,omitempty"`
	Predictions Series `json:"predictions,omitempty"`
	Units       string `json:"units"`
}

// Empty reports whether neither dataset produced any rows.
func (r StationResult) Empty() bool {
	return len(r.Readings) == 0 && len(r.Predictions) == 0
}

// Envelope is the success payload: one entry per station, in request order,
// followed by execution_time and status_code.
type Envelope struct {
	Stations      []string
	Results       map[string]StationResult
	ExecutionTime float64
	StatusCode    int
}

func NewEnvelope() *Envelope {
	return &Envelope{Results: make(map[string]StationResult)}
}

// Add records a station's result. Empty results, repeated names and names
// that collide with the trailer keys are ignored.
func (e *Envelope) Add(station string, r StationResult) {
	if r.Empty() || station == "execution_time" || station == "status_code" {
		return
	}
	if _, ok := e.Results[station]; ok {
		return
	}
	r.Units = Units
	e.Stations = append(e.Stations, station)
	e.Results[station] = r
}

func (e *Envelope) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, name := range e.Stations {
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Results[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
		buf.WriteByte(',')
	}
	et, err := json.Marshal(e.ExecutionTime)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`"execution_time":`)
	buf.Write(et)
	buf.WriteString(`,"status_code":`)
	buf.WriteString(strconv.Itoa(e.StatusCode))
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Whitelist is the ordered set of station columns of one table.
type Whitelist struct {
	names []string
	index map[string]struct{}
}

func NewWhitelist(names []string) Whitelist {
	w := Whitelist{index: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if _, ok := w.index[n]; ok {
			continue
		}
		w.index[n] = struct{}{}
		w.names = append(w.names, n)
	}
	return w
}

func (w Whitelist) Contains(name string) bool {
	_, ok := w.index[name]
	return ok
}

// Names returns a copy of the station names in column order.
func (w Whitelist) Names() []string {
	out := make([]string, len(w.names))
	copy(out, w.names)
	return out
}

func (w Whitelist) Len() int { return len(w.names) }

type Whitelists struct {
	Readings    Whitelist
	Predictions Whitelist
}

// For returns the whitelist of the given dataset.
func (w Whitelists) For(d Dataset) Whitelist {
	if d == DatasetPredictions {
		return w.Predictions
	}
	return w.Readings
}

// Union returns the deduplicated names of the selected whitelists, readings
// first.
func (w Whitelists) Union(readings, predictions bool) []string {
	var names []string
	if readings {
		names = append(names, w.Readings.names...)
	}
	if predictions {
		names = append(names, w.Predictions.names...)
	}
	return NewWhitelist(names).Names()
}
