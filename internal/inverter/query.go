package inverter

import (
	"sort"
	"strings"

	"huawei-solar/internal/registers"

	"go.uber.org/zap"
)

// SelectAll is the selection keyword expanding to registers.All.
const SelectAll = "all"

// RegisterReader is satisfied by *Session.
type RegisterReader interface {
	Read(r registers.Register) (registers.Value, error)
}

// Result maps quantity names to decoded values. encoding/json writes the keys
// sorted, Keys gives the same order for other renderers.
type Result map[string]registers.Value

func (r Result) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseSelection splits a comma separated selection into trimmed, non-empty
// tokens. all is true when one of the tokens is exactly "all".
func ParseSelection(selection string) (names []string, all bool) {
	for _, tok := range strings.Split(selection, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if tok == SelectAll {
			all = true
		}
		names = append(names, tok)
	}
	return names, all
}

// Query reads every quantity named by selection, in order, and collects the
// successful reads. Failures and unknown names are logged and skipped.
func Query(reader RegisterReader, selection string, logger *zap.Logger) Result {
	q := &query{
		reader: reader,
		logger: logger,
		result: Result{},
	}

	names, all := ParseSelection(selection)
	if all {
		for _, r := range registers.All() {
			q.handle(r)
		}
		return q.result
	}

	for _, name := range names {
		r, ok := registers.Lookup(name)
		if !ok {
			logger.Warn("Unknown parameter", zap.String("quantity", name), zap.Error(ErrUnknownQuantity))
			continue
		}
		q.handle(r)
	}
	return q.result
}

type query struct {
	reader RegisterReader
	logger *zap.Logger
	result Result

	tzDone    bool
	tzMinutes float64
	tzErr     error
}

func (q *query) handle(r registers.Register) {
	switch r.Name {
	case registers.DeviceStatus.Name:
		q.deviceStatus(r)
	case registers.StartupTime.Name, registers.ShutdownTime.Name:
		q.timestamp(r)
	case registers.TimeZone.Name:
		q.timeZone()
	default:
		if v, ok := q.read(r); ok {
			q.result[r.Name] = v
		}
	}
}

func (q *query) read(r registers.Register) (registers.Value, bool) {
	v, err := q.reader.Read(r)
	if err != nil {
		q.logger.Warn("Error reading quantity", zap.String("quantity", r.Name), zap.Error(err))
		return registers.Value{}, false
	}
	q.logger.Debug("Read quantity", zap.String("quantity", r.Name), zap.Stringer("value", v))
	return v, true
}

// deviceStatus stores the description of the status code, "" when unknown.
func (q *query) deviceStatus(r registers.Register) {
	v, ok := q.read(r)
	if !ok {
		return
	}
	text, _ := registers.DeviceStatusText(uint16(v.Number()))
	q.result[r.Name] = registers.TextValue(text)
}

// timeZone reads the time zone offset at most once per query.
func (q *query) timeZone() {
	if q.tzDone {
		return
	}
	q.tzDone = true

	v, err := q.reader.Read(registers.TimeZone)
	if err != nil {
		q.tzErr = err
		q.logger.Warn("Error reading quantity", zap.String("quantity", registers.TimeZone.Name), zap.Error(err))
		return
	}
	q.tzMinutes = v.Number()
	q.result[registers.TimeZone.Name] = v
}

// timestamp converts inverter local epoch seconds to UTC. Without a time
// zone the timestamp is left out.
func (q *query) timestamp(r registers.Register) {
	q.timeZone()
	if q.tzErr != nil {
		q.logger.Debug("Skipping timestamp without time zone", zap.String("quantity", r.Name))
		return
	}

	v, ok := q.read(r)
	if !ok {
		return
	}
	q.result[r.Name] = registers.NumberValue(v.Number() - 60*q.tzMinutes)
}
