package decoder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/NotCoffee418/pulse_bridge/pkg/esmutils"
	"github.com/NotCoffee418/pulse_bridge/pkg/obis"
)

var (
	plainTextLine = regexp.MustCompile(`(.*?)-(.*?):(.*?)\.(.*?)\.(.*?)(?:\*(.*?)|)\((.*?)\)`)
	// one dot before the value, the sub index is missing
	missingSubIndex = regexp.MustCompile(`^([^.]*\.[^.]*)(\(.*$)`)
	onlyDigits      = regexp.MustCompile(`^[0-9]+$`)
)

// Plaintext decodes IEC 62056-21 style value lines, e.g. 1-0:1.8.0*255(001234.5678*kWh).
type Plaintext struct {
	store *obis.Store
	diag  diagnostics
}

func NewPlaintext(store *obis.Store, opts Options) *Plaintext {
	return &Plaintext{store: store, diag: newDiagnostics(opts)}
}

func (p *Plaintext) Decode(payload []byte) (int, error) {
	entries := p.Parse(string(payload))
	if !p.store.ReplaceAll(entries) {
		return 0, fmt.Errorf("plaintext: %w", ErrNoEntries)
	}
	return len(entries), nil
}

// Parse turns a telegram into entries without touching the store. Lines that
// cannot be understood are skipped.
func (p *Plaintext) Parse(text string) []obis.Entry {
	if !strings.Contains(text, "\r") {
		text = strings.ReplaceAll(text, " ", "\r")
	}

	var entries []obis.Entry
	for _, line := range splitLines(text) {
		line = normalizeLine(line)

		parts := splitObisLine(line)
		if len(parts) != 9 {
			if parts[0] == "!" {
				break
			}
			if len(parts[0]) > 0 && parts[0][0] != '/' {
				p.diag.debug("unknown entry", zap.String("line", line))
			}
			continue
		}

		entry, err := entryFromParts(parts)
		if err != nil {
			p.diag.debug("skipping plaintext line", zap.String("line", line), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// splitLines splits on \n, \r\n and lone \r.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func normalizeLine(line string) string {
	if missingSubIndex.MatchString(line) {
		line = missingSubIndex.ReplaceAllString(line, "${1}.0${2}")
	}
	// some firmware drops the A-B: group
	if len(line) >= 4 && line[1] != '-' && line[3] != ':' &&
		strings.Contains(line, "*") && strings.Contains(line, "(") && strings.Contains(line, ")") {
		line = "1-0:" + line
	}
	return line
}

// splitObisLine returns the text before the match, the seven groups and the
// text after it. Lines with zero or several matches come back as the
// unsplit segments only.
func splitObisLine(line string) []string {
	matches := plainTextLine.FindAllStringSubmatchIndex(line, -1)
	if len(matches) != 1 {
		parts := []string{}
		last := 0
		for _, m := range matches {
			parts = append(parts, line[last:m[0]])
			last = m[1]
		}
		return append(parts, line[last:])
	}
	m := matches[0]
	parts := make([]string, 0, 9)
	parts = append(parts, line[:m[0]])
	for g := 1; g <= 7; g++ {
		if m[2*g] < 0 {
			parts = append(parts, "")
			continue
		}
		parts = append(parts, line[m[2*g]:m[2*g+1]])
	}
	return append(parts, line[m[1]:])
}

func entryFromParts(parts []string) (obis.Entry, error) {
	for i := 1; i <= 5; i++ {
		if !onlyDigits.MatchString(parts[i]) {
			return obis.Entry{}, fmt.Errorf("%w: code group %q is not numeric", ErrSemanticParse, parts[i])
		}
	}
	if parts[6] != "" && !onlyDigits.MatchString(parts[6]) {
		return obis.Entry{}, fmt.Errorf("%w: code group %q is not numeric", ErrSemanticParse, parts[6])
	}

	fields := make([]int, 6)
	for i := 0; i < 5; i++ {
		n, err := strconv.Atoi(parts[i+1])
		if err != nil {
			return obis.Entry{}, fmt.Errorf("%w: %v", ErrSemanticParse, err)
		}
		fields[i] = n
	}
	fields[5] = 255
	if parts[6] != "" {
		n, err := strconv.Atoi(parts[6])
		if err != nil {
			return obis.Entry{}, fmt.Errorf("%w: %v", ErrSemanticParse, err)
		}
		fields[5] = n
	}
	code, err := obis.FromFields(fields[0], fields[1], fields[2], fields[3], fields[4], fields[5])
	if err != nil {
		return obis.Entry{}, fmt.Errorf("%w: %v", ErrSemanticParse, err)
	}

	value, unit, err := parseValue(parts[7])
	if err != nil {
		return obis.Entry{}, err
	}
	return obis.Entry{Code: code, Value: value, Unit: unit}, nil
}

// parseValue handles "123.45*kWh" style values. Values without a unit are
// kept as text.
func parseValue(raw string) (obis.Value, obis.Unit, error) {
	numeric, unitName, found := strings.Cut(raw, "*")
	if !found {
		return obis.Text(raw), obis.UnitNone, nil
	}
	unitName, _, _ = strings.Cut(unitName, "*")

	var number float64
	if strings.Contains(numeric, ".") {
		f, err := strconv.ParseFloat(numeric, 64)
		if err != nil {
			return obis.Value{}, obis.UnitNone, fmt.Errorf("%w: %q is not a number", ErrSemanticParse, numeric)
		}
		number = f
	} else {
		n, err := strconv.ParseInt(numeric, 10, 64)
		if err != nil {
			return obis.Value{}, obis.UnitNone, fmt.Errorf("%w: %q is not a number", ErrSemanticParse, numeric)
		}
		number = float64(n)
	}

	if unitName != "" && (unitName[0] == 'k' || unitName[0] == 'K') {
		number = esmutils.KiloToBase(number)
		unitName = unitName[1:]
	}
	unit, _ := obis.ResolveUnit(unitName)
	return obis.Number(number), unit, nil
}
