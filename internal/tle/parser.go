package tle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// lineLength is the fixed width of an element line including its checksum.
const lineLength = 69

var (
	errLength   = errors.New("line must be 69 characters")
	errChecksum = errors.New("checksum mismatch")
	errRange    = errors.New("value out of range")
)

// ParseRecord parses one element set given as two lines, or three lines when
// a name line precedes them. Every failure is a *MalformedRecordError.
func ParseRecord(lines ...string) (*Record, error) {
	var name string
	switch len(lines) {
	case 2:
	case 3:
		name = cleanName(lines[0])
		lines = lines[1:]
	default:
		return nil, malformed(0, "", "", fmt.Errorf("expected 2 or 3 lines, got %d", len(lines)))
	}

	line1 := strings.TrimSpace(lines[0])
	line2 := strings.TrimSpace(lines[1])
	if err := checkLine(line1, 1); err != nil {
		return nil, err
	}
	if err := checkLine(line2, 2); err != nil {
		return nil, err
	}

	rec := &Record{Name: name, Line1: line1, Line2: line2}
	if err := parseLine1(rec, line1); err != nil {
		return nil, err
	}
	if err := parseLine2(rec, line2); err != nil {
		return nil, err
	}
	return rec, nil
}

// Parse reads a stream of element sets in 3-line (name + two lines) or bare
// 2-line form. Malformed entries are logged and recorded in the catalog's
// rejection list; they never stop the scan.
func Parse(r io.Reader, logger *slog.Logger) (*Catalog, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	cat := NewCatalog(nil)
	for i := 0; i < len(lines); {
		// Bare two-line entry.
		if isElementLine(lines[i], '1') && i+1 < len(lines) && isElementLine(lines[i+1], '2') {
			rec, err := ParseRecord(lines[i], lines[i+1])
			if err != nil {
				id := strings.TrimSpace(lines[i][2:7])
				logger.Warn("skipping malformed TLE entry", "line_index", i, "norad_id", id, "error", err)
				cat.reject(id, err)
			} else {
				cat.Add(rec)
			}
			i += 2
			continue
		}

		name := cleanName(lines[i])
		if i+2 >= len(lines) || !isElementLine(lines[i+1], '1') || !isElementLine(lines[i+2], '2') {
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			cat.reject(name, malformed(0, "", "", errors.New("name line not followed by element lines")))
			i++
			continue
		}

		rec, err := ParseRecord(lines[i], lines[i+1], lines[i+2])
		if err != nil {
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name, "error", err)
			cat.reject(name, err)
		} else {
			cat.Add(rec)
		}
		i += 3
	}

	return cat, nil
}

// Checksum returns the modulo-10 checksum of the first 68 columns of line:
// digits count at face value, a minus sign counts as one.
func Checksum(line string) int {
	var sum int
	for i := 0; i < len(line) && i < lineLength-1; i++ {
		c := line[i]
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

func isElementLine(line string, number byte) bool {
	return len(line) >= lineLength-5 && line[0] == number && line[1] == ' '
}

// cleanName strips the "0 " prefix some providers put on name lines.
func cleanName(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0 ") {
		s = strings.TrimSpace(s[2:])
	}
	return s
}

func checkLine(line string, number int) error {
	if len(line) != lineLength {
		return malformed(number, "length", strconv.Itoa(len(line)), errLength)
	}
	if int(line[0]-'0') != number || line[1] != ' ' {
		return malformed(number, "line number", line[:2], nil)
	}
	want := line[lineLength-1]
	if want < '0' || want > '9' {
		return malformed(number, "checksum", string(want), errChecksum)
	}
	if got := Checksum(line); got != int(want-'0') {
		return malformed(number, "checksum", string(want), fmt.Errorf("%w: computed %d", errChecksum, got))
	}
	return nil
}

func parseLine1(rec *Record, line string) error {
	var err error
	if rec.CatalogNumber, err = parseCatalogNumber(line[2:7]); err != nil {
		return malformed(1, "catalog number", line[2:7], err)
	}
	rec.Classification = line[7]
	rec.IntlDesignator = strings.TrimSpace(line[9:17])

	year, err := strconv.Atoi(strings.TrimSpace(line[18:20]))
	if err != nil {
		return malformed(1, "epoch year", line[18:20], err)
	}
	day, err := strconv.ParseFloat(strings.TrimSpace(line[20:32]), 64)
	if err != nil {
		return malformed(1, "epoch day", line[20:32], err)
	}
	if day < 1 || day >= 367 {
		return malformed(1, "epoch day", line[20:32], errRange)
	}
	rec.EpochYear = expandYear(year)
	rec.EpochDay = day
	rec.Epoch = epochTime(rec.EpochYear, day)

	if rec.MeanMotionDot, err = strconv.ParseFloat(strings.TrimSpace(line[33:43]), 64); err != nil {
		return malformed(1, "mean motion derivative", line[33:43], err)
	}
	if rec.MeanMotionDDot, err = parseImpliedDecimal(line[44:52]); err != nil {
		return malformed(1, "mean motion second derivative", line[44:52], err)
	}
	if rec.BStar, err = parseImpliedDecimal(line[53:61]); err != nil {
		return malformed(1, "bstar", line[53:61], err)
	}
	if rec.EphemerisType, err = parseOptionalInt(line[62:63]); err != nil {
		return malformed(1, "ephemeris type", line[62:63], err)
	}
	if rec.ElementSetNumber, err = parseOptionalInt(line[64:68]); err != nil {
		return malformed(1, "element set number", line[64:68], err)
	}
	return nil
}

func parseLine2(rec *Record, line string) error {
	num, err := parseCatalogNumber(line[2:7])
	if err != nil {
		return malformed(2, "catalog number", line[2:7], err)
	}
	if num != rec.CatalogNumber {
		return malformed(2, "catalog number", line[2:7], fmt.Errorf("line 1 has %d", rec.CatalogNumber))
	}

	angles := []struct {
		field string
		cols  string
		max   float64
		dst   *float64
	}{
		{"inclination", line[8:16], 180, &rec.Inclination},
		{"right ascension", line[17:25], 360, &rec.RAAN},
		{"argument of perigee", line[34:42], 360, &rec.ArgPerigee},
		{"mean anomaly", line[43:51], 360, &rec.MeanAnomaly},
	}
	for _, a := range angles {
		v, err := strconv.ParseFloat(strings.TrimSpace(a.cols), 64)
		if err != nil {
			return malformed(2, a.field, a.cols, err)
		}
		if v < 0 || v > a.max {
			return malformed(2, a.field, a.cols, errRange)
		}
		*a.dst = v
	}

	eccField := line[26:33]
	if strings.ContainsAny(eccField, " +-.") {
		return malformed(2, "eccentricity", eccField, errors.New("expected seven digits"))
	}
	if rec.Eccentricity, err = strconv.ParseFloat("0."+eccField, 64); err != nil {
		return malformed(2, "eccentricity", eccField, err)
	}

	if rec.MeanMotion, err = strconv.ParseFloat(strings.TrimSpace(line[52:63]), 64); err != nil {
		return malformed(2, "mean motion", line[52:63], err)
	}
	if rec.MeanMotion <= 0 {
		return malformed(2, "mean motion", line[52:63], errRange)
	}
	if rec.RevolutionNumber, err = parseOptionalInt(line[63:68]); err != nil {
		return malformed(2, "revolution number", line[63:68], err)
	}
	return nil
}

// parseImpliedDecimal decodes fields such as " 12345-3" (0.12345e-3) and
// "-11606-4" (-0.11606e-4).
func parseImpliedDecimal(field string) (float64, error) {
	s := strings.TrimSpace(field)
	if s == "" {
		return 0, nil
	}
	sign := 1.0
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if len(s) < 3 {
		return 0, fmt.Errorf("implied decimal %q too short", field)
	}
	mantissa, exponent := s[:len(s)-2], s[len(s)-2:]
	for _, c := range mantissa {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("implied decimal %q: bad mantissa", field)
		}
	}
	m, err := strconv.ParseFloat("0."+mantissa, 64)
	if err != nil {
		return 0, err
	}
	e, err := strconv.Atoi(exponent)
	if err != nil {
		return 0, fmt.Errorf("implied decimal %q: bad exponent", field)
	}
	return sign * m * math.Pow10(e), nil
}

func parseOptionalInt(field string) (int, error) {
	s := strings.TrimSpace(field)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// alpha5 maps the leading letter of an Alpha-5 catalog number to its value.
// I and O are skipped to avoid confusion with 1 and 0.
const alpha5 = "ABCDEFGHJKLMNPQRSTUVWXYZ"

func parseCatalogNumber(field string) (int, error) {
	s := strings.TrimSpace(field)
	if s == "" {
		return 0, errors.New("empty")
	}
	if c := s[0]; c >= 'A' && c <= 'Z' {
		idx := strings.IndexByte(alpha5, c)
		if idx < 0 || len(s) != 5 {
			return 0, fmt.Errorf("invalid alpha-5 number %q", s)
		}
		rest, err := strconv.Atoi(s[1:])
		if err != nil {
			return 0, err
		}
		return (idx+10)*10000 + rest, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errRange
	}
	return n, nil
}

// MaxCatalogNumber is the largest number the Alpha-5 field can carry (Z9999).
const MaxCatalogNumber = (len(alpha5)+10)*10000 - 1

// FormatCatalogNumber renders a catalog number in the five-column field,
// switching to Alpha-5 above 99999. Numbers beyond MaxCatalogNumber have no
// field representation and are printed in plain decimal.
func FormatCatalogNumber(n int) string {
	switch {
	case n < 100000:
		return fmt.Sprintf("%05d", n)
	case n > MaxCatalogNumber:
		return strconv.Itoa(n)
	}
	return fmt.Sprintf("%c%04d", alpha5[n/10000-10], n%10000)
}

// expandYear maps two-digit epoch years: 57-99 are 1957-1999, 00-56 are
// 2000-2056.
func expandYear(yy int) int {
	if yy >= 57 {
		return 1900 + yy
	}
	return 2000 + yy
}

func epochTime(year int, day float64) time.Time {
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration(math.Round((day - 1) * float64(24*time.Hour))))
}
