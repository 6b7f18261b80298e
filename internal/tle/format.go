package tle

import (
	"fmt"
	"math"
	"strings"
)

// Format renders rec back into its two element lines with fresh checksums.
// ParseRecord(Format(rec)) yields a record with the same field values.
func Format(rec *Record) (line1, line2 string) {
	class := rec.Classification
	if class == 0 {
		class = 'U'
	}

	var b strings.Builder
	fmt.Fprintf(&b, "1 %s%c %-8s %02d%012.8f %s %s %s %d %4d",
		FormatCatalogNumber(rec.CatalogNumber),
		class,
		rec.IntlDesignator,
		rec.EpochYear%100,
		rec.EpochDay,
		formatDerivative(rec.MeanMotionDot),
		formatImpliedDecimal(rec.MeanMotionDDot),
		formatImpliedDecimal(rec.BStar),
		rec.EphemerisType,
		rec.ElementSetNumber%10000,
	)
	line1 = withChecksum(b.String())

	b.Reset()
	fmt.Fprintf(&b, "2 %s %8.4f %8.4f %07d %8.4f %8.4f %11.8f%5d",
		FormatCatalogNumber(rec.CatalogNumber),
		rec.Inclination,
		rec.RAAN,
		int(math.Round(rec.Eccentricity*1e7)),
		rec.ArgPerigee,
		rec.MeanAnomaly,
		rec.MeanMotion,
		rec.RevolutionNumber%100000,
	)
	line2 = withChecksum(b.String())
	return line1, line2
}

func withChecksum(line string) string {
	return fmt.Sprintf("%s%d", line, Checksum(line))
}

// formatDerivative renders the first derivative as " .00016717".
func formatDerivative(v float64) string {
	sign := " "
	if v < 0 {
		sign = "-"
	}
	return sign + strings.TrimPrefix(fmt.Sprintf("%.8f", math.Abs(v)), "0")
}

// formatImpliedDecimal is the inverse of parseImpliedDecimal.
func formatImpliedDecimal(v float64) string {
	if v == 0 {
		return " 00000-0"
	}
	sign := ' '
	if v < 0 {
		sign = '-'
	}
	a := math.Abs(v)
	exp := int(math.Floor(math.Log10(a))) + 1
	digits := int(math.Round(a / math.Pow10(exp) * 1e5))
	if digits >= 100000 {
		digits /= 10
		exp++
	}
	expSign := '+'
	if exp < 0 {
		expSign = '-'
	}
	if exp < 0 {
		exp = -exp
	}
	return fmt.Sprintf("%c%05d%c%d", sign, digits, expSign, exp)
}
