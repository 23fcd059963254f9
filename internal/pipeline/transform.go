package pipeline

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"enrollment-sync/internal/model"
	"enrollment-sync/pkg/utils"
)

// phoneDigits is how many trailing digits of a phone number are kept.
const phoneDigits = 10

// Normalizer maps SourceRows to CanonicalRecords through a FieldMapping.
type Normalizer struct {
	mapping model.FieldMapping
}

// NewNormalizer creates a normalizer; empty header names take their defaults.
func NewNormalizer(mapping model.FieldMapping) *Normalizer {
	return &Normalizer{mapping: mapping.WithDefaults()}
}

// Mapping returns the effective field mapping.
func (n *Normalizer) Mapping() model.FieldMapping {
	return n.mapping
}

// Email returns the normalized natural key of row, "" when absent.
func (n *Normalizer) Email(row model.SourceRow) string {
	return NormalizeEmail(row[n.mapping.Email])
}

// Normalize converts one row. It never fails: unparsable dates and numbers
// are left absent.
func (n *Normalizer) Normalize(row model.SourceRow) model.CanonicalRecord {
	m := n.mapping
	text := func(header string) string { return strings.TrimSpace(row[header]) }

	return model.CanonicalRecord{
		FirstName:       text(m.FirstName),
		LastName:        text(m.LastName),
		Email:           NormalizeEmail(row[m.Email]),
		Phone:           SanitizePhone(row[m.Phone]),
		Department:      text(m.Department),
		HiringManager:   text(m.HiringManager),
		CourseName:      text(m.CourseName),
		PreparedToPass:  text(m.PreparedToPass),
		TimeSpent:       text(m.TimeSpent),
		DateEnrolled:    ParseDate(row[m.DateEnrolled]),
		LastLogin:       ParseDate(row[m.LastLogin]),
		DateCompleted:   ParseDate(row[m.DateCompleted]),
		PercentComplete: ParseNumber(row[m.PercentComplete]),
		PercentPrep:     ParseNumber(row[m.PercentPrep]),
		PercentSim:      ParseNumber(row[m.PercentSim]),
	}
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SanitizePhone strips non-digits and keeps the last ten, which drops a
// leading country code. Longer malformed input is silently truncated.
func SanitizePhone(s string) string {
	return utils.LastN(utils.DigitsOnly(s), phoneDigits)
}

// ParseDate interprets free-form date/time text as a UTC instant.
// Empty or unparsable input yields nil.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// ParseNumber parses a float, accepting one trailing percent sign.
// Empty, non-numeric, NaN and infinite input yields nil.
func ParseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
