// Package calendar parses booking feeds, fetches them over HTTP and
// exports the task schedule as iCalendar.
package calendar

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

var (
	guestNamePattern  = regexp.MustCompile(`(?i)reservation for (.+)`)
	guestCountPattern = regexp.MustCompile(`(?i)number of guests:\s*(\d+)`)
	guestCountLoose   = regexp.MustCompile(`(?i)\b(\d+)\s+guests?\b`)
)

// maxLineBytes bounds a single unfolded feed line.
const maxLineBytes = 1 << 20

// Parser turns iCal feed text into reservations.
type Parser struct{}

// NewParser creates a new iCal parser.
func NewParser() *Parser {
	return &Parser{}
}

// vevent accumulates the fields of one VEVENT block.
type vevent struct {
	uid         string
	summary     string
	description string
	start       time.Time
	end         time.Time
}

// Parse reads every VEVENT block of r as a reservation of property.
// It never fails: a block without both dates, or one that does not end
// after it starts, is skipped, and a read error ends the scan early.
func (p *Parser) Parse(r io.Reader, property string) []models.Reservation {
	reservations, _ := p.ParseReport(r, property)
	return reservations
}

// ParseReport is Parse that also reports how many blocks were skipped.
func (p *Parser) ParseReport(r io.Reader, property string) ([]models.Reservation, int) {
	var reservations []models.Reservation
	var current *vevent
	var currentField string
	var value strings.Builder
	skipped := 0
	nested := 0

	flush := func() {
		if currentField != "" && current != nil {
			p.setField(current, currentField, value.String())
		}
		currentField = ""
		value.Reset()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		// Folded line: a leading space or tab continues the previous value.
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if currentField != "" {
				value.WriteString(line[1:])
			}
			continue
		}

		flush()

		colonIdx := strings.Index(line, ":")
		if colonIdx == -1 {
			continue
		}

		field := strings.ToUpper(line[:colonIdx])
		val := line[colonIdx+1:]

		// Drop property parameters, e.g. DTSTART;VALUE=DATE:20250501
		if semicolonIdx := strings.Index(field, ";"); semicolonIdx != -1 {
			field = field[:semicolonIdx]
		}

		switch field {
		case "BEGIN":
			switch {
			case strings.EqualFold(val, "VEVENT") && current == nil:
				current = &vevent{}
				nested = 0
			case current != nil:
				nested++
			}
		case "END":
			switch {
			case current == nil:
			case nested > 0:
				nested--
			case strings.EqualFold(val, "VEVENT"):
				if res, ok := p.toReservation(current, property); ok {
					reservations = append(reservations, res)
				} else {
					skipped++
				}
				current = nil
			}
		case "UID", "SUMMARY", "DESCRIPTION", "DTSTART", "DTEND":
			if current != nil && nested == 0 {
				currentField = field
				value.WriteString(val)
			}
		}
	}

	return reservations, skipped
}

// setField stores an unescaped field value on the event.
func (p *Parser) setField(ev *vevent, field, value string) {
	switch field {
	case "UID":
		ev.uid = strings.TrimSpace(unescape(value))
	case "SUMMARY":
		ev.summary = unescape(value)
	case "DESCRIPTION":
		ev.description = unescape(value)
	case "DTSTART":
		ev.start = parseDateTime(value)
	case "DTEND":
		ev.end = parseDateTime(value)
	}
}

func (p *Parser) toReservation(ev *vevent, property string) (models.Reservation, bool) {
	if ev.start.IsZero() || ev.end.IsZero() || !ev.start.Before(ev.end) {
		return models.Reservation{}, false
	}

	res := models.Reservation{
		ID:        ReservationID(property, ev.uid, ev.start, ev.end, ev.summary),
		Property:  property,
		GuestName: GuestName(ev.summary),
		StartDate: ev.start,
		EndDate:   ev.end,
		UID:       ev.uid,
		Summary:   ev.summary,
	}
	if ev.description != "" {
		desc := ev.description
		res.Description = &desc
		res.GuestCount = GuestCount(desc)
	}
	return res, true
}

// ReservationID derives a stable ID: property and feed UID when present,
// otherwise a hash of the block's identifying fields.
func ReservationID(property, uid string, start, end time.Time, summary string) string {
	if uid != "" {
		return property + ":" + uid
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{
		property,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
		summary,
	}, "|")))
	return "gen-" + hex.EncodeToString(sum[:8])
}

// GuestName extracts the guest from a "Reservation for ..." summary.
func GuestName(summary string) string {
	m := guestNamePattern.FindStringSubmatch(summary)
	if m == nil {
		return models.DefaultGuestName
	}
	name := strings.TrimSpace(m[1])
	if name == "" {
		return models.DefaultGuestName
	}
	return name
}

// GuestCount extracts a party size from a description, or nil.
func GuestCount(description string) *int {
	m := guestCountPattern.FindStringSubmatch(description)
	if m == nil {
		m = guestCountLoose.FindStringSubmatch(description)
	}
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

var unescaper = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

func unescape(value string) string {
	return unescaper.Replace(value)
}

// parseDateTime parses an iCal date or date-time as UTC. Floating times
// and TZID parameters are treated as UTC as well.
func parseDateTime(value string) time.Time {
	value = strings.TrimSpace(value)
	formats := []string{
		"20060102T150405Z",
		"20060102T150405",
		"20060102",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			return t.UTC()
		}
	}

	return time.Time{}
}
