package calendar

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(lines ...string) string {
	return strings.Join(append([]string{"BEGIN:VCALENDAR", "VERSION:2.0"}, append(lines, "END:VCALENDAR")...), "\r\n") + "\r\n"
}

func TestParse_JaneDoeScenario(t *testing.T) {
	raw := feed(
		"BEGIN:VEVENT",
		"UID:abc-123@booking",
		"DTSTART:20250501T150000Z",
		"DTEND:20250503T110000Z",
		"SUMMARY:Reservation for Jane Doe",
		"END:VEVENT",
	)

	got := NewParser().Parse(strings.NewReader(raw), "villaA")
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, "villaA:abc-123@booking", r.ID)
	assert.Equal(t, "villaA", r.Property)
	assert.Equal(t, "Jane Doe", r.GuestName)
	assert.Equal(t, time.Date(2025, 5, 1, 15, 0, 0, 0, time.UTC), r.StartDate)
	assert.Equal(t, time.Date(2025, 5, 3, 11, 0, 0, 0, time.UTC), r.EndDate)
	assert.Nil(t, r.GuestCount)
	assert.Nil(t, r.Description)
}

func TestParse_DateOnlyAndParameters(t *testing.T) {
	raw := feed(
		"BEGIN:VEVENT",
		"DTSTART;VALUE=DATE:20250610",
		"DTEND;VALUE=DATE:20250614",
		"SUMMARY:Airbnb (Not available)",
		"END:VEVENT",
	)

	got := NewParser().Parse(strings.NewReader(raw), "villaB")
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), got[0].StartDate)
	assert.Equal(t, time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC), got[0].EndDate)
	assert.Equal(t, "Guest", got[0].GuestName)
	assert.True(t, strings.HasPrefix(got[0].ID, "gen-"))
}

func TestParse_DropsInvalidBlocks(t *testing.T) {
	raw := feed(
		"BEGIN:VEVENT",
		"UID:no-end",
		"DTSTART:20250501",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:no-start",
		"DTEND:20250501",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:reversed",
		"DTSTART:20250505",
		"DTEND:20250501",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:garbage-date",
		"DTSTART:tomorrow",
		"DTEND:20250501",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:ok",
		"DTSTART:20250501",
		"DTEND:20250502",
		"END:VEVENT",
	)

	got, skipped := NewParser().ParseReport(strings.NewReader(raw), "villaA")
	require.Len(t, got, 1)
	assert.Equal(t, "villaA:ok", got[0].ID)
	assert.Equal(t, 4, skipped)
}

func TestParse_FoldedDescriptionAndGuestCount(t *testing.T) {
	raw := feed(
		"BEGIN:VEVENT",
		"UID:folded",
		"DTSTART:20250701T140000Z",
		"DTEND:20250708T100000Z",
		"SUMMARY:RESERVATION FOR Petr Novák",
		"DESCRIPTION:Check-in after 3pm\\nNumber of guests: 4\\, incl",
		" uding 2 children",
		"\tand a dog",
		"END:VEVENT",
	)

	got := NewParser().Parse(strings.NewReader(raw), "villaA")
	require.Len(t, got, 1)
	r := got[0]
	assert.Equal(t, "Petr Novák", r.GuestName)
	require.NotNil(t, r.Description)
	assert.Equal(t, "Check-in after 3pm\nNumber of guests: 4, including 2 childrenand a dog", *r.Description)
	require.NotNil(t, r.GuestCount)
	assert.Equal(t, 4, *r.GuestCount)
}

func TestParse_IgnoresNestedAlarmFields(t *testing.T) {
	raw := feed(
		"BEGIN:VEVENT",
		"UID:alarm",
		"DTSTART:20250801",
		"DTEND:20250803",
		"DESCRIPTION:2 guests",
		"BEGIN:VALARM",
		"DESCRIPTION:Reminder",
		"END:VALARM",
		"END:VEVENT",
	)

	got := NewParser().Parse(strings.NewReader(raw), "villaA")
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Description)
	assert.Equal(t, "2 guests", *got[0].Description)
	require.NotNil(t, got[0].GuestCount)
	assert.Equal(t, 2, *got[0].GuestCount)
}

func TestParse_GarbageYieldsNothing(t *testing.T) {
	for _, raw := range []string{"", "not a calendar", "BEGIN:VEVENT\nDTSTART:20250101", "<html>503</html>"} {
		assert.Empty(t, NewParser().Parse(strings.NewReader(raw), "villaA"))
	}
}

func TestParse_LFLineEndings(t *testing.T) {
	raw := "BEGIN:VEVENT\nUID:lf\nDTSTART:20250901\nDTEND:20250902\nEND:VEVENT\n"
	got := NewParser().Parse(strings.NewReader(raw), "villaA")
	require.Len(t, got, 1)
	assert.Equal(t, "villaA:lf", got[0].ID)
}

func TestReservationID_StableWithoutUID(t *testing.T) {
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 2)

	a := ReservationID("villaA", "", start, end, "Blocked")
	b := ReservationID("villaA", "", start, end, "Blocked")
	c := ReservationID("villaB", "", start, end, "Blocked")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestGuestCount(t *testing.T) {
	tests := []struct {
		in   string
		want *int
	}{
		{"Number of guests: 3", intPtr(3)},
		{"number of guests:12", intPtr(12)},
		{"Party of 5 guests arriving late", intPtr(5)},
		{"1 guest", intPtr(1)},
		{"Phone: 777123456", nil},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GuestCount(tt.in), tt.in)
	}
}

func intPtr(n int) *int { return &n }
