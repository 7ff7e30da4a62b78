package chrono

import (
	"time"
	_ "time/tzdata"
)

// API is the clock every component that reasons about "today" depends on.
type API interface {
	Now() time.Time
	Location() *time.Location
}

// Rondônia does not observe daylight saving, the portal works in this zone.
const DefaultLocation = "America/Porto_Velho"

type StandardImpl struct {
	location *time.Location
}

func NewStandardImpl(location string) (StandardImpl, error) {
	if location == "" {
		location = DefaultLocation
	}
	loc, err := time.LoadLocation(location)
	if err != nil {
		return StandardImpl{}, err
	}
	return StandardImpl{location: loc}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// Fixed always reports the same instant, used by tests and replays.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time {
	return f.At
}

func (f Fixed) Location() *time.Location {
	return f.At.Location()
}

// Today truncates t to midnight in its own location.
func Today(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
