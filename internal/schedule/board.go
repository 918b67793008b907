package schedule

// Board indexes one day's appointments by therapist and hour for O(1)
// cell lookup. Build it fresh on every data refresh.
type Board struct {
	therapists []Therapist
	index      map[string]map[int][]Appointment
}

// NewBoard builds the two-level index in a single pass over the
// appointment list. Cancelled appointments are dropped here so no cell
// ever counts them against capacity.
func NewBoard(therapists []Therapist, appointments []Appointment) *Board {
	index := make(map[string]map[int][]Appointment, len(therapists))
	for _, a := range appointments {
		if !a.Occupies() {
			continue
		}
		byHour, ok := index[a.TherapistID]
		if !ok {
			byHour = make(map[int][]Appointment)
			index[a.TherapistID] = byHour
		}
		byHour[a.Hour] = append(byHour[a.Hour], a)
	}
	return &Board{
		therapists: therapists,
		index:      index,
	}
}

// Cell returns the derived cell for a (therapist, hour) pair. Unoccupied
// pairs yield an empty occupant list, capacity 2 and the available
// state, never nil.
func (b *Board) Cell(therapistID string, hour int) Cell {
	var appts []Appointment
	if byHour, ok := b.index[therapistID]; ok {
		appts = byHour[hour]
	}
	return NewCell(therapistID, hour, appts)
}

// Therapists returns the board rows to render. A non-empty filterID
// narrows the view to a single therapist without touching the index;
// filtering is a view concern, not a data concern.
func (b *Board) Therapists(filterID string) []Therapist {
	if filterID == "" {
		out := make([]Therapist, len(b.therapists))
		copy(out, b.therapists)
		return out
	}
	out := make([]Therapist, 0, 1)
	for _, t := range b.therapists {
		if t.ID == filterID {
			out = append(out, t)
		}
	}
	return out
}

// OccupantCount reports the total number of occupying appointments on
// the board, mostly for logging after a refresh.
func (b *Board) OccupantCount() int {
	n := 0
	for _, byHour := range b.index {
		for _, appts := range byHour {
			n += len(appts)
		}
	}
	return n
}
