package schedule

// CellState is the discrete display state of one (therapist, hour) cell.
type CellState string

const (
	StateAvailable CellState = "available"
	StatePartial   CellState = "partial"
	StateExtraCare CellState = "extracare"
	StateFull      CellState = "full"
)

// Cell is the derived unit of the board: the appointments occupying one
// (therapist, hour) slot plus the capacity and state computed from them.
// Cells are rebuilt from the appointment list on every refresh, never
// mutated in place.
type Cell struct {
	TherapistID  string
	Hour         int
	Appointments []Appointment
	Capacity     int
	State        CellState
}

// CellCapacity derives a cell's capacity from its own occupants: 2
// normally, 1 when any occupant is extra-care. Capacity intentionally
// depends on contents rather than a configured value, so booking an
// extra-care session into a half-full cell lowers capacity below the
// occupant count. That combination is a legal, expected state.
func CellCapacity(appts []Appointment) int {
	for _, a := range appts {
		if a.Session == SessionExtraCare {
			return 1
		}
	}
	return 2
}

// ClassifyCell resolves the display state for a list of occupants.
// Precedence: available, partial, extracare, full. The extracare check
// runs before full so a lone extra-care occupant (count 1 >= capacity 1)
// reads as extracare.
func ClassifyCell(appts []Appointment) (int, CellState) {
	capacity := CellCapacity(appts)
	count := len(appts)
	switch {
	case count == 0:
		return capacity, StateAvailable
	case count < capacity:
		return capacity, StatePartial
	case hasExtraCare(appts):
		return capacity, StateExtraCare
	default:
		return capacity, StateFull
	}
}

func hasExtraCare(appts []Appointment) bool {
	for _, a := range appts {
		if a.Session == SessionExtraCare {
			return true
		}
	}
	return false
}

// NewCell builds the derived cell for a slot. The occupant slice is
// always non-nil so renderers never null-check.
func NewCell(therapistID string, hour int, appts []Appointment) Cell {
	if appts == nil {
		appts = []Appointment{}
	}
	capacity, state := ClassifyCell(appts)
	return Cell{
		TherapistID:  therapistID,
		Hour:         hour,
		Appointments: appts,
		Capacity:     capacity,
		State:        state,
	}
}

// HasRoom reports whether another appointment can be proposed for the
// cell. The backend remains the authority; this only keeps the UI from
// proposing writes that would violate the capacity rule it can already
// see.
func (c Cell) HasRoom() bool {
	return len(c.Appointments) < c.Capacity
}
