package compare

type Status string

const (
	StatusExcellent Status = "Excellent"
	StatusGood      Status = "Good"
	StatusFair      Status = "Fair"
	StatusPoor      Status = "Poor"
)

// Classify maps a difference percentage to its status band. Lower bounds are inclusive.
func Classify(percentage float64) Status {
	switch {
	case percentage < 0.1:
		return StatusExcellent
	case percentage < 1.0:
		return StatusGood
	case percentage < 5.0:
		return StatusFair
	default:
		return StatusPoor
	}
}

// Rank orders statuses from best (0) to worst (3).
func (s Status) Rank() int {
	switch s {
	case StatusExcellent:
		return 0
	case StatusGood:
		return 1
	case StatusFair:
		return 2
	default:
		return 3
	}
}
