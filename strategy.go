package quota

// Strategy defines what the HTTP middleware does with a denial.
type Strategy int

const (
	// Block answers 429 Too Many Requests when the quota is exhausted.
	Block Strategy = iota
	// LogOnly lets the request through and only logs the denial. Useful
	// to observe new limits before enforcing them.
	LogOnly
)

func (s Strategy) String() string {
	switch s {
	case Block:
		return "Block"
	case LogOnly:
		return "LogOnly"
	default:
		return "Unknown"
	}
}
