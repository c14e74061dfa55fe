package models

// ConnectivityStatus is the derived health of the upload path.
type ConnectivityStatus string

const (
	StatusHealthy ConnectivityStatus = "healthy"
	StatusSlow    ConnectivityStatus = "slow"
	StatusDown    ConnectivityStatus = "down"
)

// Gauge maps a status to the value exported as a metric.
func (s ConnectivityStatus) Gauge() float64 {
	switch s {
	case StatusSlow:
		return 1
	case StatusDown:
		return 2
	default:
		return 0
	}
}
