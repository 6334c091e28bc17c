package types

// HealthStatus is the outcome of a health check.
// The numeric values are persisted and define severity: a larger value is worse.
type HealthStatus int

const (
	HealthUp           HealthStatus = 1
	HealthInDeployment HealthStatus = 2
	HealthDown         HealthStatus = 3
	HealthCorrupt      HealthStatus = 4
)

func (s HealthStatus) String() string {
	switch s {
	case HealthUp:
		return "up"
	case HealthInDeployment:
		return "in_deployment"
	case HealthDown:
		return "down"
	case HealthCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Worse returns the more severe of two statuses
func Worse(a, b HealthStatus) HealthStatus {
	if b > a {
		return b
	}
	return a
}

// HealthStatuses lists all statuses from best to worst
var HealthStatuses = []HealthStatus{HealthUp, HealthInDeployment, HealthDown, HealthCorrupt}
