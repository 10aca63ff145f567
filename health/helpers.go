package health

import (
	"strings"
	"time"
)

func newStatus(component, status, message string) Status {
	return Status{
		Component: component,
		Healthy:   status == StatusHealthy,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a new healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StatusHealthy, message)
}

// NewUnhealthy creates a new unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StatusUnhealthy, message)
}

// NewDegraded creates a new degraded status
func NewDegraded(component, message string) Status {
	return newStatus(component, StatusDegraded, message)
}

// Aggregate rolls checks up into one status: any unhealthy check makes it
// unhealthy, otherwise any degraded check makes it degraded. The message names
// the checks responsible.
func Aggregate(component string, checks []Status) Status {
	if len(checks) == 0 {
		return NewHealthy(component, "No checks to aggregate")
	}

	var unhealthy, degraded []string
	for _, c := range checks {
		switch {
		case c.IsUnhealthy():
			unhealthy = append(unhealthy, c.Component)
		case c.IsDegraded():
			degraded = append(degraded, c.Component)
		}
	}

	var status Status
	switch {
	case len(unhealthy) > 0:
		status = NewUnhealthy(component, "Unhealthy: "+strings.Join(unhealthy, ", "))
	case len(degraded) > 0:
		status = NewDegraded(component, "Degraded: "+strings.Join(degraded, ", "))
	default:
		status = NewHealthy(component, "All checks are healthy")
	}

	status.SubStatuses = append([]Status(nil), checks...)
	return status
}
