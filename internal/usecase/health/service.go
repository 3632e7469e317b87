package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
// TotalStudies is nil when the count could not be read.
type Report struct {
	Status       Status
	Checks       map[string]CheckResult
	TotalStudies *int
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
	studies   StudyCounter
}

// New creates a Service. embedding and studies can be nil.
func New(db DBPinger, embedding EmbeddingChecker, studies StudyCounter) *Service {
	return &Service{db: db, embedding: embedding, studies: studies}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
	} else {
		checks["database"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	var total *int
	if s.studies != nil && checks["database"] == CheckOK {
		if n, err := s.studies.CountPublished(ctx); err != nil {
			checks["studies"] = CheckError
		} else {
			checks["studies"] = CheckOK
			total = &n
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks["database"] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks, TotalStudies: total}
}
