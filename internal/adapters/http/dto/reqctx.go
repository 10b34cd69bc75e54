package dto

import (
	"fmt"
	"time"

	"github.com/jsamuelsen/reqctx-service/internal/app"
)

// ContextResponse describes the request context resolved for a request.
type ContextResponse struct {
	CorrelationID     string `json:"correlationId"`
	Routine           string `json:"routine"`
	Info              any    `json:"info,omitempty"`
	PendingHooks      int    `json:"pendingHooks"`
	ActiveSubContexts int64  `json:"activeSubContexts"`
}

// RoutinesRequest is the body of POST /api/v1/routines.
type RoutinesRequest struct {
	Routines []RoutineRequest `json:"routines" validate:"required,min=1,dive"`
}

// RoutineRequest describes one routine to run in its own sub-context.
type RoutineRequest struct {
	Name  string         `json:"name" validate:"notempty,max=64"`
	Info  map[string]any `json:"info,omitempty"`
	Delay string         `json:"delay,omitempty" validate:"duration"`
}

// Validate rejects duplicate routine names.
func (r *RoutinesRequest) Validate() error {
	seen := make(map[string]int, len(r.Routines))

	for i, routine := range r.Routines {
		if first, dup := seen[routine.Name]; dup {
			return &FieldError{
				Field:   fmt.Sprintf("routines[%d].name", i),
				Message: fmt.Sprintf("duplicates routines[%d].name", first),
			}
		}

		seen[routine.Name] = i
	}

	return nil
}

// ToSpecs converts the request into routine specs. Delays have already been
// validated, so parse failures fall back to zero.
func (r *RoutinesRequest) ToSpecs() []app.RoutineSpec {
	specs := make([]app.RoutineSpec, len(r.Routines))

	for i, routine := range r.Routines {
		var delay time.Duration
		if routine.Delay != "" {
			delay, _ = time.ParseDuration(routine.Delay)
		}

		specs[i] = app.RoutineSpec{
			Name:  routine.Name,
			Info:  routine.Info,
			Delay: delay,
		}
	}

	return specs
}

// RoutinesResponse reports what each routine observed.
type RoutinesResponse struct {
	CorrelationID string            `json:"correlationId"`
	Routine       string            `json:"routine"`
	Routines      []RoutineResponse `json:"routines"`
}

// RoutineResponse is the view of a single routine's sub-context.
type RoutineResponse struct {
	Name          string         `json:"name"`
	Routine       string         `json:"routine"`
	CorrelationID string         `json:"correlationId"`
	Info          map[string]any `json:"info,omitempty"`
	HookQueued    bool           `json:"hookQueued"`
}

// NewRoutinesResponse builds the response for results observed under the
// caller's correlationID and routine.
func NewRoutinesResponse(correlationID, routine string, results []app.RoutineResult) *RoutinesResponse {
	resp := &RoutinesResponse{
		CorrelationID: correlationID,
		Routine:       routine,
		Routines:      make([]RoutineResponse, len(results)),
	}

	for i, r := range results {
		resp.Routines[i] = RoutineResponse{
			Name:          r.Name,
			Routine:       r.Routine,
			CorrelationID: r.CorrelationID,
			Info:          r.Info,
			HookQueued:    r.HookQueued,
		}
	}

	return resp
}
