package psa

import "math"

// StepErrors lists the missing requirements of one step.
type StepErrors struct {
	Step   int      `json:"step"`
	Title  string   `json:"title"`
	Fields []string `json:"fields"`
	Labels []string `json:"labels"`
}

// RequiredFieldsByStep returns the requirement table keyed by step number.
func RequiredFieldsByStep() map[int][]Requirement {
	out := make(map[int][]Requirement, len(Steps))
	for _, step := range Steps {
		out[step.Number] = step.Requirements
	}
	return out
}

// CompletionPercentage is round(100 * filled / (len(RequiredFields) + 2)).
// The two extra slots are the enrollment and tax-status aggregates.
func CompletionPercentage(f Form) int {
	total := len(RequiredFields) + 2
	filled := 0
	for _, field := range RequiredFields {
		if requiredFieldFilled(f, field) {
			filled++
		}
	}
	if HasEnrollment(f) {
		filled++
	}
	if HasTaxStatus(f) {
		filled++
	}
	return int(math.Round(100 * float64(filled) / float64(total)))
}

func requiredFieldFilled(f Form, field string) bool {
	if check, ok := fieldChecks[field]; ok {
		return check(f)
	}
	return f.Filled(field)
}

// Satisfied reports whether a single requirement is met.
func (r Requirement) Satisfied(f Form) bool {
	if r.Validate != nil {
		return r.Validate(f)
	}
	return f.Filled(r.Field)
}

// MissingFields walks every step in order and returns the unmet
// requirements, grouped by step. Steps with nothing missing are omitted.
func MissingFields(f Form) []StepErrors {
	missing := make([]StepErrors, 0)
	for _, step := range Steps {
		var fields, stepLabels []string
		for _, req := range step.Requirements {
			if req.Satisfied(f) {
				continue
			}
			fields = append(fields, req.Field)
			stepLabels = append(stepLabels, req.Label)
		}
		if len(fields) > 0 {
			missing = append(missing, StepErrors{Step: step.Number, Title: step.Title, Fields: fields, Labels: stepLabels})
		}
	}
	return missing
}

// MissingForStep returns the unmet requirements of one step.
func MissingForStep(f Form, number int) []string {
	for _, step := range Steps {
		if step.Number != number {
			continue
		}
		fields := make([]string, 0)
		for _, req := range step.Requirements {
			if !req.Satisfied(f) {
				fields = append(fields, req.Field)
			}
		}
		return fields
	}
	return nil
}

// Complete reports whether the form passes the submission gate.
func Complete(f Form) bool {
	return len(MissingFields(f)) == 0
}
