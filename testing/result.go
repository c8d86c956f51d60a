package testing

import "time"

// Status is the outcome of one program.
type Status int

const (
	StatusPassed Status = iota
	StatusFailed
	StatusSkipped
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "PASS"
	case StatusFailed:
		return "FAIL"
	case StatusSkipped:
		return "SKIP"
	case StatusError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Result describes one checked program.
type Result struct {
	Name     string // program path
	Status   Status
	Duration time.Duration

	Want    string // expected output, or the expected error text
	Got     string // actual output, or the error message
	Message string // why the program failed, errored or was skipped
}

// Summary aggregates the results of a run.
type Summary struct {
	Results  []*Result
	Duration time.Duration

	Passed  int
	Failed  int
	Skipped int
	Errors  int
}

// ComputeTotals recounts the results by status.
func (s *Summary) ComputeTotals() {
	s.Passed, s.Failed, s.Skipped, s.Errors = 0, 0, 0, 0
	for _, r := range s.Results {
		switch r.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		case StatusError:
			s.Errors++
		}
	}
}

// Success reports whether nothing failed or errored.
func (s *Summary) Success() bool {
	return s.Failed == 0 && s.Errors == 0
}
