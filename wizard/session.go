// Package wizard holds the state machine for one bulk lot-import session:
// upload -> mapping -> preview -> importing -> results, with back-navigation
// and a full reset whenever the session is dismissed or a new file is chosen.
// All state is owned exclusively by the session; callers interact through
// methods that enforce the step order.
package wizard

import (
	"errors"
	"fmt"
	"sync"

	"lot-bulk-import/common"
	"lot-bulk-import/crm"
	"lot-bulk-import/lots"
	"lot-bulk-import/parsers"
)

// Step is the wizard's current position
type Step string

const (
	StepUpload    Step = "upload"
	StepMapping   Step = "mapping"
	StepPreview   Step = "preview"
	StepImporting Step = "importing"
	StepResults   Step = "results"
)

// PreviewLimit caps how many projected records the preview returns.
const PreviewLimit = 10

// ErrWrongStep signals an operation invoked out of order
var ErrWrongStep = errors.New("operation not allowed in the current wizard step")

// Session carries one import session through the wizard. Methods are safe
// for concurrent use; the submit goroutine and status polls share it.
type Session struct {
	ID string

	mu        sync.Mutex
	step      Step
	fileName  string
	headers   []string
	rows      []parsers.Record
	mapping   lots.ColumnMapping
	parkCount int
	projected []lots.ProjectedRecord
	progress  *progressTicker
	result    *crm.ImportResult
	failure   string
}

// NewSession starts a session on the upload step.
func NewSession(id string) *Session {
	return &Session{ID: id, step: StepUpload, parkCount: 1}
}

// Step returns the current wizard step.
func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// AttachFile installs a freshly parsed upload and moves to the mapping step.
// Choosing a new file discards everything from any earlier one, so no stale
// mapping or preview state can survive a re-upload.
func (s *Session) AttachFile(fileName string, headers []string, rows []parsers.Record) lots.ColumnMapping {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	s.fileName = fileName
	s.headers = headers
	s.rows = rows
	s.mapping = lots.Suggest(headers)
	s.step = StepMapping
	return s.mapping
}

// SetParkCount records how many parks the acting user manages. If the count
// resolves to more than one while the session already sits on the preview
// step without a park column mapped, the session drops back to mapping so
// the newly mandatory field gets re-validated.
func (s *Session) SetParkCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.parkCount = n
	if s.step == StepPreview && !s.mapping.Complete(n) {
		s.projected = nil
		s.step = StepMapping
	}
}

// ParkCount returns the last resolved park count.
func (s *Session) ParkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parkCount
}

// FileName returns the attached file's name.
func (s *Session) FileName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileName
}

// Headers returns the uploaded file's header list.
func (s *Session) Headers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers
}

// RowCount returns how many data rows the upload contained.
func (s *Session) RowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Mapping returns the active column mapping.
func (s *Session) Mapping() lots.ColumnMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapping
}

// SetMapping replaces the column mapping. Allowed on the mapping and preview
// steps; editing from preview invalidates the projected set and returns the
// session to mapping.
func (s *Session) SetMapping(mapping lots.ColumnMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != StepMapping && s.step != StepPreview {
		return fmt.Errorf("%w: cannot edit mapping on step %q", ErrWrongStep, s.step)
	}

	s.mapping = mapping
	s.projected = nil
	s.step = StepMapping
	return nil
}

// AdvanceToPreview validates the mapping, projects every row, freezes the
// projected set and moves to the preview step. The returned issues are
// non-nil exactly when the mapping blocked the advance.
func (s *Session) AdvanceToPreview() []common.ValidationError {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != StepMapping && s.step != StepPreview {
		return []common.ValidationError{{Field: "step", Message: fmt.Sprintf("cannot preview from step %q", s.step)}}
	}

	if issues := s.mapping.Validate(s.headers, s.parkCount); len(issues) > 0 {
		return issues
	}

	s.projected = lots.ProjectAll(s.rows, s.mapping)
	s.step = StepPreview
	s.failure = ""
	return nil
}

// Preview returns the first PreviewLimit projected records plus the count of
// records beyond the cap. Read-only; the projected set does not change
// between here and submission.
func (s *Session) Preview() ([]lots.ProjectedRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != StepPreview {
		return nil, 0, fmt.Errorf("%w: preview requires the preview step, session is on %q", ErrWrongStep, s.step)
	}

	overflow := 0
	shown := s.projected
	if len(shown) > PreviewLimit {
		overflow = len(shown) - PreviewLimit
		shown = shown[:PreviewLimit]
	}
	return shown, overflow, nil
}

// ProjectedCount returns the size of the frozen projected set.
func (s *Session) ProjectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.projected)
}

// BeginImport enters the importing step, starts the cosmetic progress ticker
// and hands back the frozen projected set for submission. Only callable from
// preview, so the user has always reviewed exactly what is sent.
func (s *Session) BeginImport() ([]lots.ProjectedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != StepPreview {
		return nil, fmt.Errorf("%w: submit requires the preview step, session is on %q", ErrWrongStep, s.step)
	}
	if len(s.projected) == 0 {
		return nil, errors.New("nothing to import: every row was dropped during projection")
	}

	s.step = StepImporting
	s.failure = ""
	s.progress = startProgress()
	return s.projected, nil
}

// Progress returns the current progress percentage: ticker value while
// importing, 100 once results are in, 0 otherwise.
func (s *Session) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.progress != nil {
		return s.progress.Value()
	}
	if s.step == StepResults {
		return 100
	}
	return 0
}

// CompleteImport records the backend's reconciliation, forces progress to
// 100 and moves to the results step.
func (s *Session) CompleteImport(result *crm.ImportResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.progress != nil {
		s.progress.Finish()
	}
	s.result = result
	s.step = StepResults
}

// FailImport handles a failed submission. The ambiguous-park condition sends
// the session back to mapping with file and mapping intact, so the user can
// map a park column; any other failure resets to upload because the server
// state is unknown and stale mapping state must not be retried blindly.
func (s *Session) FailImport(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.progress != nil {
		s.progress.Stop()
		s.progress = nil
	}

	if errors.Is(err, crm.ErrMultipleParks) {
		s.projected = nil
		s.step = StepMapping
		s.failure = err.Error()
		return
	}

	s.resetLocked()
	s.failure = err.Error()
}

// Result returns the import result once the session reached results.
func (s *Session) Result() (*crm.ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != StepResults || s.result == nil {
		return nil, fmt.Errorf("%w: results are only available after an import completes", ErrWrongStep)
	}
	return s.result, nil
}

// Failure returns the message from the last failed submission, if any.
func (s *Session) Failure() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Reset returns every tracked field to its initial zero value and the step
// to upload. Also used on dismissal, which is what clears the progress
// ticker if the dialog is closed mid-import.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	if s.progress != nil {
		s.progress.Stop()
		s.progress = nil
	}
	s.step = StepUpload
	s.fileName = ""
	s.headers = nil
	s.rows = nil
	s.mapping = nil
	s.projected = nil
	s.result = nil
	s.failure = ""
}
