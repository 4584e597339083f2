package signup

import (
	"strings"
	"time"
)

type State string

const (
	StateClosed         State = "closed"
	StateChoosingMethod State = "choosing_method"
	StatePasswordEntry  State = "password_entry"
	StateSubmitting     State = "submitting"
	StateError          State = "error"
)

func (s State) Valid() bool {
	switch s {
	case StateClosed, StateChoosingMethod, StatePasswordEntry, StateSubmitting, StateError:
		return true
	default:
		return false
	}
}

type Mode string

const (
	ModeSignUp Mode = "sign_up"
	ModeSignIn Mode = "sign_in"
)

func ParseMode(v string) (Mode, bool) {
	switch Mode(strings.TrimSpace(strings.ToLower(v))) {
	case ModeSignUp:
		return ModeSignUp, true
	case ModeSignIn:
		return ModeSignIn, true
	default:
		return "", false
	}
}

// Session is the view state of one visitor's modal. It never holds a
// password.
type Session struct {
	ID        string
	State     State
	Mode      Mode
	Email     string
	Error     string
	Notice    string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

func NewSession(id string, now time.Time) Session {
	return Session{
		ID:        id,
		State:     StateClosed,
		Mode:      ModeSignUp,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s Session) IsOpen() bool { return s.State != StateClosed }

// Loading reports whether a submission is in flight; the submit control is
// disabled while it is.
func (s Session) Loading() bool { return s.State == StateSubmitting }

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

func (s *Session) Open() error {
	if s.State != StateClosed {
		return nil
	}
	s.State = StateChoosingMethod
	s.Error = ""
	return nil
}

func (s *Session) Close() {
	s.State = StateClosed
	s.Mode = ModeSignUp
	s.Email = ""
	s.Error = ""
}

func (s *Session) ContinueWithEmail(email string) error {
	switch s.State {
	case StateChoosingMethod, StatePasswordEntry, StateError:
	default:
		return ErrInvalidTransition
	}
	s.Email = strings.TrimSpace(email)
	s.State = StatePasswordEntry
	s.Error = ""
	return nil
}

func (s *Session) Back() error {
	switch s.State {
	case StatePasswordEntry, StateError:
	default:
		return ErrInvalidTransition
	}
	s.State = StateChoosingMethod
	s.Error = ""
	return nil
}

func (s *Session) SetMode(m Mode) error {
	if m != ModeSignUp && m != ModeSignIn {
		return ErrInvalidTransition
	}
	switch s.State {
	case StateClosed, StateSubmitting:
		return ErrInvalidTransition
	}
	s.Mode = m
	s.Error = ""
	if s.State == StateError {
		s.State = s.formState()
	}
	return nil
}

// BeginSubmit marks the session as submitting. A submission that has been in
// flight longer than staleAfter is assumed lost and may be replaced.
func (s *Session) BeginSubmit(now time.Time, staleAfter time.Duration) error {
	switch s.State {
	case StatePasswordEntry, StateError:
	case StateSubmitting:
		if !s.staleSubmission(now, staleAfter) {
			return ErrSubmissionInProgress
		}
	default:
		return ErrInvalidTransition
	}
	if s.Email == "" {
		return ErrInvalidTransition
	}
	s.State = StateSubmitting
	s.Error = ""
	s.UpdatedAt = now
	return nil
}

func (s *Session) staleSubmission(now time.Time, staleAfter time.Duration) bool {
	if staleAfter <= 0 {
		return false
	}
	return now.Sub(s.UpdatedAt) >= staleAfter
}

// AllowOAuth reports whether a provider redirect may start. The state is
// left as is; the browser leaves the page on success.
func (s *Session) AllowOAuth() error {
	switch s.State {
	case StateChoosingMethod, StatePasswordEntry, StateError:
		return nil
	case StateSubmitting:
		return ErrSubmissionInProgress
	}
	return ErrInvalidTransition
}

// Fail records a rejected submission; the email is kept so the form can be
// corrected.
func (s *Session) Fail(message string) {
	if s.State != StateSubmitting {
		return
	}
	s.State = StateError
	s.Error = messageOrDefault(message)
}

// Finish closes the modal after a successful sign-up or sign-in and leaves
// a notice for the landing page.
func (s *Session) Finish(notice string) {
	s.Close()
	s.Notice = strings.TrimSpace(notice)
}

// ShowError opens the modal in the error state without a submission, e.g.
// for local validation or OAuth failures.
func (s *Session) ShowError(message string) error {
	if s.State == StateSubmitting {
		return ErrSubmissionInProgress
	}
	s.State = StateError
	s.Error = messageOrDefault(message)
	return nil
}

// Screen is the form shown for the current state: the method chooser or the
// password form.
func (s Session) Screen() State {
	switch s.State {
	case StateClosed:
		return StateClosed
	case StatePasswordEntry, StateSubmitting:
		return StatePasswordEntry
	case StateError:
		return s.formState()
	default:
		return StateChoosingMethod
	}
}

func (s Session) formState() State {
	if s.Email == "" {
		return StateChoosingMethod
	}
	return StatePasswordEntry
}

func messageOrDefault(message string) string {
	if m := strings.TrimSpace(message); m != "" {
		return m
	}
	return defaultErrorMessage
}
