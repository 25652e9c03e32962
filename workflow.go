package goGuard

import (
	"fmt"

	"github.com/MrEthical07/goGuard/internal/fsm"
)

// WorkflowState names a step of the login, registration or reset workflow.
type WorkflowState = fsm.State

// Login workflow states.
const (
	LoginIdle                   WorkflowState = "idle"
	LoginAwaitingIPConfirmation WorkflowState = "awaiting_ip_confirmation"
	LoginAuthenticated          WorkflowState = "authenticated"
)

// Registration and password reset workflow states.
const (
	RegistrationCollectIdentity WorkflowState = "collect_identity"
	ResetIdentifyUser           WorkflowState = "identify_user"
	StepCollectOTP              WorkflowState = "collect_otp"
	StepCollectPassword         WorkflowState = "collect_password"
	StepComplete                WorkflowState = "complete"
)

const (
	evLoginSucceeded   fsm.Event = "login_succeeded"
	evIPChallenged     fsm.Event = "ip_challenged"
	evIPConfirmed      fsm.Event = "ip_confirmed"
	evIPAbandoned      fsm.Event = "ip_abandoned"
	evIdentityAccepted fsm.Event = "identity_accepted"
	evOTPVerified      fsm.Event = "otp_verified"
	evCommitted        fsm.Event = "committed"
	evIdentityRejected fsm.Event = "identity_rejected"
)

// A new login may begin from any state; only a pending confirmation can be
// confirmed or abandoned.
var loginWorkflow = fsm.Define("login", LoginIdle,
	fsm.Transition{From: LoginIdle, On: evLoginSucceeded, To: LoginAuthenticated},
	fsm.Transition{From: LoginAwaitingIPConfirmation, On: evLoginSucceeded, To: LoginAuthenticated},
	fsm.Transition{From: LoginAuthenticated, On: evLoginSucceeded, To: LoginAuthenticated},
	fsm.Transition{From: LoginIdle, On: evIPChallenged, To: LoginAwaitingIPConfirmation},
	fsm.Transition{From: LoginAwaitingIPConfirmation, On: evIPChallenged, To: LoginAwaitingIPConfirmation},
	fsm.Transition{From: LoginAuthenticated, On: evIPChallenged, To: LoginAwaitingIPConfirmation},
	fsm.Transition{From: LoginAwaitingIPConfirmation, On: evIPConfirmed, To: LoginAuthenticated},
	fsm.Transition{From: LoginAwaitingIPConfirmation, On: evIPAbandoned, To: LoginIdle},
)

// RegisterStart resets the machine before firing evIdentityAccepted, so
// registration can be restarted from any step.
var registrationWorkflow = fsm.Define("registration", RegistrationCollectIdentity,
	fsm.Transition{From: RegistrationCollectIdentity, On: evIdentityAccepted, To: StepCollectOTP},
	fsm.Transition{From: StepCollectOTP, On: evOTPVerified, To: StepCollectPassword},
	fsm.Transition{From: StepCollectPassword, On: evCommitted, To: StepComplete},
	// The username was taken between start and finish.
	fsm.Transition{From: StepCollectPassword, On: evIdentityRejected, To: RegistrationCollectIdentity},
)

var resetWorkflow = fsm.Define("password_reset", ResetIdentifyUser,
	fsm.Transition{From: ResetIdentifyUser, On: evIdentityAccepted, To: StepCollectOTP},
	fsm.Transition{From: StepCollectOTP, On: evOTPVerified, To: StepCollectPassword},
	fsm.Transition{From: StepCollectPassword, On: evCommitted, To: StepComplete},
	// The account disappeared before the new password was stored.
	fsm.Transition{From: StepCollectPassword, On: evIdentityRejected, To: ResetIdentifyUser},
)

// expect fails with ErrWorkflowState unless m accepts e.
func expect(m *fsm.Machine, e fsm.Event) error {
	if m.Can(e) {
		return nil
	}
	return fmt.Errorf("%w: %s is %s", ErrWorkflowState, m.Name(), m.State())
}

// restart moves m back to its initial state and fires e.
func restart(m *fsm.Machine, e fsm.Event) {
	m.Reset()
	_ = m.Fire(e)
}
