package call

// Phase is the Session's state-machine position.
type Phase string

const (
	PhaseGreeting             Phase = "Greeting"
	PhaseListening            Phase = "Listening"
	PhaseResponding           Phase = "Responding"
	PhaseAwaitingConfirmation Phase = "AwaitingConfirmation"
	PhaseEnding               Phase = "Ending"
)
