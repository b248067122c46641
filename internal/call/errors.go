package call

import "errors"

// Error taxonomy kinds, matching spec.md §7 — not concrete error
// types but sentinels a worker can wrap with %w and test with
// errors.Is when deciding whether to recover locally or escalate.
var (
	ErrTransientUpstream = errors.New("transient upstream error")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrPolicyViolation   = errors.New("policy violation")
	ErrFatal             = errors.New("fatal session error")
)

// ApologySentence is spec.md §7's canonical user-visible fallback
// line: the user never hears an engineering-flavoured error.
const ApologySentence = "Sorry, I'm having trouble with that. Let's continue."

// ToolFailureSentence is spoken in place of a tool's result when
// execution fails (spec.md §4.8); the tool is not retried.
const ToolFailureSentence = "I wasn't able to do that."
