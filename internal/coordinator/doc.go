// Package coordinator runs the generate, validate and reassign loop.
//
// A run moves through an explicit state table:
//
//	pending -> generating -> validating -> accepted
//	                             |-> reassigning -> generating ...
//	                             |-> exhausted
//	(any non-terminal)       -> cancelled | faulted
//
// Each rejected attempt feeds its verdict's diagnostics into the next
// generation call. The attempt budget bounds the loop; collaborator faults
// and timeouts abort it immediately without consuming a retry.
//
// Every terminal outcome returns a *Result with the full attempt log. All
// outcomes other than acceptance also return a typed error:
// *ExhaustedRetriesError, *CollaboratorError, *TimeoutError or
// *CancelledError.
package coordinator
