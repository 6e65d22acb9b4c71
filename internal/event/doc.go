// Package event provides a pub-sub event bus that decouples devcrew's
// subsystems from the code that reports on them.
//
// The team workflow, the analysis cache, the backup manager and the error
// handler publish events without knowing who listens. The CLI subscribes to
// render progress, and the metrics package subscribes to count outcomes.
//
// # Main Types
//
//   - [Event]: interface all events implement (EventType and Timestamp)
//   - [Bus]: synchronous dispatcher, safe for concurrent use
//   - [Handler]: func(Event)
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - team.phase_changed, team.task_completed, team.vote_tallied, team.finished
//   - cache.hit, cache.miss, cache.evicted
//   - backup.created
//   - error.handled
//
// # Basic Usage
//
//	bus := event.NewBus()
//	bus.Subscribe(event.TypeVoteTallied, func(e event.Event) {
//	    vote := e.(event.VoteTalliedEvent)
//	    fmt.Printf("iteration %d: %d approvals\n", vote.Iteration, vote.Approvals)
//	})
//
// Handlers run synchronously on the publishing goroutine. A panicking handler
// is recovered and does not prevent delivery to the remaining handlers.
package event
