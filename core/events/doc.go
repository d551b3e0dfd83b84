// Package events defines the dosing events emitted on the event bus.
//
// Available event types:
//   - StateChanged: controller phase transition
//   - SampleRecorded: a weight point appended to the active trace
//   - IterationCompleted: one dispense/stabilize round evaluated
//   - DoseFinished: a dosing session ended (completed, timed out or aborted)
//   - FlushFinished: a stand-alone flush ended
//   - RequestRejected: a request arrived while the controller was busy
//   - StateTimeout: the timeout guard forced the controller back to idle
//   - IncompleteDose: final verification found the dose short of target
package events
