// Package audithook is a jobstore extension that writes queue lifecycle
// events to an audit trail.
//
// Every hook emits a structured [AuditEvent] through a [Recorder]:
// info for normal transitions, warning for failed attempts and reaped
// leases, critical for dead-lettering. [SlogRecorder] writes events to a
// logger; any other sink can be plugged in with [RecorderFunc].
//
//	eng, _ := engine.New(s, engine.WithExtension(
//	    audithook.New(audithook.SlogRecorder(logger),
//	        audithook.WithActions(audithook.ActionJobDeadLettered, audithook.ActionJobCancelled),
//	    ),
//	))
package audithook
