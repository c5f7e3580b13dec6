// Package audit records every service call made through the HTTP API or the
// MQTT command topics in the service_calls table.
//
// Writes go through a Recorder, which queues calls and stores them from one
// goroutine so a slow disk never delays a service call:
//
//	rec := audit.NewRecorder(audit.NewSQLiteRepository(db.DB), log)
//	rec.Start(ctx)
//	defer rec.Stop()
//
//	rec.Record(audit.NewCall("add_feeding", entryID, data, audit.SourceAPI, subject, record, err))
package audit
