// Package http exposes the lending and notification operations over HTTP.
//
// The router serves the following endpoints:
//   - POST /api/loans: borrows a book. Body: {"userId","bookId"}. Responds 201 with
//     the `loanDTO` defined in loan_handler.go, 409 for conflicts and 403 for users
//     that are not approved.
//   - POST /api/loans/{id}/return: returns a loan. Returning twice responds 200 with
//     "alreadyReturned": true.
//   - POST /api/triggers/{due-today,due-tomorrow,overdue,inactivity}: runs one pass and
//     responds with the trigger envelope {success, message, processedCount, sentCount,
//     failedCount, details}. With ?async=true the pass runs on the worker pool and the
//     response is 202 with the job id.
//   - POST /api/triggers/consolidated: runs the three reminder passes. Responds 200 on
//     full success, 207 on partial success and 500 when every pass failed.
//   - GET /api/triggers/preview: recipient counts per window without sending.
//   - GET /api/jobs/{id}: status and result of an async job.
//   - POST /api/users/{id}/notifications: sends an account notice. Body: {"kind"}.
//   - GET /api/notifications/log: audit rows filtered by status, kind and correlationId.
//   - POST /api/notifications/worker: queue callback carrying a signed batch.
//   - GET /healthz and GET /metrics.
//
// Trigger routes require "Authorization: Bearer <secret>" when a trigger secret is
// configured.
package http
