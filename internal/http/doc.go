// Package http exposes the schedule policy API.
//
// The router serves:
//   - PUT /v2/schedules/{appId}: replaces the application's policy. Body:
//     {"timezone","specific_schedule":[...],"recurring_schedule":[...]}, or the
//     same object wrapped in "schedules". 200 with an empty body on success, 400
//     with a JSON array of rendered validation messages, 500 with {"message"}
//     when persistence or the trigger store fails.
//   - DELETE /v2/schedules/{appId}: removes the policy and deregisters its
//     triggers. 200, or 404 for unknown applications when so configured.
//   - GET /v2/schedules/{appId}: the stored policy with fingerprint, registered
//     triggers, their upcoming firings and the active schedule. 404 when absent.
//   - GET /healthz: 200 {"status":"ok"} or 503 when storage is unreachable.
//
// Messages are rendered in the language negotiated from Accept-Language.
// Request and response DTOs live in policy_dto.go.
package http
