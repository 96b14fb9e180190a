// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements the Russian human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, unauthorized, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., upstream_rejected, template_in_use) are reserved for
//     business logic errors that cannot be conveyed by status alone.
//   - DUPLICATE_ID is kept upper-case because webhook producers already branch on it.
//
// Example response:
//   {
//     "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//     "code": "conflict",
//     "message": "Пользователь с таким email уже существует"
//   }

package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeValidation       = "validation_error"
	ErrCodeInvalidJSON      = "invalid_json"
	ErrCodeDuplicateID      = "DUPLICATE_ID"
	ErrCodeTemplateInactive = "template_inactive"
	ErrCodeTemplateInUse    = "template_in_use"
	ErrCodeConfirmation     = "confirmation_required"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// User-facing messages shared by several handlers.
const (
	msgUnauthorized  = "Не авторизован"
	msgForbidden     = "Недостаточно прав"
	msgInvalidJSON   = "Неверный формат данных JSON"
	msgInvalidData   = "Неверный формат данных"
	msgValidation    = "Ошибка валидации"
	msgInternal      = "Внутренняя ошибка сервера"
	msgCallNotFound  = "Звонок не найден"
	msgTemplateNF    = "Чек-лист не найден"
	msgReviewNF      = "Проверка не найдена"
	msgUserNotFound  = "Пользователь не найден"
	msgDuplicateCall = "Звонок с таким ID уже существует"
)
