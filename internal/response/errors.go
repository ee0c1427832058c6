package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrStaffAccessOnly   ErrCode = "STAFF_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation       ErrCode = "VALIDATION_ERROR"
	ErrInvalidID        ErrCode = "INVALID_ID"
	ErrInvalidPayload   ErrCode = "INVALID_PAYLOAD"
	ErrInvalidEventType ErrCode = "INVALID_EVENT_TYPE"
	ErrInvalidSeverity  ErrCode = "INVALID_SEVERITY"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrAttemptNotFound ErrCode = "ATTEMPT_NOT_FOUND"
	ErrExamNotFound    ErrCode = "EXAM_NOT_FOUND"

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	ErrInvalidState          ErrCode = "INVALID_STATE"
	ErrAnswerChangeForbidden ErrCode = "ANSWER_CHANGE_NOT_ALLOWED"
	ErrReviewNotAllowed      ErrCode = "REVIEW_NOT_ALLOWED"
	ErrMaxAttemptsReached    ErrCode = "MAX_ATTEMPTS_REACHED"
	ErrExamNotAvailable      ErrCode = "EXAM_NOT_AVAILABLE"
	ErrInvalidEntryToken     ErrCode = "INVALID_ENTRY_TOKEN"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrStaffAccessOnly:
		return "Sumber daya ini terbatas untuk pengawas dan administrator."
	case ErrAdminAccessOnly:
		return "Sumber daya ini terbatas untuk administrator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrInvalidEventType:
		return "Jenis kejadian anti-kecurangan tidak dikenal."
	case ErrInvalidSeverity:
		return "Tingkat keparahan tidak dikenal."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrAttemptNotFound:
		return "Sesi ujian tidak ditemukan."
	case ErrExamNotFound:
		return "Ujian tidak ditemukan."

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	case ErrInvalidState:
		return "Tindakan tidak diizinkan pada status ujian saat ini."
	case ErrAnswerChangeForbidden:
		return "Ujian ini tidak mengizinkan perubahan jawaban."
	case ErrReviewNotAllowed:
		return "Ujian ini tidak mengizinkan peninjauan jawaban."
	case ErrMaxAttemptsReached:
		return "Batas jumlah percobaan ujian telah tercapai."
	case ErrExamNotAvailable:
		return "Ujian ini saat ini tidak tersedia."
	case ErrInvalidEntryToken:
		return "Token masuk ujian tidak valid."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
