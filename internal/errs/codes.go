package errs

// Code identifies a protocol or HTTP error in a stable, wire-visible way.
type Code string

// WebSocket frame error codes.
const (
	CodeSessionNotFound  Code = "session-not-found"
	CodeMissingToken     Code = "missing-token"
	CodeInvalidToken     Code = "invalid-token"
	CodeInvalidAction    Code = "invalid-action"
	CodeSessionExpired   Code = "session-expired"
	CodeNotAuthenticated Code = "not-authenticated"
	CodeProcessingError  Code = "processing-error"
	CodeConversionError  Code = "conversion-error"
	CodeSendError        Code = "send-error"
)

// HTTP error codes for the session-creation surface.
const (
	CodeInvalidRequest   Code = "invalid-request"
	CodeUnauthorized     Code = "unauthorized"
	CodeQuotaExceeded    Code = "quota-exceeded"
	CodeConversionFailed Code = "conversion-failed"
)

// Locales for error messages.
const (
	LocaleEN = "en"
	LocaleFA = "fa"
)

var messages = map[Code]struct{ en, fa string }{
	CodeSessionNotFound:  {"Session not found", "نشست یافت نشد"},
	CodeMissingToken:     {"Missing authentication token", "توکن احراز هویت موجود نیست"},
	CodeInvalidToken:     {"Invalid token", "توکن نامعتبر است"},
	CodeInvalidAction:    {"Invalid action", "عملیات نامعتبر است"},
	CodeSessionExpired:   {"Session expired or removed", "نشست منقضی یا پاک شده است"},
	CodeNotAuthenticated: {"Socket not authenticated", "سوکت احراز هویت نشده است"},
	CodeProcessingError:  {"Error processing message", "خطا در پردازش پیام"},
	CodeConversionError:  {"Conversion error", "خطا در تبدیل محتوا"},
	CodeSendError:        {"Error sending message", "خطا در ارسال پیام"},
	CodeInvalidRequest:   {"Invalid request", "درخواست نامعتبر"},
	CodeUnauthorized:     {"Unauthorized access", "دسترسی غیرمجاز"},
	CodeQuotaExceeded:    {"Generating new session is not allowed", "ایجاد نشست جدید مجاز نمی باشد"},
	CodeConversionFailed: {"Failed to generate document file", "تولید فایل سند با خطا مواجه شد"},
}

// Message returns the English message for a code.
func Message(code Code) string {
	return Localize(code, LocaleEN)
}

// Localize returns the message for a code in the given locale ("en" or "fa").
func Localize(code Code, locale string) string {
	msg, ok := messages[code]
	if !ok {
		if locale == LocaleFA {
			return "خطای ناشناخته"
		}
		return "Unknown error"
	}
	if locale == LocaleFA {
		return msg.fa
	}
	return msg.en
}
