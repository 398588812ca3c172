package analyze

// Error はユーザーに提示可能な解析エラーを表します。
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// ErrorCode はジョブ失敗時の分類コードを返します。
func (e *Error) ErrorCode() string {
	return e.Code
}

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}
