package authclient

// Result is the normalized outcome of every public Auther operation.
// Message is always user facing text, Err keeps the underlying cause.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Err     error  `json:"-"`
}

// Ok builds a successful Result.
func Ok[T any](data T, message string) Result[T] {
	return Result[T]{Success: true, Data: data, Message: message}
}

// Fail builds a failed Result with the localized message for err.
func Fail[T any](err error) Result[T] {
	return Result[T]{Success: false, Message: MessageFor(err), Err: err}
}

// Unwrap returns the data and error, for callers that prefer Go style returns.
func (r Result[T]) Unwrap() (T, error) {
	return r.Data, r.Err
}
