package res

// CommonResponse is the uniform envelope returned by every endpoint.
type CommonResponse[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func OK[T any](message string, data T) CommonResponse[T] {
	return CommonResponse[T]{Success: true, Message: message, Data: data}
}

func Fail(message string) CommonResponse[any] {
	return CommonResponse[any]{Success: false, Message: message, Data: nil}
}
