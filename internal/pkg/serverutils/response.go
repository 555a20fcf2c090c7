package serverutils

type BaseResponse[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func SuccessResponse[T any](message string, data T) BaseResponse[T] {
	return BaseResponse[T]{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func ErrorResponse(message string, data interface{}) BaseResponse[interface{}] {
	return BaseResponse[interface{}]{
		Success: false,
		Message: message,
		Data:    data,
	}
}
