package common

import "context"

type contextKey string

const operatorIDKey contextKey = "operator_id"

// WithOperatorID кладёт ID авторизованного оператора в контекст запроса.
func WithOperatorID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, operatorIDKey, id)
}

// OperatorID — ID оператора из контекста, 0 если запрос не авторизован.
func OperatorID(ctx context.Context) int64 {
	id, _ := ctx.Value(operatorIDKey).(int64)
	return id
}
