package context

import "context"

type ContextKey string

var (
	RequestIDKey = ContextKey("X-Request-Id")
	MethodKey    = ContextKey("X-Method")
	RouteKey     = ContextKey("X-Route")
	RemoteIPKey  = ContextKey("X-Remote-Ip")
	BatchIDKey   = ContextKey("X-Batch-Id")
	OperationKey = ContextKey("X-Operation")
)

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	return getString(ctx, MethodKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	return getString(ctx, RouteKey)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	return getString(ctx, RemoteIPKey)
}

// SetBatchID tags the context with the batch an operation works on so log
// lines from every layer carry it.
func SetBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, BatchIDKey, batchID)
}

func GetBatchID(ctx context.Context) string {
	return getString(ctx, BatchIDKey)
}

func SetOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, OperationKey, operation)
}

func GetOperation(ctx context.Context) string {
	return getString(ctx, OperationKey)
}

// Fields returns the context values worth logging.
func Fields(ctx context.Context) map[string]any {
	fields := map[string]any{}
	for key, value := range map[string]string{
		"request_id": GetRequestID(ctx),
		"method":     GetMethod(ctx),
		"route":      GetRoute(ctx),
		"remote_ip":  GetRemoteIP(ctx),
		"batch_id":   GetBatchID(ctx),
		"operation":  GetOperation(ctx),
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

func getString(ctx context.Context, key ContextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}
