package middleware

import "context"

type contextKey string

const (
	ctxDeviceID  contextKey = "device_id"
	ctxRequestID contextKey = "request_id"
)

// DeviceIDFromContext returns the device scope set by Device.
func DeviceIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxDeviceID)
}

// WithDeviceID injects the device identifier into the context.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxDeviceID, deviceID)
}

// RequestIDFromContext returns the id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxRequestID)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
