package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-collections/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-collections/pkg/errors"
	"github.com/angelmondragon/storefront-collections/pkg/logger"
)

const (
	DeviceIDHeader    = "X-Device-Id"
	maxDeviceIDLength = 128
)

// Device requires the X-Device-Id header that scopes guest storage.
func Device(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID := strings.TrimSpace(r.Header.Get(DeviceIDHeader))
			if deviceID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "missing device id"))
				return
			}
			if len(deviceID) > maxDeviceIDLength || strings.ContainsAny(deviceID, ": \t") {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid device id"))
				return
			}

			ctx := WithDeviceID(r.Context(), deviceID)
			if logg != nil {
				ctx = logg.WithDeviceID(ctx, deviceID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
