package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DeviceCookie names the cookie that ties a browser to its session.
const DeviceCookie = "transmit_device"

type deviceKey struct{}

// Device assigns every browser a random device token. The token scopes the
// browser's session storage; it is an identifier, not a credential.
func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var device string
		if c, err := r.Cookie(DeviceCookie); err == nil {
			if id, err := uuid.Parse(c.Value); err == nil {
				device = id.String()
			}
		}

		if device == "" {
			device = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     DeviceCookie,
				Value:    device,
				Path:     "/",
				Expires:  time.Now().AddDate(1, 0, 0),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				Secure:   r.TLS != nil,
			})
		}

		ctx := context.WithValue(r.Context(), deviceKey{}, device)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DeviceFrom returns the token set by Device.
func DeviceFrom(ctx context.Context) string {
	device, _ := ctx.Value(deviceKey{}).(string)
	return device
}
