package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/eshaffer321/marketplace-backend/internal/api/dto"
)

// VendorHeader carries the authenticated vendor's id. Authentication happens
// upstream; this service trusts the header.
const VendorHeader = "X-Vendor-ID"

type vendorKey struct{}

// Vendor requires a positive vendor id in VendorHeader and stores it in the
// request context.
func Vendor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(VendorHeader)
		id, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || id <= 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(dto.UnauthorizedError(VendorHeader + " header must be a positive vendor id"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithVendorID(r.Context(), id)))
	})
}

// WithVendorID returns a context carrying the vendor id.
func WithVendorID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, vendorKey{}, id)
}

// VendorID returns the vendor id stored by Vendor.
func VendorID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(vendorKey{}).(int64)
	return id, ok
}
