package syncclient

import (
	"fmt"
	"net/http"

	"github.com/marcus/offsync/internal/models"
)

// Variant selects the default, force-apply or merge-submit form of an endpoint.
type Variant int

const (
	VariantDefault Variant = iota
	VariantForce
	VariantMerge
)

func (v Variant) suffix() string {
	switch v {
	case VariantForce:
		return "/force"
	case VariantMerge:
		return "/merge"
	}
	return ""
}

type routes struct {
	create string
	sync   string // update and delete
}

var endpointTable = map[models.ResourceType]routes{
	models.ResourceBooking:      {"/bookings", "/bookings/sync"},
	models.ResourceProfile:      {"/user/profile", "/user/profile/sync"},
	models.ResourcePayment:      {"/payments", "/payments/sync"},
	models.ResourceNotification: {"/notifications", "/notifications/sync"},
	models.ResourceCustom:       {"/sync/custom", "/sync/custom"},
}

// Endpoint returns the HTTP method and path for a mutation.
// create is POST, update is PUT and delete is DELETE.
func Endpoint(rt models.ResourceType, action models.Action, v Variant) (method, path string, err error) {
	r, ok := endpointTable[rt]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", models.ErrInvalidResourceType, rt)
	}
	switch action {
	case models.ActionCreate:
		return http.MethodPost, r.create + v.suffix(), nil
	case models.ActionUpdate:
		return http.MethodPut, r.sync + v.suffix(), nil
	case models.ActionDelete:
		return http.MethodDelete, r.sync + v.suffix(), nil
	}
	return "", "", fmt.Errorf("%w: %q", models.ErrInvalidAction, action)
}
