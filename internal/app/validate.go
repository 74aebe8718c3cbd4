package app

import (
	"errors"
	"reflect"
	"strings"

	val "github.com/go-playground/validator/v10"

	"hotelops/internal/domain"
)

var validate = newValidator()

func newValidator() *val.Validate {
	v := val.New(val.WithRequiredStructEnabled())
	// report fields by their json names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func validateStruct(entity string, s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs val.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &domain.ValidationError{Entity: entity}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, domain.FieldError{
			Field:  fieldPath(fe.Namespace()),
			Reason: reason(fe),
		})
	}
	return out
}

// fieldPath drops the struct name prefix: "NewBooking.customer.name" -> "customer.name".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func reason(fe val.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be >= " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gtefield":
		return "must not be before " + fe.Param()
	case "email":
		return "must be an email address"
	case "url":
		return "must be a URL"
	}
	return "failed " + fe.Tag()
}

func normalizeRoom(in domain.NewRoom) domain.NewRoom {
	in.Number = strings.TrimSpace(in.Number)
	in.Type = strings.TrimSpace(in.Type)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	in.Status = domain.RoomStatus(strings.ToLower(strings.TrimSpace(string(in.Status))))
	if in.Status == "" {
		in.Status = domain.RoomAvailable
	}
	return in
}

func normalizeBooking(in domain.NewBooking) domain.NewBooking {
	in.Customer.Name = strings.TrimSpace(in.Customer.Name)
	in.Customer.Email = strings.TrimSpace(in.Customer.Email)
	in.Customer.Phone = strings.TrimSpace(in.Customer.Phone)
	in.Room.Type = strings.TrimSpace(in.Room.Type)
	in.Room.Number = strings.TrimSpace(in.Room.Number)
	in.Status = domain.BookingStatus(strings.ToLower(strings.TrimSpace(string(in.Status))))
	if in.Status == "" {
		in.Status = domain.BookingPending
	}
	return in
}
