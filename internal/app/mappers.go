package app

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"hotelops/internal/domain"
	"hotelops/internal/feed"
)

// NotAvailable replaces missing text fields on decoded documents.
const NotAvailable = "N/A"

/********** alias registries (single source of truth) **********/

var roomAliases = map[string][]string{
	"number":    {"number", "roomNumber", "room_number"},
	"type":      {"type", "roomType", "room_type"},
	"price":     {"price", "rate", "pricePerNight", "price_per_night"},
	"capacity":  {"capacity", "maxGuests", "max_guests"},
	"status":    {"status"},
	"amenities": {"amenities", "facilities"},
	"image":     {"imageUrl", "image_url", "image"},
}

var bookingAliases = map[string][]string{
	"customer_name":  {"customer.name", "customerName", "guestName", "guest_name"},
	"customer_email": {"customer.email", "customerEmail", "guestEmail", "guest_email"},
	"customer_phone": {"customer.phone", "customerPhone", "guestPhone", "guest_phone"},
	"room_type":      {"room.type", "roomType", "room_type"},
	"room_number":    {"room.number", "roomNumber", "room_number"},
	"check_in":       {"checkIn", "check_in", "checkInDate"},
	"check_out":      {"checkOut", "check_out", "checkOutDate"},
	"status":         {"status"},
	"total":          {"totalPrice", "total_price", "amount"},
	"payment":        {"paymentMethod", "payment_method"},
	"requests":       {"specialRequests", "special_requests", "notes"},
	"created_at":     {"createdAt", "created_at"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// firstAlias returns the first non-nil value for a named alias set.
func firstAlias(m map[string]any, aliases map[string][]string, key string) any {
	for _, p := range aliases[key] {
		if v := lookupAny(m, p); v != nil {
			return v
		}
	}
	return nil
}

// textOf accepts strings and numbers (room numbers often arrive as numbers).
func textOf(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

// numberOf accepts float64/int/json.Number/numeric strings like "8,0".
func numberOf(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", "."))
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// timeOf accepts time.Time, RFC 3339 or date-only strings, unix milliseconds,
// and {seconds, nanoseconds} timestamp objects.
func timeOf(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return t.UTC(), !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
		return time.Time{}, false
	case map[string]any:
		secs, ok := numberOf(firstPresent(t, "seconds", "_seconds"))
		if !ok {
			return time.Time{}, false
		}
		nanos, _ := numberOf(firstPresent(t, "nanoseconds", "_nanoseconds", "nanos"))
		return time.Unix(int64(secs), int64(nanos)).UTC(), true
	}
	if ms, ok := numberOf(v); ok && ms > 0 {
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	return time.Time{}, false
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func stringsOf(v any) []string {
	var out []string
	switch t := v.(type) {
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, it := range t {
			if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}

// issues collects healed fields for one document.
type issues struct {
	collection string
	id         string
	list       []*domain.FeedDecodeError
}

func (is *issues) add(field, reason string, def any) {
	is.list = append(is.list, &domain.FeedDecodeError{
		Collection: is.collection,
		DocumentID: is.id,
		Field:      field,
		Default:    def,
		Reason:     reason,
	})
}

/********** room decoder **********/

// DecodeRoom maps a rooms document. Required fields that are missing or
// malformed are defaulted and reported; the room is always returned.
func DecodeRoom(d domain.Document) feed.Result[domain.Room] {
	is := &issues{collection: domain.CollectionRooms, id: d.ID}
	f := d.Fields
	r := domain.Room{ID: d.ID}

	if s, ok := textOf(firstAlias(f, roomAliases, "number")); ok {
		r.Number = s
	} else {
		r.Number = NotAvailable
		is.add("number", "missing", NotAvailable)
	}
	if s, ok := textOf(firstAlias(f, roomAliases, "type")); ok {
		r.Type = s
	} else {
		r.Type = NotAvailable
		is.add("type", "missing", NotAvailable)
	}

	switch p, ok := numberOf(firstAlias(f, roomAliases, "price")); {
	case !ok:
		is.add("price", "missing or not a number", 0.0)
	case p < 0:
		is.add("price", "negative", 0.0)
	default:
		r.Price = p
	}

	switch c, ok := numberOf(firstAlias(f, roomAliases, "capacity")); {
	case !ok:
		r.Capacity = 1
		is.add("capacity", "missing or not a number", 1)
	case c < 1:
		r.Capacity = 1
		is.add("capacity", "not positive", 1)
	default:
		r.Capacity = int(c)
	}

	st, _ := firstAlias(f, roomAliases, "status").(string)
	r.Status = domain.RoomStatus(strings.ToLower(strings.TrimSpace(st)))
	if !r.Status.Valid() {
		is.add("status", "unknown value "+strconv.Quote(st), domain.RoomAvailable)
		r.Status = domain.RoomAvailable
	}

	r.Amenities = stringsOf(firstAlias(f, roomAliases, "amenities"))
	if s, ok := textOf(firstAlias(f, roomAliases, "image")); ok {
		r.ImageURL = s
	}
	return feed.Result[domain.Room]{Value: r, Issues: is.list}
}

/********** booking decoder **********/

// DecodeBooking maps a bookings document. Optional contact fields fall back
// to NotAvailable silently; required ones are reported as well.
func DecodeBooking(d domain.Document) feed.Result[domain.Booking] {
	is := &issues{collection: domain.CollectionBookings, id: d.ID}
	f := d.Fields
	b := domain.Booking{ID: d.ID}

	required := func(key, field string) string {
		if s, ok := textOf(firstAlias(f, bookingAliases, key)); ok {
			return s
		}
		is.add(field, "missing", NotAvailable)
		return NotAvailable
	}
	optional := func(key string) string {
		if s, ok := textOf(firstAlias(f, bookingAliases, key)); ok {
			return s
		}
		return NotAvailable
	}

	b.Customer = domain.Customer{
		Name:  required("customer_name", "customer.name"),
		Email: optional("customer_email"),
		Phone: optional("customer_phone"),
	}
	b.Room = domain.RoomRef{
		Type:   required("room_type", "room.type"),
		Number: required("room_number", "room.number"),
	}

	if ts, ok := timeOf(firstAlias(f, bookingAliases, "check_in")); ok {
		b.CheckIn = ts
	} else {
		is.add("checkIn", "missing or not a timestamp", time.Time{})
	}
	if ts, ok := timeOf(firstAlias(f, bookingAliases, "check_out")); ok {
		b.CheckOut = ts
	} else {
		is.add("checkOut", "missing or not a timestamp", b.CheckIn)
		b.CheckOut = b.CheckIn
	}
	if b.CheckOut.Before(b.CheckIn) {
		is.add("checkOut", "before checkIn", b.CheckIn)
		b.CheckOut = b.CheckIn
	}

	st, _ := firstAlias(f, bookingAliases, "status").(string)
	b.Status = domain.BookingStatus(strings.ToLower(strings.TrimSpace(st)))
	if !b.Status.Valid() {
		is.add("status", "unknown value "+strconv.Quote(st), domain.BookingPending)
		b.Status = domain.BookingPending
	}

	switch p, ok := numberOf(firstAlias(f, bookingAliases, "total")); {
	case !ok:
		is.add("totalPrice", "missing or not a number", 0.0)
	case p < 0:
		is.add("totalPrice", "negative", 0.0)
	default:
		b.TotalPrice = p
	}

	if s, ok := textOf(firstAlias(f, bookingAliases, "payment")); ok {
		b.PaymentMethod = s
	}
	if s, ok := textOf(firstAlias(f, bookingAliases, "requests")); ok {
		b.SpecialRequests = s
	}
	if ts, ok := timeOf(firstAlias(f, bookingAliases, "created_at")); ok {
		b.CreatedAt = ts
	}
	return feed.Result[domain.Booking]{Value: b, Issues: is.list}
}

/********** encoders **********/

func timeField(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func encodeRoom(in domain.NewRoom) map[string]any {
	fields := map[string]any{
		"number":   in.Number,
		"type":     in.Type,
		"price":    in.Price,
		"capacity": in.Capacity,
		"status":   string(in.Status),
	}
	if len(in.Amenities) > 0 {
		am := make([]any, len(in.Amenities))
		for i, a := range in.Amenities {
			am[i] = a
		}
		fields["amenities"] = am
	}
	if in.ImageURL != "" {
		fields["imageUrl"] = in.ImageURL
	}
	return fields
}

func encodeBooking(in domain.NewBooking, createdAt time.Time) map[string]any {
	customer := map[string]any{"name": in.Customer.Name}
	if in.Customer.Email != "" {
		customer["email"] = in.Customer.Email
	}
	if in.Customer.Phone != "" {
		customer["phone"] = in.Customer.Phone
	}
	fields := map[string]any{
		"customer":   customer,
		"room":       map[string]any{"type": in.Room.Type, "number": in.Room.Number},
		"checkIn":    timeField(in.CheckIn),
		"checkOut":   timeField(in.CheckOut),
		"status":     string(in.Status),
		"totalPrice": in.TotalPrice,
		"createdAt":  timeField(createdAt),
	}
	if in.PaymentMethod != "" {
		fields["paymentMethod"] = in.PaymentMethod
	}
	if in.SpecialRequests != "" {
		fields["specialRequests"] = in.SpecialRequests
	}
	return fields
}

func encodeStatus(status string, at time.Time) map[string]any {
	return map[string]any{"status": status, "updatedAt": timeField(at)}
}
