package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"staybook/internal/domain"
	"staybook/internal/models"
	"staybook/internal/report"

	"github.com/labstack/echo/v4"
)

type AvailabilityChecker interface {
	CheckDaily(ctx context.Context, q models.DailyQuery) (*models.DailyAvailability, error)
	CheckHourly(ctx context.Context, q models.HourlyQuery) (*models.HourlyAvailability, error)
}

type InventoryManager interface {
	SetOverride(ctx context.Context, roomTypeID int64, o models.InventoryOverride) error
}

type BookingCreator interface {
	CreateBooking(ctx context.Context, idempotencyKey string, req models.ReservationRequest) (*models.Booking, error)
}

type BookingLifecycle interface {
	Cancel(ctx context.Context, bookingID int64, reason string) (*models.Booking, error)
	CheckIn(ctx context.Context, bookingID int64) (*models.Booking, error)
	CheckOut(ctx context.Context, bookingID int64) (*models.Booking, error)
	MarkNoShow(ctx context.Context, bookingID int64) (*models.Booking, error)
}

type PaymentProcessor interface {
	InitiatePayment(ctx context.Context, bookingID int64, method string) (*models.OrderDescriptor, error)
	ConfirmPayment(ctx context.Context, paymentID int64, gatewayPaymentID, signature string) (*models.ConfirmResult, error)
	ProcessRefund(ctx context.Context, bookingID, amount int64) (*models.RefundResult, error)
}

// Store is the read side used directly by the API.
type Store interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	PingContext(ctx context.Context) error
}

type SettlementWriter interface {
	Write(ctx context.Context, w io.Writer, hotelID int64, from, to time.Time) (report.Totals, error)
}

// Services bundles what the handlers call.
type Services struct {
	Availability AvailabilityChecker
	Inventory    InventoryManager
	Reservations BookingCreator
	Lifecycle    BookingLifecycle
	Payments     PaymentProcessor
	Store        Store
	Exporter     SettlementWriter
}

type handlers struct {
	svc Services
}

const idempotencyHeader = "Idempotency-Key"

type createBookingRequest struct {
	HotelID     int64  `json:"hotel_id"`
	RoomTypeID  int64  `json:"room_type_id"`
	BookingType string `json:"booking_type"`
	CheckIn     string `json:"check_in"`
	CheckOut    string `json:"check_out"`
	StartTime   string `json:"start_time"`
	NumHours    int    `json:"num_hours"`
	NumRooms    int    `json:"num_rooms"`
	NumGuests   int    `json:"num_guests"`
	GuestName   string `json:"guest_name"`
	GuestEmail  string `json:"guest_email"`
	GuestPhone  string `json:"guest_phone"`
	// ключ можно передать и в теле, заголовок приоритетнее
	IdempotencyKey string `json:"idempotency_key"`
}

type initiatePaymentRequest struct {
	Method string `json:"method"`
}

type confirmPaymentRequest struct {
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type refundRequest struct {
	Amount int64 `json:"amount"`
}

type inventoryRequest struct {
	Date          string `json:"date"`
	SlotStart     string `json:"slot_start"`
	PriceOverride *int64 `json:"price_override"`
	MinStayNights int    `json:"min_stay_nights"`
	IsClosed      bool   `json:"is_closed"`
}

func (h *handlers) register(g *echo.Group) {
	g.GET("/hotels/:id/availability/daily", h.dailyAvailability)
	g.GET("/hotels/:id/availability/hourly", h.hourlyAvailability)
	g.GET("/hotels/:id/settlements/export", h.exportSettlements)
	g.PUT("/room-types/:id/inventory", h.setInventory)

	g.POST("/bookings", h.createBooking)
	g.GET("/bookings/:id", h.getBooking)
	g.POST("/bookings/:id/cancel", h.cancelBooking)
	g.POST("/bookings/:id/check-in", h.checkIn)
	g.POST("/bookings/:id/check-out", h.checkOut)
	g.POST("/bookings/:id/no-show", h.noShow)
	g.POST("/bookings/:id/payments", h.initiatePayment)
	g.POST("/bookings/:id/refunds", h.refund)
	g.POST("/payments/:id/confirm", h.confirmPayment)
}

func (h *handlers) dailyAvailability(c echo.Context) error {
	hotelID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	q := models.DailyQuery{HotelID: hotelID}
	if q.CheckIn, err = dateQuery(c, "check_in", true); err != nil {
		return err
	}
	if q.CheckOut, err = dateQuery(c, "check_out", false); err != nil {
		return err
	}
	if q.RoomTypeID, err = int64Query(c, "room_type_id"); err != nil {
		return err
	}
	if q.NumRooms, err = intQuery(c, "rooms", 1); err != nil {
		return err
	}
	if q.NumGuests, err = intQuery(c, "guests", 0); err != nil {
		return err
	}

	res, err := h.svc.Availability.CheckDaily(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *handlers) hourlyAvailability(c echo.Context) error {
	hotelID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	q := models.HourlyQuery{HotelID: hotelID, StartTime: strings.TrimSpace(c.QueryParam("start_time"))}
	if q.Date, err = dateQuery(c, "date", true); err != nil {
		return err
	}
	if q.RoomTypeID, err = int64Query(c, "room_type_id"); err != nil {
		return err
	}
	if q.NumHours, err = intQuery(c, "hours", 0); err != nil {
		return err
	}
	if q.NumRooms, err = intQuery(c, "rooms", 1); err != nil {
		return err
	}

	res, err := h.svc.Availability.CheckHourly(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *handlers) createBooking(c echo.Context) error {
	var body createBookingRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	req := models.ReservationRequest{
		HotelID:     body.HotelID,
		RoomTypeID:  body.RoomTypeID,
		BookingType: body.BookingType,
		StartTime:   body.StartTime,
		NumHours:    body.NumHours,
		NumRooms:    body.NumRooms,
		NumGuests:   body.NumGuests,
		GuestName:   body.GuestName,
		GuestEmail:  body.GuestEmail,
		GuestPhone:  body.GuestPhone,
	}
	var err error
	if req.CheckIn, err = parseDate("check_in", body.CheckIn, true); err != nil {
		return err
	}
	if req.CheckOut, err = parseDate("check_out", body.CheckOut, false); err != nil {
		return err
	}

	key := strings.TrimSpace(c.Request().Header.Get(idempotencyHeader))
	if key == "" {
		key = strings.TrimSpace(body.IdempotencyKey)
	}

	b, err := h.svc.Reservations.CreateBooking(c.Request().Context(), key, req)
	if err != nil {
		return err
	}
	c.Response().Header().Set(idempotencyHeader, b.IdempotencyKey)
	return c.JSON(http.StatusCreated, b)
}

func (h *handlers) getBooking(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	b, err := h.svc.Store.GetBooking(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *handlers) cancelBooking(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body cancelRequest
	if err := bindOptional(c, &body); err != nil {
		return err
	}
	b, err := h.svc.Lifecycle.Cancel(c.Request().Context(), id, strings.TrimSpace(body.Reason))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *handlers) checkIn(c echo.Context) error {
	return h.stay(c, h.svc.Lifecycle.CheckIn)
}

func (h *handlers) checkOut(c echo.Context) error {
	return h.stay(c, h.svc.Lifecycle.CheckOut)
}

func (h *handlers) noShow(c echo.Context) error {
	return h.stay(c, h.svc.Lifecycle.MarkNoShow)
}

func (h *handlers) stay(c echo.Context, apply func(ctx context.Context, id int64) (*models.Booking, error)) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	b, err := apply(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *handlers) initiatePayment(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body initiatePaymentRequest
	if err := bindOptional(c, &body); err != nil {
		return err
	}
	order, err := h.svc.Payments.InitiatePayment(c.Request().Context(), id, strings.TrimSpace(body.Method))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, order)
}

func (h *handlers) confirmPayment(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body confirmPaymentRequest
	if err := bindOptional(c, &body); err != nil {
		return err
	}
	res, err := h.svc.Payments.ConfirmPayment(c.Request().Context(), id, strings.TrimSpace(body.GatewayPaymentID), body.Signature)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *handlers) refund(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body refundRequest
	if err := bindOptional(c, &body); err != nil {
		return err
	}
	res, err := h.svc.Payments.ProcessRefund(c.Request().Context(), id, body.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *handlers) setInventory(c echo.Context) error {
	roomTypeID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body inventoryRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	o := models.InventoryOverride{
		SlotStart:     strings.TrimSpace(body.SlotStart),
		PriceOverride: body.PriceOverride,
		MinStayNights: body.MinStayNights,
		IsClosed:      body.IsClosed,
	}
	if o.Date, err = parseDate("date", body.Date, true); err != nil {
		return err
	}
	if err := h.svc.Inventory.SetOverride(c.Request().Context(), roomTypeID, o); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) exportSettlements(c echo.Context) error {
	hotelID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	from, err := dateQuery(c, "from", true)
	if err != nil {
		return err
	}
	to, err := dateQuery(c, "to", true)
	if err != nil {
		return err
	}
	if to.Before(from) {
		return domain.Invalid("to", "must not be before from")
	}

	var buf bytes.Buffer
	if _, err := h.svc.Exporter.Write(c.Request().Context(), &buf, hotelID, from, to); err != nil {
		return err
	}
	fileName := "settlement_" + strconv.FormatInt(hotelID, 10) + "_" + from.Format(models.DateLayout) + "_to_" + to.Format(models.DateLayout) + ".xlsx"
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+fileName+`"`)
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *handlers) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) readyz(c echo.Context) error {
	if err := h.svc.Store.PingContext(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

// bindOptional binds a JSON body when one was sent.
func bindOptional(c echo.Context, dst interface{}) error {
	if c.Request().ContentLength == 0 {
		return nil
	}
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

func parseDate(field, raw string, required bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return time.Time{}, domain.Invalid(field, "is required")
		}
		return time.Time{}, nil
	}
	d, err := models.ParseDay(raw)
	if err != nil {
		return time.Time{}, domain.Invalid(field, "invalid date format; expected YYYY-MM-DD")
	}
	return d, nil
}

func dateQuery(c echo.Context, name string, required bool) (time.Time, error) {
	return parseDate(name, c.QueryParam(name), required)
}

func intQuery(c echo.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Invalid(name, "must be an integer")
	}
	return v, nil
}

func int64Query(c echo.Context, name string) (int64, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, domain.Invalid(name, "must be an integer")
	}
	return v, nil
}
