// Package client is a small HTTP client for the staybook API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"staybook/internal/models"

	"github.com/redis/go-redis/v9"
)

// Client calls the /api/v1 endpoints with an API key pair.
type Client struct {
	baseURL    string
	apiKey     string
	apiExtra   string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// APIError is a non-2xx answer decoded from the error body.
type APIError struct {
	Status  int    `json:"-"`
	Kind    string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Date    string `json:"date,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s (%s %s)", e.Status, e.Kind, e.Message, e.Code, e.Date)
	}
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Kind, e.Message)
}

func New(baseURL, apiKey, apiExtra string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		apiExtra:   apiExtra,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache enables caching of availability answers.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

func (c *Client) DailyAvailability(ctx context.Context, q models.DailyQuery) (*models.DailyAvailability, error) {
	v := url.Values{}
	v.Set("check_in", q.CheckIn.Format(models.DateLayout))
	if !q.CheckOut.IsZero() {
		v.Set("check_out", q.CheckOut.Format(models.DateLayout))
	}
	if q.RoomTypeID > 0 {
		v.Set("room_type_id", strconv.FormatInt(q.RoomTypeID, 10))
	}
	if q.NumRooms > 0 {
		v.Set("rooms", strconv.Itoa(q.NumRooms))
	}
	if q.NumGuests > 0 {
		v.Set("guests", strconv.Itoa(q.NumGuests))
	}

	endpoint := fmt.Sprintf("%s/api/v1/hotels/%d/availability/daily?%s", c.baseURL, q.HotelID, v.Encode())
	var resp models.DailyAvailability
	if err := c.cachedGet(ctx, "staybook:client:"+endpoint, endpoint, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) HourlyAvailability(ctx context.Context, q models.HourlyQuery) (*models.HourlyAvailability, error) {
	v := url.Values{}
	v.Set("date", q.Date.Format(models.DateLayout))
	if q.RoomTypeID > 0 {
		v.Set("room_type_id", strconv.FormatInt(q.RoomTypeID, 10))
	}
	if q.StartTime != "" {
		v.Set("start_time", q.StartTime)
	}
	if q.NumHours > 0 {
		v.Set("hours", strconv.Itoa(q.NumHours))
	}
	if q.NumRooms > 0 {
		v.Set("rooms", strconv.Itoa(q.NumRooms))
	}

	endpoint := fmt.Sprintf("%s/api/v1/hotels/%d/availability/hourly?%s", c.baseURL, q.HotelID, v.Encode())
	var resp models.HourlyAvailability
	if err := c.cachedGet(ctx, "staybook:client:"+endpoint, endpoint, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateBooking places a hold. An empty key lets the server generate one.
func (c *Client) CreateBooking(ctx context.Context, idempotencyKey string, req models.ReservationRequest) (*models.Booking, error) {
	body := map[string]interface{}{
		"hotel_id":     req.HotelID,
		"room_type_id": req.RoomTypeID,
		"booking_type": req.BookingType,
		"check_in":     req.CheckIn.Format(models.DateLayout),
		"start_time":   req.StartTime,
		"num_hours":    req.NumHours,
		"num_rooms":    req.NumRooms,
		"num_guests":   req.NumGuests,
		"guest_name":   req.GuestName,
		"guest_email":  req.GuestEmail,
		"guest_phone":  req.GuestPhone,
	}
	if !req.CheckOut.IsZero() {
		body["check_out"] = req.CheckOut.Format(models.DateLayout)
	}

	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}
	var b models.Booking
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/api/v1/bookings", body, headers, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	var b models.Booking
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/bookings/%d", c.baseURL, id), nil, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) CancelBooking(ctx context.Context, id int64, reason string) (*models.Booking, error) {
	var b models.Booking
	endpoint := fmt.Sprintf("%s/api/v1/bookings/%d/cancel", c.baseURL, id)
	if err := c.doJSON(ctx, http.MethodPost, endpoint, map[string]string{"reason": reason}, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) cachedGet(ctx context.Context, cacheKey, endpoint string, out any) error {
	if c.readCache(ctx, cacheKey, out) {
		return nil
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, nil, out); err != nil {
		return err
	}
	c.writeCache(ctx, cacheKey, out)
	return nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body any, headers map[string]string, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Kind = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
