package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"staybook/internal/domain"
	"staybook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentsAndCommissions(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	seedCatalog(t, db)

	b := newTestBooking("pay-1", day("2026-03-05"), 1)
	insertBooking(t, db, b)

	p := &models.Payment{
		BookingID:      b.ID,
		Gateway:        "demo",
		GatewayOrderID: "order_1",
		Method:         "card",
		Amount:         b.TotalAmount,
		Currency:       "INR",
		Status:         models.PaymentStatusCreated,
		Metadata:       json.RawMessage(`{"receipt":"r1"}`),
	}
	require.NoError(t, db.CreatePayment(ctx, p))

	t.Run("LatestPayment", func(t *testing.T) {
		latest, err := db.LatestPayment(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, latest.ID)
		assert.JSONEq(t, `{"receipt":"r1"}`, string(latest.Metadata))

		_, err = db.LatestPayment(ctx, 999)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("FailThenCapture", func(t *testing.T) {
		require.NoError(t, db.MarkPaymentFailed(ctx, p.ID, "pay_x", nil))
		failed, err := db.GetPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusFailed, failed.Status)
		assert.Equal(t, "pay_x", failed.GatewayPaymentID)

		p.GatewayPaymentID = "pay_y"
		err = db.InTx(ctx, func(tx *Tx) error { return tx.CapturePayment(ctx, p, time.Now()) })
		require.NoError(t, err)

		err = db.InTx(ctx, func(tx *Tx) error { return tx.CapturePayment(ctx, p, time.Now()) })
		assert.ErrorIs(t, err, ErrConcurrentModification)
		assert.ErrorIs(t, db.MarkPaymentFailed(ctx, p.ID, "", nil), ErrConcurrentModification)
	})

	t.Run("CommissionOnce", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			err := db.InTx(ctx, func(tx *Tx) error {
				inserted, err := tx.InsertCommission(ctx, b, time.Now())
				assert.Equal(t, i == 0, inserted)
				return err
			})
			require.NoError(t, err)
		}
		n, err := db.CountCommissions(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		c, err := db.GetCommission(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b.CommissionAmount, c.CommissionAmount)
		assert.Equal(t, b.HotelPayout, c.HotelPayout)
	})

	t.Run("RefundAccumulation", func(t *testing.T) {
		var updated *models.Payment
		err := db.InTx(ctx, func(tx *Tx) error {
			var err error
			updated, err = tx.ReserveRefund(ctx, p.ID, 400000)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusPartiallyRefunded, updated.Status)
		assert.Equal(t, int64(400000), updated.RefundAmount)

		err = db.InTx(ctx, func(tx *Tx) error {
			_, err := tx.ReserveRefund(ctx, p.ID, p.Amount)
			return err
		})
		assert.True(t, errors.Is(err, domain.ErrValidation))

		err = db.InTx(ctx, func(tx *Tx) error {
			var err error
			updated, err = tx.CompensateRefund(ctx, p.ID, 400000)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusCaptured, updated.Status)

		err = db.InTx(ctx, func(tx *Tx) error {
			var err error
			if updated, err = tx.ReserveRefund(ctx, p.ID, p.Amount); err != nil {
				return err
			}
			return tx.SetCommissionRefunded(ctx, b.ID, updated.RefundAmount)
		})
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusRefunded, updated.Status)

		err = db.InTx(ctx, func(tx *Tx) error {
			_, err := tx.ReserveRefund(ctx, p.ID, 1)
			return err
		})
		assert.True(t, errors.Is(err, domain.ErrState), "fully refunded payment")

		c, err := db.GetCommission(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.CommissionReversed, c.Status)

		rows, err := db.CommissionsForHotel(ctx, testHotelID, day("2026-03-01"), day("2026-03-31"))
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})
}

func TestEventOutbox(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	err := db.InTx(ctx, func(tx *Tx) error {
		if err := tx.EnqueueEvent(ctx, "booking_created", 7, map[string]int{"booking_id": 7}); err != nil {
			return err
		}
		return tx.EnqueueEvent(ctx, "booking_confirmed", 7, map[string]int{"booking_id": 7})
	})
	require.NoError(t, err)

	now := time.Now()
	events, err := db.GetPendingEvents(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "booking_created", events[0].EventType)
	assert.JSONEq(t, `{"booking_id":7}`, events[0].Payload)

	next := now.Add(time.Hour)
	require.NoError(t, db.UpdateEventStatus(ctx, events[0].ID, models.OutboxRetry, "broker down", &next))
	require.NoError(t, db.UpdateEventStatus(ctx, events[1].ID, models.OutboxFailed, "gave up", nil))

	events, err = db.GetPendingEvents(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = db.GetPendingEvents(ctx, next.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].RetryCount)

	failed, err := db.GetFailedEvents(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].LastError)
	assert.Equal(t, "gave up", *failed[0].LastError)

	require.NoError(t, db.RequeueEvent(ctx, failed[0].ID))
	events, err = db.GetPendingEvents(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, failed[0].ID, events[0].ID)
	assert.Zero(t, events[0].RetryCount)

	err = db.RequeueEvent(ctx, failed[0].ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound), "only failed events are requeued")
}
