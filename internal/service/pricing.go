package service

import (
	"math"

	"staybook/internal/models"
)

// Pricer turns room and extra-guest totals into a full quote using a flat
// tax rate in percent.
type Pricer struct {
	taxRate float64
}

func NewPricer(taxRate float64) Pricer {
	return Pricer{taxRate: taxRate}
}

func (p Pricer) Quote(roomTotal, extraGuestTotal int64) models.Quote {
	subtotal := roomTotal + extraGuestTotal
	taxes := PercentOf(subtotal, p.taxRate)
	return models.Quote{
		RoomTotal:       roomTotal,
		ExtraGuestTotal: extraGuestTotal,
		Taxes:           taxes,
		TotalAmount:     subtotal + taxes,
	}
}

// PercentOf returns rate percent of amount, rounded half away from zero.
func PercentOf(amount int64, rate float64) int64 {
	return int64(math.Round(float64(amount) * rate / 100))
}

// Commission splits total into the platform cut and the hotel payout.
func Commission(total int64, rate float64) (commission, payout int64) {
	commission = PercentOf(total, rate)
	return commission, total - commission
}

// extraGuestTotal charges every guest above the base occupancy once per unit
// (night for daily stays, booking for hourly ones).
func extraGuestTotal(rt *models.RoomType, numRooms, numGuests, units int) int64 {
	return int64(rt.ExtraGuests(numRooms, numGuests)) * rt.ExtraGuestCharge * int64(units)
}
