package services

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"gamecafe_backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingService_CreateBooking_WalkIn(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.bookings.CreateBooking(context.Background(), env.scope, CreateBookingRequest{
		CustomerName: " Aidos ",
		SystemsBooked: []models.SystemRequirement{
			{RoomType: "vip", TerminalType: "pc", NumberOfTerminals: 1},
			{RoomType: "VIP", TerminalType: "PC", NumberOfTerminals: 1},
			{RoomType: "Hall", TerminalType: "PC", NumberOfTerminals: 1},
		},
		Duration: 1.5,
	})

	require.NoError(t, err)
	b := created.Booking
	assert.Empty(t, created.OTP)
	assert.Empty(t, b.OTPHash)
	assert.Equal(t, models.BookingSourceWalkIn, b.Source)
	assert.Equal(t, models.BookingStatusBooked, b.Status)
	assert.Equal(t, "Aidos", b.Customer.Name)
	assert.Equal(t, models.SystemRequirements{
		{RoomType: "VIP", TerminalType: "PC", NumberOfTerminals: 2},
		{RoomType: "Hall", TerminalType: "PC", NumberOfTerminals: 1},
	}, b.SystemsBooked)
	// (2 x 200 + 1 x 100) x 1.5
	assert.True(t, decimal.NewFromInt(750).Equal(b.TotalPrice), b.TotalPrice.String())
	assert.True(t, b.CreatedAt.Equal(env.clock.Now()))
}

func TestBookingService_CreateBooking_LegacyShape(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.bookings.CreateBooking(context.Background(), env.scope, CreateBookingRequest{
		CustomerName:    "Legacy",
		RoomType:        "VIP",
		SystemType:      "PS5",
		NumberOfSystems: 1,
		Duration:        2,
	})

	require.NoError(t, err)
	assert.Equal(t, models.SystemRequirements{{RoomType: "VIP", TerminalType: "PS5", NumberOfTerminals: 1}}, created.Booking.SystemsBooked)
}

func TestBookingService_CreateBooking_RegisteredCustomer(t *testing.T) {
	env := newTestEnv(t)
	phone := "+7 777 123 45 67"
	id, err := env.store.CreateCustomer(context.Background(), &models.RegisteredCustomer{FullName: "Dana", PhoneNumber: &phone})
	require.NoError(t, err)

	created, err := env.bookings.CreateBooking(context.Background(), env.scope, CreateBookingRequest{
		CustomerID:    &id,
		SystemsBooked: []models.SystemRequirement{{RoomType: "Hall", TerminalType: "PC", NumberOfTerminals: 1}},
		Duration:      1,
	})
	require.NoError(t, err)
	require.NotNil(t, created.Booking.Customer.CustomerID)
	assert.Equal(t, id, *created.Booking.Customer.CustomerID)
	assert.Equal(t, "Dana", created.Booking.Customer.Name)
	assert.Equal(t, phone, created.Booking.Customer.Phone)

	missing := id + 50
	_, err = env.bookings.CreateBooking(context.Background(), env.scope, CreateBookingRequest{
		CustomerID:    &missing,
		SystemsBooked: []models.SystemRequirement{{RoomType: "Hall", TerminalType: "PC", NumberOfTerminals: 1}},
		Duration:      1,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBookingService_CreateBooking_Validation(t *testing.T) {
	env := newTestEnv(t)
	valid := []models.SystemRequirement{{RoomType: "VIP", TerminalType: "PC", NumberOfTerminals: 1}}

	tests := []struct {
		name string
		req  CreateBookingRequest
	}{
		{"no requirements", CreateBookingRequest{CustomerName: "x", Duration: 1}},
		{"no customer", CreateBookingRequest{SystemsBooked: valid, Duration: 1}},
		{"zero duration", CreateBookingRequest{CustomerName: "x", SystemsBooked: valid}},
		{"quarter hour", CreateBookingRequest{CustomerName: "x", SystemsBooked: valid, Duration: 1.25}},
		{"unknown source", CreateBookingRequest{CustomerName: "x", SystemsBooked: valid, Duration: 1, Source: "kiosk"}},
		{"unknown room", CreateBookingRequest{CustomerName: "x", Duration: 1,
			SystemsBooked: []models.SystemRequirement{{RoomType: "Roof", TerminalType: "PC", NumberOfTerminals: 1}}}},
		{"over capacity", CreateBookingRequest{CustomerName: "x", Duration: 1,
			SystemsBooked: []models.SystemRequirement{{RoomType: "VIP", TerminalType: "PC", NumberOfTerminals: 4}}}},
		{"zero terminals", CreateBookingRequest{CustomerName: "x", Duration: 1,
			SystemsBooked: []models.SystemRequirement{{RoomType: "VIP", TerminalType: "PC", NumberOfTerminals: 0}}}},
		{"bad payment status", CreateBookingRequest{CustomerName: "x", SystemsBooked: valid, Duration: 1,
			Payment: &models.PaymentRecord{Status: "refunded"}}},
		{"negative payment", CreateBookingRequest{CustomerName: "x", SystemsBooked: valid, Duration: 1,
			Payment: &models.PaymentRecord{Amount: decimal.NewFromInt(-5)}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.bookings.CreateBooking(context.Background(), env.scope, tc.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestBookingService_CreateBooking_ClosedCafe(t *testing.T) {
	env := newTestEnv(t)
	closed := false
	cafe, err := env.catalog.CreateCafe(context.Background(), testOwnerID, CreateCafeRequest{
		Name:   "Night",
		IsOpen: &closed,
		Rooms: []CreateRoomRequest{{Name: "Main", Terminals: []CreateTerminalRequest{
			{TerminalID: "PC-1", Type: "PC", PricePerHour: decimal.NewFromInt(100)},
		}}},
	})
	require.NoError(t, err)

	_, err = env.bookings.CreateBooking(context.Background(), Scope{CafeID: cafe.ID, UserID: testOwnerID, Role: RoleOwner}, CreateBookingRequest{
		CustomerName:  "x",
		SystemsBooked: []models.SystemRequirement{{RoomType: "Main", TerminalType: "PC", NumberOfTerminals: 1}},
		Duration:      1,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBookingService_GetBooking_SweepsBeforeRead(t *testing.T) {
	env := newTestEnv(t)
	b := env.book(t, 1, 1)
	env.assign(t, b.ID, "PC-1")

	env.clock.Advance(15 * time.Minute)
	view, err := env.bookings.GetBooking(context.Background(), env.scope, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusActive, view.Status)
	require.NotNil(t, view.Session)
	assert.Equal(t, int64(45*60*1000), view.Session.RemainingMs)
	assert.InDelta(t, 75, view.Session.Percentage, 1e-9)

	env.clock.Advance(time.Hour)
	view, err = env.bookings.GetBooking(context.Background(), env.scope, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, view.Status)
	assert.True(t, view.Session.Expired)
	assert.Equal(t, models.TerminalStatusAvailable, env.terminal(t, "PC-1").Status)
}

func TestBookingService_GetSession(t *testing.T) {
	env := newTestEnv(t)
	b := env.book(t, 1, 1)

	_, err := env.bookings.GetSession(context.Background(), env.scope, b.ID)
	assert.ErrorIs(t, err, ErrWrongState)

	env.assign(t, b.ID, "PC-1")
	env.clock.Advance(30 * time.Minute)
	session, err := env.bookings.GetSession(context.Background(), env.scope, b.ID)
	require.NoError(t, err)
	assert.False(t, session.Expired)
	assert.InDelta(t, 50, session.Percentage, 1e-9)

	_, err = env.bookings.GetSession(context.Background(), env.scope, b.ID+1000)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBookingService_GetBookings_FiltersAndPages(t *testing.T) {
	env := newTestEnv(t)
	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, env.book(t, 1, 1).ID)
		env.clock.Advance(time.Minute)
	}
	env.assign(t, ids[0], "PC-1")

	active := models.BookingStatusActive
	views, total, err := env.bookings.GetBookings(context.Background(), env.scope, models.BookingFilters{Status: &active})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, views, 1)
	assert.Equal(t, ids[0], views[0].ID)
	assert.NotNil(t, views[0].Session)

	views, total, err = env.bookings.GetBookings(context.Background(), env.scope, models.BookingFilters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, views, 2)
	// newest first
	assert.Equal(t, ids[2], views[0].ID)
	assert.Equal(t, ids[1], views[1].ID)

	bogus := models.BookingStatus("paused")
	_, _, err = env.bookings.GetBookings(context.Background(), env.scope, models.BookingFilters{Status: &bogus})
	assert.ErrorIs(t, err, ErrValidation)
}

// Random sequences of engine calls never move a booking backwards.
func TestBookingLifecycle_StatusIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	rng := rand.New(rand.NewSource(42))
	rank := map[models.BookingStatus]int{
		models.BookingStatusBooked:    0,
		models.BookingStatusActive:    1,
		models.BookingStatusCompleted: 2,
		models.BookingStatusCancelled: 2,
	}

	ids := []int64{env.book(t, 1, 0.5).ID, env.book(t, 1, 1).ID, env.book(t, 2, 1).ID}
	last := map[int64]models.BookingStatus{}
	terminals := []string{"PC-1", "PC-2", "PC-3"}
	ctx := context.Background()

	for step := 0; step < 300; step++ {
		id := ids[rng.Intn(len(ids))]
		switch rng.Intn(6) {
		case 0:
			n := env.booking(t, id).SystemsBooked[0].NumberOfTerminals
			pick := append([]string(nil), terminals...)
			rng.Shuffle(len(pick), func(i, j int) { pick[i], pick[j] = pick[j], pick[i] })
			_, _ = env.assignment.Assign(ctx, env.scope, id, []AssignmentRequest{{RoomType: "VIP", TerminalIDs: pick[:n]}})
		case 1:
			_, _, _ = env.cancellation.Cancel(ctx, env.scope, id)
		case 2:
			_, _ = env.sweeper.EndSession(ctx, env.scope, id)
		case 3:
			_, _ = env.extension.Extend(ctx, env.scope, id, ExtendRequest{HoursToAdd: 0.5})
		case 4:
			_, _ = env.sweeper.SweepExpired(ctx, env.cafe.ID)
		case 5:
			env.clock.Advance(time.Duration(rng.Intn(20)) * time.Minute)
		}

		for _, bid := range ids {
			cur := env.booking(t, bid).Status
			if prev, ok := last[bid]; ok {
				require.GreaterOrEqual(t, rank[cur], rank[prev], "booking %d went %s -> %s", bid, prev, cur)
				if prev.IsTerminal() {
					require.Equal(t, prev, cur)
				}
			}
			last[bid] = cur
		}
		assertTerminalExclusivity(t, env)
	}
}

func assertTerminalExclusivity(t *testing.T, env *testEnv) {
	t.Helper()
	cafe, err := env.store.GetCafeByID(context.Background(), env.cafe.ID)
	require.NoError(t, err)
	for _, room := range cafe.Rooms {
		for _, term := range room.Terminals {
			require.Equal(t, term.Status == models.TerminalStatusActive, term.ActiveBookingID != nil, term.TerminalID)
			if term.ActiveBookingID == nil {
				continue
			}
			b := env.booking(t, *term.ActiveBookingID)
			require.Equal(t, models.BookingStatusActive, b.Status, term.TerminalID)
			require.Contains(t, b.AssignedSystems.TerminalIDs(), term.TerminalID)
		}
	}
}
