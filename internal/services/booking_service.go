package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gamecafe_backend/internal/events"
	"gamecafe_backend/internal/models"
	"gamecafe_backend/internal/repositories"
	"gamecafe_backend/pkg/utils"

	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// --- Booking DTOs ---

// CreateBookingRequest accepts either the systemsBooked list or the legacy
// single-requirement fields (roomType, systemType, numberOfSystems).
type CreateBookingRequest struct {
	CustomerID    *int64                     `json:"customerId"`
	CustomerName  string                     `json:"customerName"`
	CustomerPhone string                     `json:"customerPhone"`
	Source        models.BookingSource       `json:"source"`
	SystemsBooked []models.SystemRequirement `json:"systemsBooked"`
	Duration      float64                    `json:"duration"`
	Payment       *models.PaymentRecord      `json:"payment"`

	RoomType        string `json:"roomType"`
	SystemType      string `json:"systemType"`
	NumberOfSystems int    `json:"numberOfSystems"`
}

// CreatedBooking carries the plain-text OTP of a mobile booking. It is never shown again.
type CreatedBooking struct {
	Booking *models.Booking
	OTP     string
}

// --- BookingService Interface ---
type BookingService interface {
	CreateBooking(ctx context.Context, scope Scope, req CreateBookingRequest) (*CreatedBooking, error)
	GetBooking(ctx context.Context, scope Scope, bookingID int64) (*models.BookingView, error)
	GetBookings(ctx context.Context, scope Scope, filters models.BookingFilters) ([]models.BookingView, int, error)
	GetSession(ctx context.Context, scope Scope, bookingID int64) (*models.SessionProjection, error)
}

// --- bookingService Implementation ---
type bookingService struct {
	catalogRepo  repositories.CatalogRepository
	bookingRepo  repositories.BookingRepository
	customerRepo repositories.CustomerRepository
	sweeper      SweeperService
	otp          OTPService
	publisher    events.Publisher
	now          Clock
}

// NewBookingService creates a new instance of BookingService.
func NewBookingService(
	cr repositories.CatalogRepository,
	br repositories.BookingRepository,
	custr repositories.CustomerRepository,
	sweeper SweeperService,
	otp OTPService,
	publisher events.Publisher,
	clock Clock,
) BookingService {
	if clock == nil {
		clock = systemClock
	}
	return &bookingService{
		catalogRepo:  cr,
		bookingRepo:  br,
		customerRepo: custr,
		sweeper:      sweeper,
		otp:          otp,
		publisher:    publisher,
		now:          clock,
	}
}

// normalizeRequirements folds the legacy single-requirement shape into
// systemsBooked and merges duplicate (room, type) tuples.
func normalizeRequirements(req CreateBookingRequest) (models.SystemRequirements, error) {
	raw := req.SystemsBooked
	if len(raw) == 0 && !utils.IsEmpty(req.RoomType) {
		raw = []models.SystemRequirement{{
			RoomType:          req.RoomType,
			TerminalType:      req.SystemType,
			NumberOfTerminals: req.NumberOfSystems,
		}}
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: at least one system requirement is required", ErrValidation)
	}

	out := models.SystemRequirements{}
	index := map[string]int{}
	for _, r := range raw {
		if utils.IsEmpty(r.RoomType) || utils.IsEmpty(r.TerminalType) {
			return nil, fmt.Errorf("%w: roomType and terminal type are required", ErrValidation)
		}
		if r.NumberOfTerminals <= 0 {
			return nil, fmt.Errorf("%w: numberOfTerminals must be positive", ErrValidation)
		}
		key := utils.NormalizeKey(r.RoomType) + "\x00" + utils.NormalizeKey(r.TerminalType)
		if i, ok := index[key]; ok {
			out[i].NumberOfTerminals += r.NumberOfTerminals
			continue
		}
		index[key] = len(out)
		out = append(out, models.SystemRequirement{
			RoomType:          strings.TrimSpace(r.RoomType),
			TerminalType:      strings.TrimSpace(r.TerminalType),
			NumberOfTerminals: r.NumberOfTerminals,
		})
	}
	return out, nil
}

// priceRequirements checks the requirements against the catalog, rewrites the
// names to their catalog spelling and returns the price for the given hours.
func priceRequirements(cafe *models.Cafe, reqs models.SystemRequirements, hours float64) (decimal.Decimal, error) {
	total := decimal.Zero
	h := decimal.NewFromFloat(hours)
	for i := range reqs {
		r := &reqs[i]
		roomKey, typeKey := utils.NormalizeKey(r.RoomType), utils.NormalizeKey(r.TerminalType)

		var room *models.Room
		for ri := range cafe.Rooms {
			if utils.NormalizeKey(cafe.Rooms[ri].Name) == roomKey {
				room = &cafe.Rooms[ri]
				break
			}
		}
		if room == nil {
			return decimal.Zero, fmt.Errorf("%w: room %q does not exist", ErrValidation, r.RoomType)
		}

		capacity := 0
		var price decimal.Decimal
		for _, t := range room.Terminals {
			if utils.NormalizeKey(t.Type) != typeKey {
				continue
			}
			if capacity == 0 {
				price = t.PricePerHour
				r.TerminalType = t.Type
			}
			capacity++
		}
		if capacity < r.NumberOfTerminals {
			return decimal.Zero, fmt.Errorf("%w: room %q has only %d %q terminal(s)", ErrValidation, room.Name, capacity, r.TerminalType)
		}
		r.RoomType = room.Name
		total = total.Add(price.Mul(decimal.NewFromInt(int64(r.NumberOfTerminals))).Mul(h))
	}
	return total, nil
}

func validatePayment(p *models.PaymentRecord) error {
	if p == nil {
		return nil
	}
	switch p.Status {
	case models.PaymentStatusNotSet, models.PaymentStatusPending, models.PaymentStatusCompleted, models.PaymentStatusFailed:
	default:
		return fmt.Errorf("%w: unknown payment status %q", ErrValidation, p.Status)
	}
	if p.Amount.IsNegative() {
		return fmt.Errorf("%w: payment amount must not be negative", ErrValidation)
	}
	return nil
}

func (s *bookingService) resolveCustomer(ctx context.Context, req CreateBookingRequest) (models.Customer, error) {
	if req.CustomerID != nil {
		c, err := s.customerRepo.GetCustomerByID(ctx, *req.CustomerID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return models.Customer{}, fmt.Errorf("%w: customer does not exist", ErrValidation)
			}
			return models.Customer{}, err
		}
		customer := models.Customer{CustomerID: &c.ID, Name: c.FullName}
		if c.PhoneNumber != nil {
			customer.Phone = *c.PhoneNumber
		}
		return customer, nil
	}
	if utils.IsEmpty(req.CustomerName) {
		return models.Customer{}, fmt.Errorf("%w: customerName is required for walk-in customers", ErrValidation)
	}
	return models.Customer{Name: strings.TrimSpace(req.CustomerName), Phone: strings.TrimSpace(req.CustomerPhone)}, nil
}

func (s *bookingService) CreateBooking(ctx context.Context, scope Scope, req CreateBookingRequest) (*CreatedBooking, error) {
	if req.Source == "" {
		req.Source = models.BookingSourceWalkIn
	}
	if req.Source != models.BookingSourceWalkIn && req.Source != models.BookingSourceMobile {
		return nil, fmt.Errorf("%w: unknown source %q", ErrValidation, req.Source)
	}
	if !utils.IsHalfHourMultiple(req.Duration) {
		return nil, fmt.Errorf("%w: duration must be a positive multiple of 0.5 hours", ErrValidation)
	}
	if err := validatePayment(req.Payment); err != nil {
		return nil, err
	}
	reqs, err := normalizeRequirements(req)
	if err != nil {
		return nil, err
	}

	cafe, err := authorizeCafe(ctx, s.catalogRepo, scope)
	if err != nil {
		return nil, err
	}
	if !cafe.IsOpen {
		return nil, fmt.Errorf("%w: cafe is closed", ErrValidation)
	}
	total, err := priceRequirements(cafe, reqs, req.Duration)
	if err != nil {
		return nil, err
	}
	customer, err := s.resolveCustomer(ctx, req)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		CafeID:          scope.CafeID,
		Customer:        customer,
		Source:          req.Source,
		SystemsBooked:   reqs,
		Duration:        req.Duration,
		AssignedSystems: models.AssignedSystems{},
		Status:          models.BookingStatusBooked,
		TotalPrice:      total,
		CreatedAt:       s.now(),
	}
	if req.Payment != nil {
		booking.Payment = *req.Payment
	}

	var code string
	if req.Source == models.BookingSourceMobile {
		var hash string
		code, hash, err = s.otp.Issue()
		if err != nil {
			return nil, err
		}
		booking.OTPHash = hash
	}

	created, err := s.bookingRepo.CreateBooking(ctx, booking)
	if err != nil {
		utils.LogError(err, "Failed to create booking", map[string]interface{}{"cafe_id": scope.CafeID})
		return nil, err
	}

	utils.LogInfo("Booking created", map[string]interface{}{
		"booking_id": created.ID,
		"cafe_id":    scope.CafeID,
		"source":     created.Source,
		"total":      created.TotalPrice.StringFixed(2),
	})
	s.publisher.Publish(ctx, events.Event{
		Type:      events.BookingCreated,
		CafeID:    scope.CafeID,
		BookingID: created.ID,
		Status:    string(created.Status),
		At:        created.CreatedAt,
	})
	return &CreatedBooking{Booking: created, OTP: code}, nil
}

// sweepBeforeRead completes expired sessions of the cafe so reads never show a stale active booking.
func (s *bookingService) sweepBeforeRead(ctx context.Context, cafeID int64) {
	if _, err := s.sweeper.SweepExpired(ctx, cafeID); err != nil {
		utils.LogError(err, "Sweep before read failed", map[string]interface{}{"cafe_id": cafeID})
	}
}

func (s *bookingService) GetBooking(ctx context.Context, scope Scope, bookingID int64) (*models.BookingView, error) {
	if _, err := authorizeCafe(ctx, s.catalogRepo, scope); err != nil {
		return nil, err
	}
	s.sweepBeforeRead(ctx, scope.CafeID)

	booking, err := loadBooking(ctx, s.bookingRepo, scope, bookingID)
	if err != nil {
		return nil, err
	}
	return &models.BookingView{Booking: *booking, Session: ProjectBooking(booking, s.now())}, nil
}

func (s *bookingService) GetBookings(ctx context.Context, scope Scope, filters models.BookingFilters) ([]models.BookingView, int, error) {
	if filters.Status != nil && *filters.Status != "" && !models.IsValidBookingStatus(string(*filters.Status)) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, *filters.Status)
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = defaultPageSize
	}
	if filters.PageSize > maxPageSize {
		filters.PageSize = maxPageSize
	}
	filters.CafeID = scope.CafeID

	if _, err := authorizeCafe(ctx, s.catalogRepo, scope); err != nil {
		return nil, 0, err
	}
	s.sweepBeforeRead(ctx, scope.CafeID)

	bookings, total, err := s.bookingRepo.GetBookings(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	views := make([]models.BookingView, 0, len(bookings))
	for i := range bookings {
		views = append(views, models.BookingView{Booking: bookings[i], Session: ProjectBooking(&bookings[i], now)})
	}
	return views, total, nil
}

func (s *bookingService) GetSession(ctx context.Context, scope Scope, bookingID int64) (*models.SessionProjection, error) {
	view, err := s.GetBooking(ctx, scope, bookingID)
	if err != nil {
		return nil, err
	}
	if view.Session == nil {
		return nil, fmt.Errorf("%w: session has not started", ErrWrongState)
	}
	return view.Session, nil
}
