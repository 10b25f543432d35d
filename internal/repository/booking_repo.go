package repository

import (
	"context"
	"errors"
	"fmt"

	"busmate/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingColumns = `id, booking_id, user_id, pnr, bus_id, bus_name, from_city, to_city,
	journey_date, seats, total_price, status, passenger_name, passenger_email, passenger_phone,
	created_at, updated_at`

type BookingRepository interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByBookingID(ctx context.Context, bookingID string) (*model.Booking, error)
	ListAll(ctx context.Context) ([]model.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]model.Booking, error)
	UpdateStatus(ctx context.Context, bookingID, status string) error
}

type bookingRepo struct {
	pool *pgxpool.Pool
}

func NewBookingRepo(pool *pgxpool.Pool) BookingRepository {
	return &bookingRepo{pool: pool}
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID, &b.BookingID, &b.UserID, &b.PNR, &b.BusID, &b.BusName, &b.From, &b.To,
		&b.Date, &b.Seats, &b.TotalPrice, &b.Status, &b.PassengerName, &b.PassengerEmail,
		&b.PassengerPhone, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bookingRepo) Create(ctx context.Context, b *model.Booking) error {
	query := `
		INSERT INTO bookings (booking_id, user_id, pnr, bus_id, bus_name, from_city, to_city,
			journey_date, seats, total_price, status, passenger_name, passenger_email, passenger_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		b.BookingID, b.UserID, b.PNR, b.BusID, b.BusName, b.From, b.To,
		b.Date, b.Seats, b.TotalPrice, b.Status, b.PassengerName, b.PassengerEmail, b.PassengerPhone,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating booking %s: %w", b.BookingID, err)
	}
	return nil
}

func (r *bookingRepo) GetByBookingID(ctx context.Context, bookingID string) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_id = $1`
	b, err := scanBooking(r.pool.QueryRow(ctx, query, bookingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting booking %s: %w", bookingID, err)
	}
	return b, nil
}

func (r *bookingRepo) ListAll(ctx context.Context) ([]model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings ORDER BY created_at DESC`
	return r.queryBookings(ctx, query)
}

func (r *bookingRepo) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC`
	return r.queryBookings(ctx, query, userID)
}

func (r *bookingRepo) queryBookings(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying bookings: %w", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning booking row: %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating booking rows: %w", err)
	}
	return bookings, nil
}

func (r *bookingRepo) UpdateStatus(ctx context.Context, bookingID, status string) error {
	query := `UPDATE bookings SET status = $1, updated_at = NOW() WHERE booking_id = $2`
	tag, err := r.pool.Exec(ctx, query, status, bookingID)
	if err != nil {
		return fmt.Errorf("updating booking %s status: %w", bookingID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
