package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gamecafe_backend/internal/models"
)

// CustomerRepository defines the interface for registered customers.
type CustomerRepository interface {
	CreateCustomer(ctx context.Context, customer *models.RegisteredCustomer) (int64, error)
	GetCustomerByID(ctx context.Context, id int64) (*models.RegisteredCustomer, error)
}

type customerRepository struct {
	db *sql.DB
}

// NewCustomerRepository creates a new instance of CustomerRepository.
func NewCustomerRepository(db *sql.DB) CustomerRepository {
	return &customerRepository{db: db}
}

// CreateCustomer inserts a new customer into the database.
func (r *customerRepository) CreateCustomer(ctx context.Context, customer *models.RegisteredCustomer) (int64, error) {
	query := `INSERT INTO customers (full_name, phone_number, email, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id`

	currentTime := time.Now()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = currentTime
	}
	if customer.UpdatedAt.IsZero() {
		customer.UpdatedAt = currentTime
	}

	err := r.db.QueryRowContext(ctx, query,
		customer.FullName, customer.PhoneNumber, customer.Email, customer.CreatedAt, customer.UpdatedAt,
	).Scan(&customer.ID)
	if err != nil {
		return 0, wrapDBError(err, "creating customer")
	}
	return customer.ID, nil
}

// GetCustomerByID retrieves a customer by their ID.
func (r *customerRepository) GetCustomerByID(ctx context.Context, id int64) (*models.RegisteredCustomer, error) {
	customer := &models.RegisteredCustomer{}
	query := `SELECT id, full_name, phone_number, email, created_at, updated_at
	          FROM customers WHERE id = $1`

	var phone, email sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&customer.ID, &customer.FullName, &phone, &email, &customer.CreatedAt, &customer.UpdatedAt,
	)
	if err != nil {
		return nil, wrapDBError(err, fmt.Sprintf("getting customer by ID %d", id))
	}
	if phone.Valid {
		customer.PhoneNumber = &phone.String
	}
	if email.Valid {
		customer.Email = &email.String
	}
	return customer, nil
}
