package services

import (
	"database/sql"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"library/internal/models"
	"library/internal/repositories"
)

const (
	// DefaultListLimit caps a book listing when the caller does not ask
	// for an explicit limit.
	DefaultListLimit = 10

	// storeRetries bounds local retries of store writes that may lose a
	// concurrency race (availability recompute, borrow transaction).
	storeRetries = 3
)

// TxRunner is the slice of *gorm.DB the services need to run a closure
// inside one store transaction. Satisfied by *gorm.DB; tests substitute an
// in-memory runner.
type TxRunner interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

// CreateBookInput is the full field set for a new book. Genre defaults to
// FICTION when empty; Available defaults to true when nil.
type CreateBookInput struct {
	Title       string
	Author      string
	Genre       string
	ISBN        string
	Description string
	Copies      int
	Available   *bool
}

// UpdateBookInput applies a partial update; nil fields are left untouched.
type UpdateBookInput struct {
	Title       *string
	Author      *string
	Genre       *string
	ISBN        *string
	Description *string
	Copies      *int
	Available   *bool
}

// ListBooksQuery mirrors the listing query surface: optional genre filter,
// sort field (default createdAt), ascending flag (default descending) and
// result cap (default DefaultListLimit).
type ListBooksQuery struct {
	Genre  string
	SortBy string
	Asc    bool
	Limit  int
}

// InventoryService owns the book collection: CRUD plus the availability
// recompute that keeps the available flag consistent with copies.
type InventoryService interface {
	CreateBook(input CreateBookInput) (*models.Book, error)
	GetBook(id uuid.UUID) (*models.Book, error)
	ListBooks(q ListBooksQuery) ([]models.Book, error)
	UpdateBook(id uuid.UUID, input UpdateBookInput) (*models.Book, error)
	DeleteBook(id uuid.UUID) error
	RecomputeAvailability(id uuid.UUID) error
}

type inventoryService struct {
	db       TxRunner
	bookRepo repositories.BookRepository
}

// NewInventoryService wires the inventory service.
func NewInventoryService(db TxRunner, bookRepo repositories.BookRepository) InventoryService {
	return &inventoryService{db: db, bookRepo: bookRepo}
}

// CreateBook validates the input, defaults genre and availability, and
// persists a single new record. A duplicate isbn is a ValidationError
// whether caught by the pre-check or by the unique index.
func (s *inventoryService) CreateBook(input CreateBookInput) (*models.Book, error) {
	title := strings.TrimSpace(input.Title)
	author := strings.TrimSpace(input.Author)
	isbn := strings.TrimSpace(input.ISBN)

	if title == "" {
		return nil, newValidationError("title", "is required")
	}
	if author == "" {
		return nil, newValidationError("author", "is required")
	}
	if isbn == "" {
		return nil, newValidationError("isbn", "is required")
	}

	genre := models.DefaultGenre
	if input.Genre != "" {
		genre = models.Genre(input.Genre)
		if !genre.Valid() {
			return nil, newValidationError("genre", "must be one of %s", genreList())
		}
	}
	if input.Copies < 0 {
		return nil, newValidationError("copies", "must be a positive number")
	}

	available := true
	if input.Available != nil {
		available = *input.Available
	}

	if _, err := s.bookRepo.GetByISBN(nil, isbn); err == nil {
		return nil, newValidationError("isbn", "a book with isbn %q already exists", isbn)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	book := &models.Book{
		ID:          uuid.New(),
		Title:       title,
		Author:      author,
		Genre:       genre,
		ISBN:        isbn,
		Description: input.Description,
		Copies:      input.Copies,
		Available:   available,
	}
	if err := s.bookRepo.Create(nil, book); err != nil {
		if isUniqueViolation(err) {
			// Lost the race against a concurrent create with the same isbn.
			return nil, newValidationError("isbn", "a book with isbn %q already exists", isbn)
		}
		log.Printf("[ERROR] CreateBook: failed to persist book %q: %v", title, err)
		return nil, err
	}
	log.Printf("[INFO] CreateBook: created book %q (id=%s, isbn=%s, copies=%d)", book.Title, book.ID, book.ISBN, book.Copies)
	return book, nil
}

func (s *inventoryService) GetBook(id uuid.UUID) (*models.Book, error) {
	book, err := s.bookRepo.GetByID(nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "Book"}
		}
		return nil, err
	}
	return book, nil
}

func (s *inventoryService) ListBooks(q ListBooksQuery) ([]models.Book, error) {
	query := repositories.ListQuery{
		SortBy: q.SortBy,
		Asc:    q.Asc,
		Limit:  q.Limit,
	}
	if q.Genre != "" {
		genre := models.Genre(q.Genre)
		if !genre.Valid() {
			return nil, newValidationError("filter", "must be one of %s", genreList())
		}
		query.Genre = genre
	}
	if q.SortBy != "" && !repositories.Sortable(q.SortBy) {
		return nil, newValidationError("sortBy", "unknown sort field %q", q.SortBy)
	}
	if query.Limit <= 0 {
		query.Limit = DefaultListLimit
	}
	return s.bookRepo.List(nil, query)
}

// UpdateBook applies a partial update and then recomputes the available
// flag from the post-update copies, all inside one transaction, so a
// successful update can never leave availability stale, even when the
// update did not touch copies.
func (s *inventoryService) UpdateBook(id uuid.UUID, input UpdateBookInput) (*models.Book, error) {
	fields, err := s.updateFields(input)
	if err != nil {
		return nil, err
	}

	var updated *models.Book
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.bookRepo.GetByIDForUpdate(tx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "Book"}
			}
			return err
		}

		if err := s.bookRepo.UpdateFields(tx, id, fields); err != nil {
			if isUniqueViolation(err) {
				return newValidationError("isbn", "a book with this isbn already exists")
			}
			return err
		}

		if _, err := s.bookRepo.RecomputeAvailable(tx, id); err != nil {
			log.Printf("[ERROR] UpdateBook: failed to recompute availability for book %s: %v", id, err)
			return err
		}

		book, err := s.bookRepo.GetByID(tx, id)
		if err != nil {
			return err
		}
		updated = book
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] UpdateBook: updated book %s (%d fields)", id, len(fields))
	return updated, nil
}

// updateFields validates the partial input against the same constraints a
// full record must satisfy and translates it to a column/value map.
func (s *inventoryService) updateFields(input UpdateBookInput) (map[string]interface{}, error) {
	fields := map[string]interface{}{}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, newValidationError("title", "is required")
		}
		fields["title"] = title
	}
	if input.Author != nil {
		author := strings.TrimSpace(*input.Author)
		if author == "" {
			return nil, newValidationError("author", "is required")
		}
		fields["author"] = author
	}
	if input.Genre != nil {
		genre := models.Genre(*input.Genre)
		if !genre.Valid() {
			return nil, newValidationError("genre", "must be one of %s", genreList())
		}
		fields["genre"] = genre
	}
	if input.ISBN != nil {
		isbn := strings.TrimSpace(*input.ISBN)
		if isbn == "" {
			return nil, newValidationError("isbn", "is required")
		}
		fields["isbn"] = isbn
	}
	if input.Description != nil {
		fields["description"] = *input.Description
	}
	if input.Copies != nil {
		if *input.Copies < 0 {
			return nil, newValidationError("copies", "must be a positive number")
		}
		fields["copies"] = *input.Copies
	}
	if input.Available != nil {
		// Applied, then immediately reconciled against copies by the
		// recompute step; the invariant wins over the caller's value.
		fields["available"] = *input.Available
	}
	return fields, nil
}

func (s *inventoryService) DeleteBook(id uuid.UUID) error {
	found, err := s.bookRepo.Delete(nil, id)
	if err != nil {
		log.Printf("[ERROR] DeleteBook: failed to delete book %s: %v", id, err)
		return err
	}
	if !found {
		return &NotFoundError{Resource: "Book"}
	}
	// Borrow records referencing the book are left in place on purpose.
	log.Printf("[INFO] DeleteBook: deleted book %s", id)
	return nil
}

// RecomputeAvailability reconciles available with copies for one book. A
// missing id is logged, not failed, so callers may fire it after any
// out-of-band copies change. Store errors are retried before surfacing.
func (s *inventoryService) RecomputeAvailability(id uuid.UUID) error {
	var lastErr error
	for attempt := 1; attempt <= storeRetries; attempt++ {
		found, err := s.bookRepo.RecomputeAvailable(nil, id)
		if err == nil {
			if !found {
				log.Printf("[WARN] RecomputeAvailability: book %s not found for availability update", id)
			}
			return nil
		}
		lastErr = err
		log.Printf("[WARN] RecomputeAvailability: attempt %d/%d failed for book %s: %v", attempt, storeRetries, id, err)
	}
	return &TransientStoreError{Cause: lastErr}
}

func genreList() string {
	parts := make([]string, len(models.Genres))
	for i, g := range models.Genres {
		parts[i] = string(g)
	}
	return strings.Join(parts, ", ")
}

// isUniqueViolation checks whether a PostgreSQL unique-constraint error
// occurred. PostgreSQL error code 23505 = unique_violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
