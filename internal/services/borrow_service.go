package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"library/internal/models"
	"library/internal/repositories"
)

// BorrowService runs borrow transactions against the inventory and serves
// the borrowed-books summary.
type BorrowService interface {
	BorrowBook(bookID uuid.UUID, quantity int, dueDate time.Time) (*models.Borrow, error)
	Summary() ([]models.BorrowSummary, error)
}

type borrowService struct {
	db         TxRunner
	bookRepo   repositories.BookRepository
	borrowRepo repositories.BorrowRepository
}

// NewBorrowService wires the borrow service.
func NewBorrowService(db TxRunner, bookRepo repositories.BookRepository, borrowRepo repositories.BorrowRepository) BorrowService {
	return &borrowService{db: db, bookRepo: bookRepo, borrowRepo: borrowRepo}
}

// BorrowBook executes one borrow transaction:
//
//  1. Lock the book row (SELECT ... FOR UPDATE) and check it exists.
//  2. Reject if quantity exceeds the current copies.
//  3. Decrement copies with a conditional write (copies >= quantity).
//  4. Recompute the available flag from the post-decrement copies.
//  5. Insert the Borrow record.
//
// All five steps run inside one store transaction: a failure after the
// decrement rolls the decrement back, so copies and the borrow history can
// never disagree. The row lock serializes borrows per book; the
// conditional write is the backstop that makes an overdraw impossible even
// without it. Transactions that lose a store-level race are retried a
// bounded number of times before surfacing TransientStoreError.
func (s *borrowService) BorrowBook(bookID uuid.UUID, quantity int, dueDate time.Time) (*models.Borrow, error) {
	if quantity < 0 {
		return nil, newValidationError("quantity", "must be a positive number")
	}
	if dueDate.IsZero() {
		return nil, newValidationError("dueDate", "is required")
	}

	var lastErr error
	for attempt := 1; attempt <= storeRetries; attempt++ {
		borrow, err := s.borrowOnce(bookID, quantity, dueDate)
		if err == nil {
			log.Printf("[INFO] BorrowBook: borrowed %d of book %s (borrow=%s, due %s)", quantity, bookID, borrow.ID, dueDate.Format("2006-01-02"))
			return borrow, nil
		}
		if !isSerializationFailure(err) {
			return nil, err
		}
		lastErr = err
		log.Printf("[WARN] BorrowBook: attempt %d/%d lost a store race for book %s: %v", attempt, storeRetries, bookID, err)
	}
	log.Printf("[ERROR] BorrowBook: retry budget exhausted for book %s: %v", bookID, lastErr)
	return nil, &TransientStoreError{Cause: lastErr}
}

func (s *borrowService) borrowOnce(bookID uuid.UUID, quantity int, dueDate time.Time) (*models.Borrow, error) {
	var borrow *models.Borrow

	err := s.db.Transaction(func(tx *gorm.DB) error {
		book, err := s.bookRepo.GetByIDForUpdate(tx, bookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "Book"}
			}
			return err
		}

		if book.Copies < quantity {
			return &InsufficientCopiesError{}
		}

		ok, err := s.bookRepo.DecrementCopies(tx, bookID, quantity)
		if err != nil {
			return err
		}
		if !ok {
			// The conditional guard lost against a concurrent decrement.
			return &InsufficientCopiesError{}
		}

		if _, err := s.bookRepo.RecomputeAvailable(tx, bookID); err != nil {
			return err
		}

		b := &models.Borrow{
			ID:       uuid.New(),
			BookID:   bookID,
			Quantity: quantity,
			DueDate:  dueDate,
		}
		if err := s.borrowRepo.Create(tx, b); err != nil {
			return err
		}
		borrow = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return borrow, nil
}

// Summary returns one entry per book with at least one borrow record: the
// book's title and isbn joined with the summed borrowed quantity. A pure
// read against a single store snapshot.
func (s *borrowService) Summary() ([]models.BorrowSummary, error) {
	summaries, err := s.borrowRepo.SummarizeByBook(nil)
	if err != nil {
		log.Printf("[ERROR] Summary: failed to aggregate borrows: %v", err)
		return nil, err
	}
	return summaries, nil
}

// isSerializationFailure checks for PostgreSQL codes 40001
// (serialization_failure) and 40P01 (deadlock_detected), the two outcomes
// of losing a concurrent-transaction race that are safe to retry.
func isSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "40001") || strings.Contains(msg, "40P01")
}
