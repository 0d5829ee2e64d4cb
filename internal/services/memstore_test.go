package services_test

import (
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"library/internal/models"
	"library/internal/repositories"
)

// memStore is an in-memory stand-in for the transactional store. Repository
// calls ignore the *gorm.DB argument and hit maps behind a mutex;
// Transaction serializes whole flows against each other and restores a
// snapshot when the closure fails, which is exactly the contract the
// services rely on.
type memStore struct {
	mu      sync.Mutex // guards books, borrows, seq
	txMu    sync.Mutex // serializes transactions
	books   map[uuid.UUID]models.Book
	borrows []models.Borrow
	seq     int
}

func newMemStore() *memStore {
	return &memStore{books: map[uuid.UUID]models.Book{}}
}

func (s *memStore) Transaction(fc func(tx *gorm.DB) error, _ ...*sql.TxOptions) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapBooks := make(map[uuid.UUID]models.Book, len(s.books))
	for id, b := range s.books {
		snapBooks[id] = b
	}
	snapBorrows := append([]models.Borrow(nil), s.borrows...)
	snapSeq := s.seq
	s.mu.Unlock()

	if err := fc(nil); err != nil {
		s.mu.Lock()
		s.books = snapBooks
		s.borrows = snapBorrows
		s.seq = snapSeq
		s.mu.Unlock()
		return err
	}
	return nil
}

// tick hands out strictly increasing timestamps so creation-order sorting
// is deterministic. Callers must hold mu.
func (s *memStore) tick() time.Time {
	s.seq++
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Second)
}

type memBookRepo struct {
	store *memStore
}

func (r *memBookRepo) Create(_ *gorm.DB, book *models.Book) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.books {
		if b.ISBN == book.ISBN {
			return errors.New(`duplicate key value violates unique constraint "idx_books_isbn" (SQLSTATE 23505)`)
		}
	}
	now := s.tick()
	book.CreatedAt = now
	book.UpdatedAt = now
	s.books[book.ID] = *book
	return nil
}

func (r *memBookRepo) GetByID(_ *gorm.DB, id uuid.UUID) (*models.Book, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &b, nil
}

func (r *memBookRepo) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	// Transactions are fully serialized by txMu, so a plain read stands in
	// for the row lock.
	return r.GetByID(db, id)
}

func (r *memBookRepo) GetByISBN(_ *gorm.DB, isbn string) (*models.Book, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.books {
		if b.ISBN == isbn {
			b := b
			return &b, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memBookRepo) List(_ *gorm.DB, q repositories.ListQuery) ([]models.Book, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var books []models.Book
	for _, b := range s.books {
		if q.Genre != "" && b.Genre != q.Genre {
			continue
		}
		books = append(books, b)
	}

	less := func(a, b models.Book) bool { return a.CreatedAt.Before(b.CreatedAt) }
	switch q.SortBy {
	case "title":
		less = func(a, b models.Book) bool { return a.Title < b.Title }
	case "author":
		less = func(a, b models.Book) bool { return a.Author < b.Author }
	case "isbn":
		less = func(a, b models.Book) bool { return a.ISBN < b.ISBN }
	case "copies":
		less = func(a, b models.Book) bool { return a.Copies < b.Copies }
	case "updatedAt":
		less = func(a, b models.Book) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	}
	sort.Slice(books, func(i, j int) bool {
		if q.Asc {
			return less(books[i], books[j])
		}
		return less(books[j], books[i])
	})

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(books) > limit {
		books = books[:limit]
	}
	return books, nil
}

func (r *memBookRepo) UpdateFields(_ *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return nil
	}
	for column, value := range fields {
		switch column {
		case "title":
			b.Title = value.(string)
		case "author":
			b.Author = value.(string)
		case "genre":
			b.Genre = value.(models.Genre)
		case "isbn":
			isbn := value.(string)
			for otherID, other := range s.books {
				if otherID != id && other.ISBN == isbn {
					return errors.New(`duplicate key value violates unique constraint "idx_books_isbn" (SQLSTATE 23505)`)
				}
			}
			b.ISBN = isbn
		case "description":
			b.Description = value.(string)
		case "copies":
			b.Copies = value.(int)
		case "available":
			b.Available = value.(bool)
		}
	}
	b.UpdatedAt = s.tick()
	s.books[id] = b
	return nil
}

func (r *memBookRepo) DecrementCopies(_ *gorm.DB, id uuid.UUID, qty int) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok || b.Copies < qty {
		return false, nil
	}
	b.Copies -= qty
	b.UpdatedAt = s.tick()
	s.books[id] = b
	return true, nil
}

func (r *memBookRepo) RecomputeAvailable(_ *gorm.DB, id uuid.UUID) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return false, nil
	}
	b.Available = b.Copies > 0
	b.UpdatedAt = s.tick()
	s.books[id] = b
	return true, nil
}

func (r *memBookRepo) Delete(_ *gorm.DB, id uuid.UUID) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[id]; !ok {
		return false, nil
	}
	delete(s.books, id)
	return true, nil
}

type memBorrowRepo struct {
	store *memStore

	// createErr, when set, fails the next Create call once. Used to force
	// a rollback after the copies decrement.
	createErr error
}

func (r *memBorrowRepo) Create(_ *gorm.DB, borrow *models.Borrow) error {
	if r.createErr != nil {
		err := r.createErr
		r.createErr = nil
		return err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	borrow.CreatedAt = now
	borrow.UpdatedAt = now
	s.borrows = append(s.borrows, *borrow)
	return nil
}

func (r *memBorrowRepo) SummarizeByBook(_ *gorm.DB) ([]models.BorrowSummary, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := map[uuid.UUID]int{}
	for _, borrow := range s.borrows {
		totals[borrow.BookID] += borrow.Quantity
	}

	var summaries []models.BorrowSummary
	for bookID, total := range totals {
		book, ok := s.books[bookID]
		if !ok {
			continue
		}
		summaries = append(summaries, models.BorrowSummary{
			Book:          models.BorrowSummaryBook{Title: book.Title, ISBN: book.ISBN},
			TotalQuantity: total,
		})
	}
	return summaries, nil
}

// flakyTxRunner fails the first n transactions with a retryable store
// error before delegating to the real runner.
type flakyTxRunner struct {
	inner    *memStore
	failures int
}

func (f *flakyTxRunner) Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("ERROR: deadlock detected (SQLSTATE 40P01)")
	}
	return f.inner.Transaction(fc, opts...)
}

// countingBookRepo wraps a BookRepository and fails RecomputeAvailable the
// first n times it is called.
type countingBookRepo struct {
	repositories.BookRepository
	recomputeFailures int
	recomputeCalls    int
}

func (r *countingBookRepo) RecomputeAvailable(db *gorm.DB, id uuid.UUID) (bool, error) {
	r.recomputeCalls++
	if r.recomputeFailures > 0 {
		r.recomputeFailures--
		return false, errors.New("connection reset by peer")
	}
	return r.BookRepository.RecomputeAvailable(db, id)
}
