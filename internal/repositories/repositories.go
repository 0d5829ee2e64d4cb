package repositories

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"library/internal/models"
)

// ListQuery narrows and orders a book listing. SortBy takes the JSON field
// name as exposed by the API (e.g. "createdAt"); Asc selects ascending
// order, the default is descending. Limit <= 0 falls back to the caller's
// default.
type ListQuery struct {
	Genre  models.Genre
	SortBy string
	Asc    bool
	Limit  int
}

// sortColumns maps API sort field names to their storage columns. Only
// fields listed here may be sorted on.
var sortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"title":     "title",
	"author":    "author",
	"genre":     "genre",
	"isbn":      "isbn",
	"copies":    "copies",
	"available": "available",
}

// Sortable reports whether field is an accepted ListQuery sort field.
func Sortable(field string) bool {
	_, ok := sortColumns[field]
	return ok
}

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	GetByISBN(db *gorm.DB, isbn string) (*models.Book, error)
	List(db *gorm.DB, q ListQuery) ([]models.Book, error)
	UpdateFields(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	// DecrementCopies subtracts qty from the book's copies only if at least
	// qty copies remain. Returns false when the guard rejected the write.
	DecrementCopies(db *gorm.DB, id uuid.UUID, qty int) (bool, error)
	// RecomputeAvailable sets available = copies > 0 in a single statement.
	// Returns false when no row matched the id.
	RecomputeAvailable(db *gorm.DB, id uuid.UUID) (bool, error)
	// Delete removes the book. Returns false when no row matched the id.
	Delete(db *gorm.DB, id uuid.UUID) (bool, error)
}

type BorrowRepository interface {
	Create(db *gorm.DB, borrow *models.Borrow) error
	// SummarizeByBook groups all borrow records by book, sums their
	// quantities and joins each group with the book's title and isbn.
	// Books without borrow records are omitted.
	SummarizeByBook(db *gorm.DB) ([]models.BorrowSummary, error)
}

// concrete implementations

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&book, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByISBN(db *gorm.DB, isbn string) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "isbn = ?", isbn).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) List(db *gorm.DB, q ListQuery) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	tx := db.Model(&models.Book{})
	if q.Genre != "" {
		tx = tx.Where("genre = ?", q.Genre)
	}

	column, ok := sortColumns[q.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if q.Asc {
		direction = "ASC"
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	var books []models.Book
	if err := tx.
		Order(column + " " + direction).
		Limit(limit).
		Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) UpdateFields(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	if db == nil {
		db = r.db
	}
	if len(fields) == 0 {
		return nil
	}
	return db.Model(&models.Book{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *bookRepository) DecrementCopies(db *gorm.DB, id uuid.UUID, qty int) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ? AND copies >= ?", id, qty).
		Update("copies", gorm.Expr("copies - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *bookRepository) RecomputeAvailable(db *gorm.DB, id uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ?", id).
		Update("available", gorm.Expr("copies > 0"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *bookRepository) Delete(db *gorm.DB, id uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Delete(&models.Book{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type borrowRepository struct {
	db *gorm.DB
}

func NewBorrowRepository(db *gorm.DB) BorrowRepository {
	return &borrowRepository{db: db}
}

func (r *borrowRepository) Create(db *gorm.DB, borrow *models.Borrow) error {
	if db == nil {
		db = r.db
	}
	return db.Create(borrow).Error
}

// summaryRow is the flat scan target for the group/join query; the nested
// response shape is assembled afterwards.
type summaryRow struct {
	Title         string
	ISBN          string
	TotalQuantity int
}

func (r *borrowRepository) SummarizeByBook(db *gorm.DB) ([]models.BorrowSummary, error) {
	if db == nil {
		db = r.db
	}
	var rows []summaryRow
	err := db.Model(&models.Borrow{}).
		Select("books.title AS title, books.isbn AS isbn, SUM(borrows.quantity) AS total_quantity").
		Joins("JOIN books ON books.id = borrows.book_id").
		Group("books.id, books.title, books.isbn").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]models.BorrowSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, models.BorrowSummary{
			Book:          models.BorrowSummaryBook{Title: row.Title, ISBN: row.ISBN},
			TotalQuantity: row.TotalQuantity,
		})
	}
	return summaries, nil
}
