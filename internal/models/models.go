package models

import (
	"time"

	"github.com/google/uuid"
)

type Genre string

const (
	GenreFiction    Genre = "FICTION"
	GenreNonFiction Genre = "NON_FICTION"
	GenreScience    Genre = "SCIENCE"
	GenreHistory    Genre = "HISTORY"
	GenreBiography  Genre = "BIOGRAPHY"
	GenreFantasy    Genre = "FANTASY"
)

// DefaultGenre is applied when a book is created without an explicit genre.
const DefaultGenre = GenreFiction

// Genres lists every accepted genre value, in declaration order.
var Genres = []Genre{
	GenreFiction,
	GenreNonFiction,
	GenreScience,
	GenreHistory,
	GenreBiography,
	GenreFantasy,
}

func (g Genre) Valid() bool {
	switch g {
	case GenreFiction, GenreNonFiction, GenreScience, GenreHistory, GenreBiography, GenreFantasy:
		return true
	}
	return false
}

// Book is an inventory record. Available is derived state: it must equal
// copies > 0 after every mutation of copies.
type Book struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Author      string    `gorm:"size:255;not null" json:"author"`
	Genre       Genre     `gorm:"size:20;not null;default:'FICTION'" json:"genre"`
	ISBN        string    `gorm:"size:32;uniqueIndex;not null" json:"isbn"`
	Description string    `json:"description,omitempty"`
	Copies      int       `gorm:"not null" json:"copies"`
	Available   bool      `gorm:"not null;default:true" json:"available"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Borrow records a single borrow transaction against a book. Rows are
// written once by the borrow flow and never updated or deleted afterwards.
// BookID is a non-owning reference: deleting the book leaves its borrow
// history in place.
type Borrow struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BookID    uuid.UUID `gorm:"type:uuid;index;not null" json:"book"`
	Quantity  int       `gorm:"not null" json:"quantity"`
	DueDate   time.Time `gorm:"not null" json:"dueDate"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BorrowSummaryBook carries the identity fields of a book in a summary entry.
type BorrowSummaryBook struct {
	Title string `json:"title"`
	ISBN  string `json:"isbn"`
}

// BorrowSummary is one entry of the borrowed-books summary: the total
// quantity ever borrowed against a single book.
type BorrowSummary struct {
	Book          BorrowSummaryBook `json:"book"`
	TotalQuantity int               `json:"totalQuantity"`
}
