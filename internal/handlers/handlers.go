package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"library/internal/services"
)

type LibraryHandler struct {
	inventory services.InventoryService
	borrow    services.BorrowService
}

func RegisterRoutes(r *gin.Engine, inventory services.InventoryService, borrow services.BorrowService) {
	h := &LibraryHandler{inventory: inventory, borrow: borrow}

	r.GET("/", h.health)

	books := r.Group("/api/books")
	books.POST("", h.createBook)
	books.GET("", h.listBooks)
	books.GET("/:bookId", h.getBook)
	books.PUT("/:bookId", h.updateBook)
	books.DELETE("/:bookId", h.deleteBook)

	borrows := r.Group("/api/borrow")
	borrows.POST("", h.borrowBook)
	borrows.GET("", h.borrowSummary)
}

// respond wraps every success payload in the API envelope.
func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// respondError maps the service error kinds onto HTTP statuses and the
// error envelope. Anything unrecognized is an internal error.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	name := "InternalError"
	message := err.Error()

	var (
		validationErr   *services.ValidationError
		notFoundErr     *services.NotFoundError
		insufficientErr *services.InsufficientCopiesError
		transientErr    *services.TransientStoreError
	)
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
		name = "ValidationError"
		message = "Validation failed"
	case errors.As(err, &notFoundErr):
		status = http.StatusNotFound
		name = "NotFoundError"
	case errors.As(err, &insufficientErr):
		status = http.StatusConflict
		name = "InsufficientCopiesError"
	case errors.As(err, &transientErr):
		status = http.StatusServiceUnavailable
		name = "TransientStoreError"
	}

	c.JSON(status, gin.H{
		"success": false,
		"message": message,
		"error": gin.H{
			"name":    name,
			"message": err.Error(),
		},
	})
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"message": "Validation failed",
		"error": gin.H{
			"name":    "ValidationError",
			"message": err.Error(),
		},
	})
}

func (h *LibraryHandler) health(c *gin.Context) {
	c.String(http.StatusOK, "Server is running")
}

type createBookRequest struct {
	Title       string `json:"title" binding:"required"`
	Author      string `json:"author" binding:"required"`
	Genre       string `json:"genre"`
	ISBN        string `json:"isbn" binding:"required"`
	Description string `json:"description"`
	Copies      *int   `json:"copies" binding:"required"`
	Available   *bool  `json:"available"`
}

func (h *LibraryHandler) createBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	book, err := h.inventory.CreateBook(services.CreateBookInput{
		Title:       req.Title,
		Author:      req.Author,
		Genre:       req.Genre,
		ISBN:        req.ISBN,
		Description: req.Description,
		Copies:      *req.Copies,
		Available:   req.Available,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Book created successfully", book)
}

func (h *LibraryHandler) listBooks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	books, err := h.inventory.ListBooks(services.ListBooksQuery{
		Genre:  c.Query("filter"),
		SortBy: c.Query("sortBy"),
		Asc:    c.Query("sort") == "asc",
		Limit:  limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Books retrieved successfully", books)
}

func (h *LibraryHandler) getBook(c *gin.Context) {
	bookID, err := uuid.Parse(c.Param("bookId"))
	if err != nil {
		respondBadRequest(c, errors.New("invalid book id"))
		return
	}

	book, err := h.inventory.GetBook(bookID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Book retrieved successfully", book)
}

type updateBookRequest struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Genre       *string `json:"genre"`
	ISBN        *string `json:"isbn"`
	Description *string `json:"description"`
	Copies      *int    `json:"copies"`
	Available   *bool   `json:"available"`
}

func (h *LibraryHandler) updateBook(c *gin.Context) {
	bookID, err := uuid.Parse(c.Param("bookId"))
	if err != nil {
		respondBadRequest(c, errors.New("invalid book id"))
		return
	}

	var req updateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	book, err := h.inventory.UpdateBook(bookID, services.UpdateBookInput{
		Title:       req.Title,
		Author:      req.Author,
		Genre:       req.Genre,
		ISBN:        req.ISBN,
		Description: req.Description,
		Copies:      req.Copies,
		Available:   req.Available,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Book updated successfully", book)
}

func (h *LibraryHandler) deleteBook(c *gin.Context) {
	bookID, err := uuid.Parse(c.Param("bookId"))
	if err != nil {
		respondBadRequest(c, errors.New("invalid book id"))
		return
	}

	if err := h.inventory.DeleteBook(bookID); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Book deleted successfully", nil)
}

type borrowRequest struct {
	Book     string    `json:"book" binding:"required"`
	Quantity *int      `json:"quantity" binding:"required"`
	DueDate  time.Time `json:"dueDate" binding:"required"`
}

func (h *LibraryHandler) borrowBook(c *gin.Context) {
	var req borrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	bookID, err := uuid.Parse(req.Book)
	if err != nil {
		respondBadRequest(c, errors.New("invalid book id"))
		return
	}

	borrow, err := h.borrow.BorrowBook(bookID, *req.Quantity, req.DueDate)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Book borrowed successfully", borrow)
}

func (h *LibraryHandler) borrowSummary(c *gin.Context) {
	summary, err := h.borrow.Summary()
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Borrowed books summary retrieved successfully", summary)
}
