package shop

import (
	"bytes"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"gorm.io/gorm"

	"bookhaven/analytics"
	"bookhaven/auth"
	"bookhaven/cache"
	emailpkg "bookhaven/email"
	"bookhaven/models"
)

// fallbackBookImage is served when the form submits "-" for the image URL.
const fallbackBookImage = "/public/img/book.jpg"

const dateLayout = "January 2, 2006"

var ErrTitleTaken = errors.New("book title already taken")

// markdown renderer configured with Goldmark and useful extensions
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,     // tables, strikethrough, task lists, autolinks (GFM set)
		extension.Linkify, // linkify raw URLs
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithUnsafe(), // allow raw HTML passthrough in Markdown
	),
)

type ShopModule struct {
	db        *gorm.DB
	analytics *analytics.AnalyticsModule
	mailer    *emailpkg.EmailService
}

func NewShopModule(db *gorm.DB, analyticsModule *analytics.AnalyticsModule, mailer *emailpkg.EmailService) *ShopModule {
	return &ShopModule{
		db:        db,
		analytics: analyticsModule,
		mailer:    mailer,
	}
}

func (s *ShopModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/", s.index)
	router.GET("/book/:id", s.showBook)
	router.POST("/book/:id", auth.RequireAuth, s.addCommentPost)

	router.GET("/new-book", auth.RequireAuth, auth.RequireAdmin, s.newBookPage)
	router.POST("/new-book", auth.RequireAuth, auth.RequireAdmin, s.createBookPost)
	router.GET("/edit-book/:id", auth.RequireAuth, auth.RequireAdmin, s.editBookPage)
	router.POST("/edit-book/:id", auth.RequireAuth, auth.RequireAdmin, s.updateBookPost)
	router.GET("/delete/:id", auth.RequireAuth, auth.RequireAdmin, s.deleteBookHandler)

	router.GET("/order/:id", auth.RequireAuth, s.orderBook)

	router.GET("/about", s.about)
	router.GET("/contact", s.contact)
}

// BookFields carries the writable attributes of a book. Date and creator
// are assigned by the store, never by the form.
type BookFields struct {
	Title  string
	Author string
	Price  float64
	Body   string
	ImgURL string
}

// CommentView pairs a comment with its author's display name, resolved by
// id lookup rather than an ORM relation.
type CommentView struct {
	models.Comment
	AuthorName string
}

func (s *ShopModule) listBooks() ([]models.Book, error) {
	var books []models.Book
	err := s.db.Order("id ASC").Find(&books).Error
	return books, err
}

func (s *ShopModule) getBook(id int) (*models.Book, error) {
	var book models.Book
	err := s.db.First(&book, id).Error
	return &book, err
}

func (s *ShopModule) createBook(fields BookFields, creatorID int, date string) (*models.Book, error) {
	var existing models.Book
	if err := s.db.Where("title = ?", fields.Title).First(&existing).Error; err == nil {
		return nil, ErrTitleTaken
	}

	imgURL := fields.ImgURL
	if imgURL == "-" || imgURL == "" {
		imgURL = fallbackBookImage
	}

	book := models.Book{
		Title:     fields.Title,
		Author:    fields.Author,
		Price:     fields.Price,
		Date:      date,
		Body:      fields.Body,
		ImgURL:    imgURL,
		CreatorID: &creatorID,
	}

	if err := s.db.Create(&book).Error; err != nil {
		return nil, err
	}

	return &book, nil
}

func (s *ShopModule) updateBook(id int, fields BookFields) error {
	var book models.Book
	if err := s.db.First(&book, id).Error; err != nil {
		return err
	}

	if fields.Title != book.Title {
		var existing models.Book
		if err := s.db.Where("title = ? AND id <> ?", fields.Title, id).First(&existing).Error; err == nil {
			return ErrTitleTaken
		}
	}

	book.Title = fields.Title
	book.Author = fields.Author
	book.Price = fields.Price
	book.Body = fields.Body
	if fields.ImgURL == "-" || fields.ImgURL == "" {
		book.ImgURL = fallbackBookImage
	} else {
		book.ImgURL = fields.ImgURL
	}

	return s.db.Save(&book).Error
}

func (s *ShopModule) deleteBook(id int) error {
	result := s.db.Delete(&models.Book{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	// comments belong to the book page, drop them with it
	return s.db.Where("book_id = ?", id).Delete(&models.Comment{}).Error
}

func (s *ShopModule) addComment(bookID, userID int, text string) (*models.Comment, error) {
	var book models.Book
	if err := s.db.First(&book, bookID).Error; err != nil {
		return nil, err
	}

	comment := models.Comment{
		BookID: bookID,
		UserID: userID,
		Text:   text,
	}

	if err := s.db.Create(&comment).Error; err != nil {
		return nil, err
	}

	return &comment, nil
}

func (s *ShopModule) commentsForBook(bookID int) []CommentView {
	var comments []models.Comment
	if err := s.db.Where("book_id = ?", bookID).Order("created_at ASC").Find(&comments).Error; err != nil {
		return nil
	}

	views := make([]CommentView, 0, len(comments))
	for _, comment := range comments {
		var user models.User
		name := "Unknown"
		if err := s.db.First(&user, comment.UserID).Error; err == nil {
			name = user.Name
		}
		views = append(views, CommentView{Comment: comment, AuthorName: name})
	}

	return views
}

func (s *ShopModule) index(c *gin.Context) {
	books, err := s.listBooks()
	if err != nil {
		c.HTML(http.StatusInternalServerError, "error.html", gin.H{
			"error": "Could not load books",
		})
		return
	}

	c.HTML(http.StatusOK, "index.html", gin.H{
		"books":     books,
		"logged_in": loggedIn(c),
		"is_admin":  auth.IsAdministrator(c),
	})
}

func (s *ShopModule) showBook(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.HTML(http.StatusNotFound, "error.html", gin.H{"error": "Book not found"})
		return
	}

	book, err := s.getBook(id)
	if err != nil {
		c.HTML(http.StatusNotFound, "error.html", gin.H{"error": "Book not found"})
		return
	}

	s.analytics.TrackVisit(c, book.ID)

	c.HTML(http.StatusOK, "book.html", gin.H{
		"book":      book,
		"bodyHTML":  template.HTML(renderMarkdown(book.Body)),
		"comments":  s.commentsForBook(book.ID),
		"logged_in": loggedIn(c),
		"is_admin":  auth.IsAdministrator(c),
	})
}

func (s *ShopModule) addCommentPost(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.HTML(http.StatusNotFound, "error.html", gin.H{"error": "Book not found"})
		return
	}

	text := c.PostForm("comment")
	if text == "" {
		c.Redirect(http.StatusFound, "/book/"+c.Param("id"))
		return
	}

	userID, _ := auth.CurrentUserID(c)
	if _, err := s.addComment(id, userID, text); err != nil {
		c.HTML(http.StatusNotFound, "error.html", gin.H{"error": "Book not found"})
		return
	}

	cache.ClearBook(id)
	c.Redirect(http.StatusFound, "/book/"+c.Param("id"))
}

func (s *ShopModule) newBookPage(c *gin.Context) {
	c.HTML(http.StatusOK, "new_book.html", gin.H{
		"fields":    BookFields{},
		"logged_in": true,
	})
}

func (s *ShopModule) createBookPost(c *gin.Context) {
	fields, formErr := bookFieldsFromForm(c)
	if formErr != "" {
		c.HTML(http.StatusBadRequest, "new_book.html", gin.H{
			"error":     formErr,
			"fields":    fields,
			"logged_in": true,
		})
		return
	}

	creatorID := c.GetInt("user_id")
	_, err := s.createBook(fields, creatorID, time.Now().Format(dateLayout))
	if errors.Is(err, ErrTitleTaken) {
		c.HTML(http.StatusBadRequest, "new_book.html", gin.H{
			"error":     "A book with that title already exists",
			"fields":    fields,
			"logged_in": true,
		})
		return
	}
	if err != nil {
		c.HTML(http.StatusInternalServerError, "error.html", gin.H{
			"error": "Could not create book",
		})
		return
	}

	c.Redirect(http.StatusFound, "/")
}

func (s *ShopModule) editBookPage(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.HTML(http.StatusNotFound, "error.html", gin.H{"error": "Book not found"})
		return
	}

	book, err := s.getBook(id)
	if err != nil {
		c.HTML(http.StatusNotFound, "error.html", gin.H{"error": "Book not found"})
		return
	}

	c.HTML(http.StatusOK, "edit_book.html", gin.H{
		"book":       book,
		"visitCount": s.analytics.GetBookVisitCount(book.ID),
		"logged_in":  true,
	})
}

func (s *ShopModule) updateBookPost(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.HTML(http.StatusNotFound, "error.html", gin.H{"error": "Book not found"})
		return
	}

	fields, formErr := bookFieldsFromForm(c)
	if formErr != "" {
		c.HTML(http.StatusBadRequest, "edit_book.html", gin.H{
			"error":     formErr,
			"book":      &models.Book{ID: id},
			"logged_in": true,
		})
		return
	}

	err = s.updateBook(id, fields)
	switch {
	case errors.Is(err, ErrTitleTaken):
		c.HTML(http.StatusBadRequest, "edit_book.html", gin.H{
			"error":     "A book with that title already exists",
			"book":      &models.Book{ID: id},
			"logged_in": true,
		})
		return
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.HTML(http.StatusNotFound, "error.html", gin.H{"error": "Book not found"})
		return
	case err != nil:
		c.HTML(http.StatusInternalServerError, "error.html", gin.H{
			"error": "Could not update book",
		})
		return
	}

	cache.ClearBook(id)
	c.Redirect(http.StatusFound, "/book/"+c.Param("id"))
}

func (s *ShopModule) deleteBookHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.HTML(http.StatusNotFound, "error.html", gin.H{"error": "Book not found"})
		return
	}

	if err := s.deleteBook(id); err != nil {
		c.HTML(http.StatusNotFound, "error.html", gin.H{"error": "Book not found"})
		return
	}

	cache.ClearBook(id)
	c.Redirect(http.StatusFound, "/")
}

func (s *ShopModule) orderBook(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.HTML(http.StatusNotFound, "error.html", gin.H{"error": "Book not found"})
		return
	}

	book, err := s.getBook(id)
	if err != nil {
		c.HTML(http.StatusNotFound, "error.html", gin.H{"error": "Book not found"})
		return
	}

	userID := c.GetInt("user_id")
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	// confirmation only, there is no payment processing
	if s.mailer != nil {
		go func(to, name string, book models.Book) {
			if err := s.mailer.SendOrderConfirmation(to, name, &book); err != nil {
				log.Printf("Error sending order confirmation to %s: %v", to, err)
			}
		}(user.Email, user.Name, *book)
	}

	c.HTML(http.StatusOK, "order.html", gin.H{
		"book":      book,
		"user":      user,
		"logged_in": true,
	})
}

func (s *ShopModule) about(c *gin.Context) {
	c.HTML(http.StatusOK, "about.html", gin.H{
		"logged_in": loggedIn(c),
	})
}

func (s *ShopModule) contact(c *gin.Context) {
	c.HTML(http.StatusOK, "contact.html", gin.H{
		"logged_in": loggedIn(c),
	})
}

func bookFieldsFromForm(c *gin.Context) (BookFields, string) {
	fields := BookFields{
		Title:  c.PostForm("title"),
		Author: c.PostForm("author"),
		Body:   c.PostForm("body"),
		ImgURL: c.PostForm("img_url"),
	}

	if fields.Title == "" || fields.Author == "" {
		return fields, "Title and author are required"
	}

	if raw := c.PostForm("price"); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fields, "Price must be a number"
		}
		fields.Price = price
	}

	return fields, ""
}

func loggedIn(c *gin.Context) bool {
	_, ok := auth.CurrentUserID(c)
	return ok
}

func renderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		// on error, return the raw content rather than break the page
		return content
	}
	return buf.String()
}
