package models

import "time"

type User struct {
	ID           int    `gorm:"primary_key;autoIncrement" json:"id"`
	Name         string `gorm:"not null" json:"name"`
	Email        string `gorm:"unique;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"` // json:"-" prevents password from being exposed in API
}

type Book struct {
	ID        int     `gorm:"primary_key;autoIncrement" json:"id"`
	Title     string  `gorm:"unique;not null" json:"title"`
	Author    string  `gorm:"not null" json:"author"`
	Price     float64 `json:"price"`
	Date      string  `gorm:"not null" json:"date"` // display string, e.g. "January 2, 2006"
	Body      string  `gorm:"type:text" json:"body"`
	ImgURL    string  `gorm:"not null" json:"img_url"`
	CreatorID *int    `gorm:"index" json:"creator_id,omitempty"` // user that created the book, nullable
}

type Comment struct {
	ID        int       `gorm:"primary_key;autoIncrement" json:"id"`
	BookID    int       `gorm:"not null;index" json:"book_id"`
	UserID    int       `gorm:"not null;index" json:"user_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
