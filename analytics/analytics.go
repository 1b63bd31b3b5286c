package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const visitorCookie = "bookhaven_visitor_id"

// throttleWindow keeps page refreshes from counting as new visits.
const throttleWindow = 30 * time.Minute

// BookEvent is one recorded visit to a book detail page.
type BookEvent struct {
	ID        uint      `gorm:"primary_key;autoIncrement"`
	BookID    int       `gorm:"not null;index"`
	CookieID  string    `gorm:"not null;index"`
	IP        string    `gorm:"not null"`
	Browser   *string   // nullable
	CreatedAt time.Time `gorm:"index"`
}

// AnalyticsModule tracks book page visits in its own database. A nil
// module is valid and records nothing.
type AnalyticsModule struct {
	db *gorm.DB
}

func NewAnalyticsModule(db *gorm.DB) *AnalyticsModule {
	if db == nil {
		log.Println("Analytics DB is nil, analytics will be disabled")
		return nil
	}

	if err := db.AutoMigrate(&BookEvent{}); err != nil {
		log.Printf("Error migrating book_events table: %v", err)
		return nil
	}

	return &AnalyticsModule{db: db}
}

// TrackVisit records a visit unless the same visitor already hit this book
// within the throttle window.
func (a *AnalyticsModule) TrackVisit(c *gin.Context, bookID int) {
	if a == nil || a.db == nil {
		return
	}

	cookieID := a.getOrCreateCookieID(c)

	var recent BookEvent
	err := a.db.Where("cookie_id = ? AND book_id = ? AND created_at > ?",
		cookieID, bookID, time.Now().Add(-throttleWindow)).First(&recent).Error
	if err == nil {
		return
	}

	event := BookEvent{
		BookID:    bookID,
		CookieID:  cookieID,
		IP:        clientIP(c),
		Browser:   extractBrowser(c.Request.UserAgent()),
		CreatedAt: time.Now(),
	}

	// write off the request path, a lost event is fine
	go func() {
		if err := a.db.Create(&event).Error; err != nil {
			log.Printf("Error saving analytics event: %v", err)
		}
	}()
}

// GetBookVisitCount returns the total recorded visits for a book.
func (a *AnalyticsModule) GetBookVisitCount(bookID int) int64 {
	if a == nil || a.db == nil {
		return 0
	}

	var count int64
	a.db.Model(&BookEvent{}).Where("book_id = ?", bookID).Count(&count)
	return count
}

// BookVisits pairs a book id with its visit count.
type BookVisits struct {
	BookID int
	Count  int64
}

// GetTopBooks returns the most visited books of the last N days.
func (a *AnalyticsModule) GetTopBooks(days, limit int) []BookVisits {
	if a == nil || a.db == nil {
		return nil
	}

	startDate := time.Now().AddDate(0, 0, -days)

	var results []BookVisits
	a.db.Model(&BookEvent{}).
		Select("book_id as book_id, COUNT(*) as count").
		Where("created_at >= ?", startDate).
		Group("book_id").
		Order("count DESC").
		Limit(limit).
		Scan(&results)

	return results
}

func (a *AnalyticsModule) getOrCreateCookieID(c *gin.Context) string {
	if cookie, err := c.Cookie(visitorCookie); err == nil && cookie != "" {
		return cookie
	}

	data := time.Now().String() + c.ClientIP() + c.Request.UserAgent()
	hash := sha256.Sum256([]byte(data))
	cookieID := hex.EncodeToString(hash[:])

	c.SetCookie(visitorCookie, cookieID, 60*60*24*365*2, "/", "", false, true)

	return cookieID
}

func clientIP(c *gin.Context) string {
	if ip := c.GetHeader("X-Forwarded-For"); ip != "" {
		ips := strings.Split(ip, ",")
		return strings.TrimSpace(ips[0])
	}

	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}

	return c.ClientIP()
}

func extractBrowser(userAgent string) *string {
	if userAgent == "" {
		return nil
	}

	ua := strings.ToLower(userAgent)
	var browser string

	// order matters, most specific tokens first
	switch {
	case strings.Contains(ua, "edg"):
		browser = "Edge"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "opera") || strings.Contains(ua, "opr"):
		browser = "Opera"
	default:
		browser = "Other"
	}

	return &browser
}
