package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"bookhaven/models"
)

func setupTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		panic("failed to connect database")
	}

	db.AutoMigrate(&models.User{}, &models.Book{}, &models.Comment{})
	return db
}

func setupTestRouter(authModule *AuthModule) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	store := cookie.NewStore([]byte("secret"))
	router.Use(sessions.Sessions("test-session", store))
	authModule.RegisterRoutes(router)
	return router
}

func postForm(router *gin.Engine, path string, form url.Values, cookies string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookies != "" {
		req.Header.Set("Cookie", cookies)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) string {
	raw := w.Header().Get("Set-Cookie")
	if raw == "" {
		return ""
	}
	return strings.SplitN(raw, ";", 2)[0]
}

func TestRegisterUser_Success(t *testing.T) {
	db := setupTestDB()
	a := NewAuthModule(db)

	user, err := a.registerUser("Alice", "alice@example.com", "pw1")
	assert.NoError(t, err)
	assert.Equal(t, 1, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "pw1", user.PasswordHash)
}

func TestRegisterUser_DuplicateEmail(t *testing.T) {
	db := setupTestDB()
	a := NewAuthModule(db)

	first, err := a.registerUser("Alice", "alice@example.com", "pw1")
	assert.NoError(t, err)

	_, err = a.registerUser("Impostor", "alice@example.com", "other")
	assert.ErrorIs(t, err, ErrEmailTaken)

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(1), count)

	var stored models.User
	db.First(&stored, first.ID)
	assert.Equal(t, "Alice", stored.Name)
	assert.Equal(t, first.PasswordHash, stored.PasswordHash)
}

func TestAuthenticate(t *testing.T) {
	db := setupTestDB()
	a := NewAuthModule(db)

	registered, err := a.registerUser("Alice", "alice@example.com", "pw1")
	assert.NoError(t, err)

	_, err = a.authenticate("nobody@example.com", "pw1")
	assert.ErrorIs(t, err, ErrUnknownUser)

	_, err = a.authenticate("alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrWrongPassword)

	user, err := a.authenticate("alice@example.com", "pw1")
	assert.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
}

func TestFirstRegisteredUserIsAdministrator(t *testing.T) {
	db := setupTestDB()
	a := NewAuthModule(db)

	alice, _ := a.registerUser("Alice", "alice@example.com", "pw1")
	bob, _ := a.registerUser("Bob", "bob@example.com", "pw2")

	assert.Equal(t, AdminUserID, alice.ID)
	assert.NotEqual(t, AdminUserID, bob.ID)
}

func TestDeleteUser_RestrictedWhileReferenced(t *testing.T) {
	db := setupTestDB()
	a := NewAuthModule(db)

	user, _ := a.registerUser("Alice", "alice@example.com", "pw1")

	db.Create(&models.Comment{BookID: 1, UserID: user.ID, Text: "nice"})
	assert.ErrorIs(t, a.deleteUser(user.ID), ErrUserReferenced)

	db.Where("user_id = ?", user.ID).Delete(&models.Comment{})
	db.Create(&models.Book{Title: "T", Author: "A", Date: "x", ImgURL: "y", CreatorID: &user.ID})
	assert.ErrorIs(t, a.deleteUser(user.ID), ErrUserReferenced)

	db.Where("creator_id = ?", user.ID).Delete(&models.Book{})
	assert.NoError(t, a.deleteUser(user.ID))

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestPasswordHashing(t *testing.T) {
	password := "testpassword"

	hash, err := hashPassword(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, password, hash)

	assert.True(t, checkPasswordHash(password, hash))
	assert.False(t, checkPasswordHash("wrongpassword", hash))
}

func TestRegisterPost_EstablishesSession(t *testing.T) {
	db := setupTestDB()
	a := NewAuthModule(db)
	router := setupTestRouter(a)

	w := postForm(router, "/register", url.Values{
		"name":     {"Alice"},
		"email":    {"alice@example.com"},
		"password": {"pw1"},
	}, "")

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	cookies := sessionCookie(w)
	assert.NotEmpty(t, cookies)

	// the fresh session passes RequireAuth on /logout
	req, _ := http.NewRequest("GET", "/logout", nil)
	req.Header.Set("Cookie", cookies)
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req)

	assert.Equal(t, http.StatusFound, w2.Code)
	assert.Equal(t, "/", w2.Header().Get("Location"))
}

func TestRegisterPost_DuplicateEmailRedirectsToLogin(t *testing.T) {
	db := setupTestDB()
	a := NewAuthModule(db)
	router := setupTestRouter(a)

	postForm(router, "/register", url.Values{
		"name":     {"Alice"},
		"email":    {"alice@example.com"},
		"password": {"pw1"},
	}, "")

	w := postForm(router, "/register", url.Values{
		"name":     {"Impostor"},
		"email":    {"alice@example.com"},
		"password": {"other"},
	}, "")

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestLoginPost(t *testing.T) {
	db := setupTestDB()
	a := NewAuthModule(db)
	router := setupTestRouter(a)

	a.registerUser("Alice", "alice@example.com", "pw1")

	w := postForm(router, "/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"wrong"},
	}, "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = postForm(router, "/login", url.Values{
		"email":    {"nobody@example.com"},
		"password": {"pw1"},
	}, "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = postForm(router, "/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"pw1"},
	}, "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.NotEmpty(t, sessionCookie(w))
}

func TestRequireAuth_AnonymousRedirectsToLogin(t *testing.T) {
	db := setupTestDB()
	a := NewAuthModule(db)
	router := setupTestRouter(a)

	req, _ := http.NewRequest("GET", "/logout", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/login")
}

func TestRequireAdmin(t *testing.T) {
	db := setupTestDB()
	a := NewAuthModule(db)
	router := setupTestRouter(a)

	router.GET("/admin-only", RequireAuth, RequireAdmin, func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	// anonymous: bounced to login before the gate
	req, _ := http.NewRequest("GET", "/admin-only", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusFound, w.Code)

	// first registered user is the administrator
	alice := postForm(router, "/register", url.Values{
		"name": {"Alice"}, "email": {"alice@example.com"}, "password": {"pw1"},
	}, "")
	req, _ = http.NewRequest("GET", "/admin-only", nil)
	req.Header.Set("Cookie", sessionCookie(alice))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// second user is not
	bob := postForm(router, "/register", url.Values{
		"name": {"Bob"}, "email": {"bob@example.com"}, "password": {"pw2"},
	}, "")
	req, _ = http.NewRequest("GET", "/admin-only", nil)
	req.Header.Set("Cookie", sessionCookie(bob))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
