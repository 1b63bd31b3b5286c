package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"bookhaven/models"
)

// AdminUserID is the identifier of the one and only administrator: the
// first account ever registered. There is no role table.
const AdminUserID = 1

const sessionUserKey = "user_id"

var (
	ErrEmailTaken     = errors.New("email already taken")
	ErrUnknownUser    = errors.New("unknown user")
	ErrWrongPassword  = errors.New("wrong password")
	ErrUserReferenced = errors.New("user still referenced by books or comments")
)

type AuthModule struct {
	db *gorm.DB
}

func NewAuthModule(db *gorm.DB) *AuthModule {
	return &AuthModule{db: db}
}

func (a *AuthModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/register", a.registerPage)
	router.POST("/register", a.registerPost)
	router.GET("/login", a.loginPage)
	router.POST("/login", a.loginPost)
	router.GET("/logout", RequireAuth, a.logout)
}

// CurrentUserID resolves the session cookie to a user identifier.
// ok is false for anonymous requests.
func CurrentUserID(c *gin.Context) (int, bool) {
	session := sessions.Default(c)
	v := session.Get(sessionUserKey)
	if v == nil {
		return 0, false
	}
	id, ok := v.(int)
	return id, ok && id != 0
}

// IsAdministrator reports whether the current identity is the bootstrap
// administrator. Anonymous is never the administrator.
func IsAdministrator(c *gin.Context) bool {
	id, ok := CurrentUserID(c)
	return ok && id == AdminUserID
}

// RequireAuth redirects anonymous requests to the login page and stashes
// the user id in the request context for downstream handlers.
func RequireAuth(c *gin.Context) {
	id, ok := CurrentUserID(c)
	if !ok {
		c.Redirect(http.StatusFound, "/login")
		c.Abort()
		return
	}

	c.Set(sessionUserKey, id)
	c.Next()
}

// RequireAdmin gates mutating content routes. It runs after RequireAuth,
// so the identity is known to be authenticated here.
func RequireAdmin(c *gin.Context) {
	if c.GetInt(sessionUserKey) != AdminUserID {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}
	c.Next()
}

// CurrentUser loads the full user record for the session identity.
func (a *AuthModule) CurrentUser(c *gin.Context) (*models.User, bool) {
	id, ok := CurrentUserID(c)
	if !ok {
		return nil, false
	}

	var user models.User
	if err := a.db.First(&user, id).Error; err != nil {
		return nil, false
	}
	return &user, true
}

func (a *AuthModule) registerUser(name, email, password string) (*models.User, error) {
	var existing models.User
	if err := a.db.Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, ErrEmailTaken
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
	}

	if err := a.db.Create(&user).Error; err != nil {
		// losers of a registration race land on the unique constraint
		if isUniqueErr(err, "users.email") {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	return &user, nil
}

func (a *AuthModule) authenticate(email, password string) (*models.User, error) {
	var user models.User
	if err := a.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, ErrUnknownUser
	}

	if !checkPasswordHash(password, user.PasswordHash) {
		return nil, ErrWrongPassword
	}

	return &user, nil
}

// deleteUser removes an account, refusing while books or comments still
// reference it. Not reachable over HTTP; kept as a store operation.
func (a *AuthModule) deleteUser(id int) error {
	var refs int64
	a.db.Model(&models.Book{}).Where("creator_id = ?", id).Count(&refs)
	if refs > 0 {
		return ErrUserReferenced
	}
	a.db.Model(&models.Comment{}).Where("user_id = ?", id).Count(&refs)
	if refs > 0 {
		return ErrUserReferenced
	}

	return a.db.Delete(&models.User{}, id).Error
}

func (a *AuthModule) registerPage(c *gin.Context) {
	if _, ok := CurrentUserID(c); ok {
		c.Redirect(http.StatusFound, "/")
		return
	}

	c.HTML(http.StatusOK, "register.html", gin.H{
		"flashes": takeFlashes(c),
	})
}

func (a *AuthModule) registerPost(c *gin.Context) {
	name := c.PostForm("name")
	email := c.PostForm("email")
	password := c.PostForm("password")

	user, err := a.registerUser(name, email, password)
	if errors.Is(err, ErrEmailTaken) {
		addFlash(c, "You already registered that email, log in instead!")
		c.Redirect(http.StatusFound, "/login")
		return
	}
	if err != nil {
		c.HTML(http.StatusInternalServerError, "register.html", gin.H{
			"error": "Could not create account",
			"email": email,
		})
		return
	}

	establishSession(c, user)
	c.Redirect(http.StatusFound, "/")
}

func (a *AuthModule) loginPage(c *gin.Context) {
	if _, ok := CurrentUserID(c); ok {
		c.Redirect(http.StatusFound, "/")
		return
	}

	c.HTML(http.StatusOK, "login.html", gin.H{
		"flashes": takeFlashes(c),
	})
}

func (a *AuthModule) loginPost(c *gin.Context) {
	email := c.PostForm("email")
	password := c.PostForm("password")

	user, err := a.authenticate(email, password)
	switch {
	case errors.Is(err, ErrUnknownUser):
		addFlash(c, "Sorry, unknown user.")
		c.Redirect(http.StatusFound, "/login")
		return
	case errors.Is(err, ErrWrongPassword):
		addFlash(c, "Sorry, wrong password.")
		c.Redirect(http.StatusFound, "/login")
		return
	case err != nil:
		addFlash(c, "Login failed.")
		c.Redirect(http.StatusFound, "/login")
		return
	}

	establishSession(c, user)
	c.Redirect(http.StatusFound, "/")
}

func (a *AuthModule) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()

	c.Redirect(http.StatusFound, "/")
}

func establishSession(c *gin.Context, user *models.User) {
	session := sessions.Default(c)
	session.Set(sessionUserKey, user.ID)
	session.Save()
}

func addFlash(c *gin.Context, message string) {
	session := sessions.Default(c)
	session.AddFlash(message)
	session.Save()
}

func takeFlashes(c *gin.Context) []string {
	session := sessions.Default(c)
	raw := session.Flashes()
	session.Save()

	var flashes []string
	for _, f := range raw {
		if s, ok := f.(string); ok {
			flashes = append(flashes, s)
		}
	}
	return flashes
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	return string(bytes), err
}

func checkPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func isUniqueErr(err error, col string) bool {
	// sqlite reports "UNIQUE constraint failed: table.column"
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") && strings.Contains(msg, strings.ToLower(col))
}
