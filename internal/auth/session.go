package auth

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/sefimap/manager/internal/db"
	"github.com/sefimap/manager/internal/models"
)

// SessionTimeout bounds role resolution.
var SessionTimeout = 8 * time.Second

var (
	ErrSlowConnection = errors.New("slow_connection")
	ErrNotAdmin       = errors.New("not_admin")
)

// Session is the authenticated admin behind a request.
type Session struct {
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	Nom            string `json:"nom"`
	Role           string `json:"role"`
	ChefQuartierID *uint  `json:"chef_quartier_id,omitempty"`
}

func (s Session) IsPresident() bool { return s.Role == models.RolePresident }

// Resolve turns verified claims into a session by looking the subject up in
// admin_users. The lookup is abandoned after SessionTimeout.
func Resolve(ctx context.Context, conn *gorm.DB, claims *Claims) (*Session, error) {
	if conn == nil {
		conn = db.Conn()
	}
	ctx, cancel := context.WithTimeout(ctx, SessionTimeout)
	defer cancel()

	type result struct {
		user models.AdminUser
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		var u models.AdminUser
		err := conn.WithContext(ctx).Where("user_id = ?", claims.Subject).First(&u).Error
		ch <- result{u, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ErrSlowConnection
	case res := <-ch:
		if errors.Is(res.err, gorm.ErrRecordNotFound) {
			return nil, ErrNotAdmin
		}
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				return nil, ErrSlowConnection
			}
			return nil, errors.Wrap(res.err, "load admin user")
		}
		email := res.user.Email
		if email == "" {
			email = claims.Email
		}
		return &Session{
			UserID:         res.user.UserID,
			Email:          strings.ToLower(email),
			Nom:            res.user.Nom,
			Role:           res.user.Role,
			ChefQuartierID: res.user.ChefQuartierID,
		}, nil
	}
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by RequireSession.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}
