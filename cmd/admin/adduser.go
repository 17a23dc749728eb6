package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/sefimap/manager/internal/auth"
	"github.com/sefimap/manager/internal/models"
	"github.com/sefimap/manager/internal/services"
)

var (
	errRole  = errors.New("role must be admin, president or finance")
	errEmail = errors.New("invalid email")
)

// addUser updates or creates an admin_users row keyed by email.
func (cli *commandLine) addUser(userID, email, nom, role string, chefID uint) error {
	email, ok := services.NormEmail(email)
	if !ok || email == "" {
		return errEmail
	}
	switch role {
	case models.RoleAdmin, models.RolePresident, models.RoleFinance:
	default:
		return errRole
	}

	var u models.AdminUser
	err := cli.db.Where("email = ?", email).First(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		u = models.AdminUser{Email: email, UserID: userID}
		if u.UserID == "" {
			u.UserID = uuid.NewString()
		}
	case err != nil:
		return errors.Wrap(err, "load admin user")
	case userID != "":
		u.UserID = userID
	}
	u.Role = role
	if nom != "" {
		u.Nom = nom
	}
	u.ChefQuartierID = nil
	if role == models.RolePresident && chefID != 0 {
		u.ChefQuartierID = &chefID
	}
	if err := cli.db.Save(&u).Error; err != nil {
		return errors.Wrap(err, "save admin user")
	}
	fmt.Fprintf(cli.out, "%s (%s) -> %s\n", u.Email, u.UserID, u.Role)
	return nil
}

// token signs a session token for an existing admin user, for local testing
// without the hosted auth provider.
func (cli *commandLine) token(email string, ttl time.Duration) error {
	var u models.AdminUser
	email, _ = services.NormEmail(email)
	if err := cli.db.Where("email = ?", email).First(&u).Error; err != nil {
		return errors.Wrap(err, "load admin user")
	}
	tok, err := auth.IssueToken(cli.secret, u.UserID, u.Email, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, tok)
	return nil
}
