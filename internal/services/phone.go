package services

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/sefimap/manager/internal/models"
)

// PhonePrefix is the country prefix applied to local numbers.
var PhonePrefix = "+225"

var (
	reLetters = regexp.MustCompile(`[A-Za-z]`)
	// Only allow digits, spaces, dots, +, -, (, )
	reAllowed = regexp.MustCompile(`^[0-9+\-\s\.\(\)]+$`)
)

// NormPhone normalizes phone numbers to the +<country><local> form stored in
// the app. Local numbers keep their leading zero ("07 08 09 10 11" becomes
// "+2250708091011"). Returns "" for anything that is not a phone number.
func NormPhone(p string) string {
	s := strings.TrimSpace(p)

	if s == "" {
		return ""
	}
	if reLetters.MatchString(s) {
		return ""
	}
	if !reAllowed.MatchString(s) {
		return ""
	}

	// strip separators
	repl := strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "", "\n", "", "\r", "", "\t", "")
	s = repl.Replace(s)

	cc := strings.TrimPrefix(PhonePrefix, "+")

	// 00.. -> +..
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if strings.HasPrefix(s, "+") {
		if len(digitsOnly(s)) < 8 {
			return ""
		}
		return s
	}
	// country code without plus
	if strings.HasPrefix(s, cc) && len(s) > len(cc)+7 {
		return "+" + s
	}
	if len(s) < 8 {
		return ""
	}
	return PhonePrefix + s
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FindInscriptionByPhone matches a participant or guardian phone in any of
// its stored spellings, comparing digits only.
func FindInscriptionByPhone(tx *gorm.DB, phone string) (*models.Inscription, error) {
	in := digitsOnly(NormPhone(phone))
	if in == "" {
		return nil, ErrInscriptionIntrouvable
	}
	q := `REPLACE(REPLACE(REPLACE(REPLACE(REPLACE(%s,'+',''),' ',''),'-',''),'(',''),')','')`
	var insc models.Inscription
	err := tx.Where(
		strings.ReplaceAll(q, "%s", "telephone")+" = ? OR "+strings.ReplaceAll(q, "%s", "telephone_tuteur")+" = ?",
		in, in,
	).Order("created_at desc").First(&insc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInscriptionIntrouvable
	}
	if err != nil {
		return nil, errors.Wrap(err, "find inscription by phone")
	}
	return &insc, nil
}
