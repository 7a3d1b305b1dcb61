package routes

import (
	"errors"
	"net/http"

	"github.com/mattn/go-sqlite3"
	"github.com/mbolis/quick-register/model"
)

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// ?for=participant|media, defaulting to participant
func fieldForParam(r *http.Request) model.FieldFor {
	f := model.FieldFor(r.URL.Query().Get("for"))
	if !f.Valid() {
		return model.ForParticipant
	}
	return f
}

// ?lang=en|fr|es
func langParam(r *http.Request) string {
	return r.URL.Query().Get("lang")
}
