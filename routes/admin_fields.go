package routes

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mbolis/quick-register/app"
	"github.com/mbolis/quick-register/database"
	"github.com/mbolis/quick-register/httpx"
	"github.com/mbolis/quick-register/log"
	"github.com/mbolis/quick-register/model"
	"github.com/mbolis/quick-register/schema"
)

func ListFields(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		fields, err := schema.Load(r.Context(), app.DB, schema.Query{
			MeetingID: &meetingId,
			For:       fieldForParam(r),
		})
		if err != nil {
			httpx.LogInternalError(w, "db.get_fields", err)
			return
		}

		out := make([]model.CustomField, len(fields))
		for i := range fields {
			out[i] = fields[i].CustomField
		}
		render.JSON(w, r, map[string]any{
			"fields": out,
		})
	}
}

func CreateField(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		field := model.CustomField{}
		err = render.DecodeJSON(r.Body, &field)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if !field.Type.Valid() {
			httpx.LogUnprocessable(w, "insert_field.validate", "unknown field type "+string(field.Type))
			return
		}
		if !field.For.Valid() {
			field.For = model.ForParticipant
		}
		if field.Label.EN == "" {
			httpx.LogUnprocessable(w, "insert_field.validate", "an english label is required")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		// slug derived from the label, kept unique within the meeting
		var taken []string
		rows, err := tx.QueryContext(r.Context(), `
			SELECT slug FROM custom_field
			WHERE meeting_id = ? AND field_for = ?`,
			meetingId, field.For,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_field.slugs", err)
			return
		}
		for rows.Next() {
			var slug string
			if err = rows.Scan(&slug); err != nil {
				rows.Close()
				httpx.LogInternalError(w, "db.insert_field.slugs.scan", err)
				return
			}
			taken = append(taken, slug)
		}
		rows.Close()
		field.Slug = model.UniqueSlug(model.Slugify(field.Label.EN), taken)

		var fieldId int
		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO custom_field
				(meeting_id, slug, label, field_type, field_for, required, sort_order,
				is_primary, is_protected, visible_on_form, max_length)
			VALUES (?, ?, ?, ?, ?, ?, ?, FALSE, FALSE, ?, ?)
			RETURNING id`,
			meetingId, field.Slug, field.Label, field.Type, field.For,
			field.Required, field.SortOrder, field.VisibleOnForm, field.MaxLength,
		).Scan(&fieldId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_field", err)
			return
		}

		for _, c := range field.Choices {
			_, err = tx.ExecContext(r.Context(), `
				INSERT INTO custom_field_choice (custom_field_id, label, sort_order)
				VALUES (?, ?, ?)`,
				fieldId, c.Label, c.SortOrder,
			)
			if err != nil {
				httpx.LogInternalError(w, "db.insert_field.choices", err)
				return
			}
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_field.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id":   fieldId,
			"slug": field.Slug,
		})
	}
}

func UpdateField(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}
		fieldId, err := strconv.Atoi(chi.URLParam(r, "fieldId"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.fieldId")
			return
		}

		field := model.CustomField{}
		err = render.DecodeJSON(r.Body, &field)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		var protected bool
		err = tx.QueryRowContext(r.Context(), `
			SELECT is_protected FROM custom_field
			WHERE id = ? AND meeting_id = ?`,
			fieldId, meetingId,
		).Scan(&protected)
		if err != nil {
			httpx.LogNotFound(w, "update_field", fieldId)
			return
		}
		if protected {
			httpx.LogStatus(w, http.StatusForbidden, log.DebugLevel, "update_field.protected")
			return
		}

		// slug and type are stable identifiers; only presentation and
		// validation attributes can change
		_, err = tx.ExecContext(r.Context(), `
			UPDATE custom_field
			SET label = ?, required = ?, sort_order = ?, visible_on_form = ?, max_length = ?
			WHERE id = ?`,
			field.Label, field.Required, field.SortOrder, field.VisibleOnForm, field.MaxLength,
			fieldId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_field", err)
			return
		}

		if err = updateChoices(r, tx, fieldId, field.Choices); err != nil {
			if isForeignKeyViolation(err) {
				httpx.LogUnprocessable(w, "db.update_field.choices", "a removed choice is still selected by participants")
				return
			}
			httpx.LogInternalError(w, "db.update_field.choices", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.update_field.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// updateChoices reconciles the submitted choice list with the stored one:
// known ids are updated, new entries inserted, missing ones deleted.
func updateChoices(r *http.Request, tx database.Querier, fieldId int, choices []model.CustomFieldChoice) error {
	rows, err := tx.QueryContext(r.Context(), `
		SELECT id FROM custom_field_choice WHERE custom_field_id = ?`,
		fieldId,
	)
	if err != nil {
		return err
	}
	leftover := map[int]bool{}
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		leftover[id] = true
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return err
	}

	for _, c := range choices {
		if c.ID > 0 && leftover[c.ID] {
			delete(leftover, c.ID)
			_, err = tx.ExecContext(r.Context(), `
				UPDATE custom_field_choice SET label = ?, sort_order = ?
				WHERE id = ? AND custom_field_id = ?`,
				c.Label, c.SortOrder, c.ID, fieldId,
			)
		} else {
			_, err = tx.ExecContext(r.Context(), `
				INSERT INTO custom_field_choice (custom_field_id, label, sort_order)
				VALUES (?, ?, ?)`,
				fieldId, c.Label, c.SortOrder,
			)
		}
		if err != nil {
			return err
		}
	}

	for id := range leftover {
		_, err = tx.ExecContext(r.Context(), `
			DELETE FROM custom_field_choice WHERE id = ?`,
			id,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func DeleteField(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}
		fieldId, err := strconv.Atoi(chi.URLParam(r, "fieldId"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.fieldId")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		var protected bool
		err = tx.QueryRowContext(r.Context(), `
			SELECT is_protected FROM custom_field
			WHERE id = ? AND meeting_id = ?`,
			fieldId, meetingId,
		).Scan(&protected)
		if err != nil {
			httpx.LogNotFound(w, "delete_field", fieldId)
			return
		}
		if protected {
			httpx.LogStatus(w, http.StatusForbidden, log.DebugLevel, "delete_field.protected")
			return
		}

		// a field with stored values must be decoupled from its data first
		var valueCount int
		err = tx.QueryRowContext(r.Context(), `
			SELECT COUNT(*) FROM custom_field_value WHERE custom_field_id = ?`,
			fieldId,
		).Scan(&valueCount)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_field.values", err)
			return
		}
		if valueCount > 0 {
			httpx.LogUnprocessable(w, "delete_field.values",
				"this field has stored participant values; remove them first")
			return
		}

		_, err = tx.ExecContext(r.Context(), `
			DELETE FROM custom_field WHERE id = ?`,
			fieldId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_field", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_field.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
