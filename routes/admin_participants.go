package routes

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mbolis/quick-register/app"
	"github.com/mbolis/quick-register/form"
	"github.com/mbolis/quick-register/httpx"
	"github.com/mbolis/quick-register/log"
	"github.com/mbolis/quick-register/model"
	"github.com/mbolis/quick-register/rules"
	"github.com/mbolis/quick-register/schema"
)

func ListParticipants(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		rows, err := app.QueryContext(r.Context(), `
			SELECT id, meeting_id, first_name, last_name, email, category_id,
				country, language, represents
			FROM participant
			WHERE meeting_id = ?
			ORDER BY last_name, first_name, id`,
			meetingId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_participants", err)
			return
		}
		defer rows.Close()

		participants := []model.Participant{}
		for rows.Next() {
			p := model.Participant{}
			err = rows.Scan(
				&p.ID, &p.MeetingID, &p.FirstName, &p.LastName, &p.Email,
				&p.CategoryID, &p.Country, &p.Language, &p.Represents,
			)
			if err != nil {
				httpx.LogInternalError(w, "db.get_participants.scan", err)
				return
			}
			participants = append(participants, p)
		}

		render.JSON(w, r, map[string]any{
			"participants": participants,
		})
	}
}

func GetParticipantById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}
		participantId, err := strconv.Atoi(chi.URLParam(r, "participantId"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.participantId")
			return
		}

		p := model.Participant{}
		err = app.QueryRowContext(r.Context(), `
			SELECT id, meeting_id, first_name, last_name, email, category_id,
				country, language, represents
			FROM participant
			WHERE id = ? AND meeting_id = ?`,
			participantId, meetingId,
		).Scan(
			&p.ID, &p.MeetingID, &p.FirstName, &p.LastName, &p.Email,
			&p.CategoryID, &p.Country, &p.Language, &p.Represents,
		)
		if err != nil {
			httpx.LogNotFound(w, "get_participant", participantId)
			return
		}

		// non-primary values, multi-checkbox rows folded into lists
		rows, err := app.QueryContext(r.Context(), `
			SELECT f.slug, f.field_type, v.value
			FROM custom_field_value v
			INNER JOIN custom_field f ON (f.id = v.custom_field_id)
			WHERE v.participant_id = ?
			ORDER BY f.sort_order, v.id`,
			participantId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_participant.values", err)
			return
		}
		defer rows.Close()

		values := map[string]any{}
		for rows.Next() {
			var slug, value string
			var fieldType model.FieldType
			err = rows.Scan(&slug, &fieldType, &value)
			if err != nil {
				httpx.LogInternalError(w, "db.get_participant.values.scan", err)
				return
			}
			if fieldType == model.TypeMultiCheckbox {
				list, _ := values[slug].([]string)
				values[slug] = append(list, value)
			} else {
				values[slug] = value
			}
		}

		render.JSON(w, r, map[string]any{
			"participant": p,
			"values":      values,
		})
	}
}

// UpdateParticipant runs an admin edit through the same dynamic form the
// registration uses, rules included.
func UpdateParticipant(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}
		participantId, err := strconv.Atoi(chi.URLParam(r, "participantId"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.participantId")
			return
		}

		var raw map[string]any
		err = render.DecodeJSON(r.Body, &raw)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		fieldFor := fieldForParam(r)
		fields, err := schema.Load(r.Context(), app.DB, schema.Query{
			MeetingID: &meetingId,
			For:       fieldFor,
		})
		if err != nil {
			httpx.LogInternalError(w, "db.get_fields", err)
			return
		}
		ruleSet, err := rules.Load(r.Context(), app.DB, meetingId, fieldFor)
		if err != nil {
			httpx.LogInternalError(w, "db.get_rules", err)
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		p := model.Participant{}
		err = tx.QueryRowContext(r.Context(), `
			SELECT id, meeting_id FROM participant
			WHERE id = ? AND meeting_id = ?`,
			participantId, meetingId,
		).Scan(&p.ID, &p.MeetingID)
		if err != nil {
			httpx.LogNotFound(w, "update_participant", participantId)
			return
		}

		f := form.New(fields, ruleSet, app.Files)
		f.Bind(raw, nil)
		if !f.Validate() {
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, map[string]any{
				"errors": f.Errors(),
			})
			return
		}

		if err = f.Save(r.Context(), tx, &p); err != nil {
			httpx.LogInternalError(w, "db.update_participant", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.update_participant.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
