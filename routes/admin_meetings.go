package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mbolis/quick-register/app"
	"github.com/mbolis/quick-register/clone"
	"github.com/mbolis/quick-register/httpx"
	"github.com/mbolis/quick-register/log"
	"github.com/mbolis/quick-register/model"
)

func CreateMeeting(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meeting := model.Meeting{}
		err := render.DecodeJSON(r.Body, &meeting)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if meeting.Acronym == "" || meeting.Title == "" {
			httpx.LogUnprocessable(w, "insert_meeting.validate", "acronym and title are required")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		meeting, err = clone.Create(r.Context(), tx, meeting)
		if errors.Is(err, clone.ErrAcronymTaken) {
			httpx.LogUnprocessable(w, "db.insert_meeting.acronym", err.Error())
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.insert_meeting", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_meeting.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": meeting.ID,
		})
	}
}

func ListMeetings(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := app.QueryContext(r.Context(), `
			SELECT id, acronym, title, meeting_type, starts_on, ends_on
			FROM meeting
			ORDER BY starts_on DESC, id DESC`)
		if err != nil {
			httpx.LogInternalError(w, "db.get_meetings", err)
			return
		}
		defer rows.Close()

		meetings := []model.Meeting{}
		for rows.Next() {
			m := model.Meeting{}
			err = rows.Scan(&m.ID, &m.Acronym, &m.Title, &m.MeetingType, &m.StartsOn, &m.EndsOn)
			if err != nil {
				httpx.LogInternalError(w, "db.get_meetings.scan", err)
				return
			}
			meetings = append(meetings, m)
		}

		render.JSON(w, r, map[string]any{
			"meetings": meetings,
		})
	}
}

func GetMeetingById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		m := model.Meeting{}
		err = app.QueryRowContext(r.Context(), `
			SELECT id, acronym, title, meeting_type, starts_on, ends_on
			FROM meeting WHERE id = ?`,
			meetingId,
		).Scan(&m.ID, &m.Acronym, &m.Title, &m.MeetingType, &m.StartsOn, &m.EndsOn)
		if err != nil {
			httpx.LogNotFound(w, "get_meeting", meetingId)
			return
		}

		render.JSON(w, r, m)
	}
}

func UpdateMeeting(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		meeting := model.Meeting{}
		err = render.DecodeJSON(r.Body, &meeting)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			UPDATE meeting
			SET acronym = ?, title = ?, meeting_type = ?, starts_on = ?, ends_on = ?
			WHERE id = ?`,
			meeting.Acronym, meeting.Title, meeting.MeetingType,
			meeting.StartsOn, meeting.EndsOn,
			meetingId,
		)
		if err != nil {
			if isUniqueViolation(err) {
				httpx.LogUnprocessable(w, "db.update_meeting.acronym", "acronym already in use")
				return
			}
			httpx.LogInternalError(w, "db.update_meeting", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.update_meeting.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "update_meeting", meetingId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteMeeting(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			DELETE FROM meeting WHERE id = ?`,
			meetingId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_meeting", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_meeting.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_meeting", meetingId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// CloneMeeting deep-copies a meeting's schema, categories, phrases, rules
// and role assignments into a new meeting. Any remapping failure aborts
// the whole operation.
func CloneMeeting(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sourceId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		meeting := model.Meeting{}
		err = render.DecodeJSON(r.Body, &meeting)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if meeting.Acronym == "" || meeting.Title == "" {
			httpx.LogUnprocessable(w, "clone_meeting.validate", "acronym and title are required")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		meeting, err = clone.Meeting(r.Context(), tx, sourceId, meeting)
		if errors.Is(err, clone.ErrAcronymTaken) {
			httpx.LogUnprocessable(w, "db.clone_meeting.acronym", err.Error())
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.clone_meeting", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.clone_meeting.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": meeting.ID,
		})
	}
}
