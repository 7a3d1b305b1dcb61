package routes

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	urlform "github.com/ajg/form"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mbolis/quick-register/app"
	"github.com/mbolis/quick-register/field"
	"github.com/mbolis/quick-register/form"
	"github.com/mbolis/quick-register/httpx"
	"github.com/mbolis/quick-register/log"
	"github.com/mbolis/quick-register/model"
	"github.com/mbolis/quick-register/rules"
	"github.com/mbolis/quick-register/schema"
)

type formChoice struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

type formField struct {
	Slug       string          `json:"slug"`
	Label      string          `json:"label"`
	Type       model.FieldType `json:"type"`
	Required   bool            `json:"required"`
	MaxLength  int             `json:"max_length,omitempty"`
	Choices    []formChoice    `json:"choices,omitempty"`
	Visibility []rules.Hint    `json:"visibility,omitempty"`
}

// PublicGetRegistrationForm renders the registration schema of a meeting:
// ordered fields with localized labels and choices, plus the visibility
// hints a client script needs to toggle rule-driven fields without a
// round trip.
func PublicGetRegistrationForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}
		lang := langParam(r)
		fieldFor := fieldForParam(r)

		m := model.Meeting{}
		err = app.QueryRowContext(r.Context(), `
			SELECT id, acronym, title, meeting_type FROM meeting WHERE id = ?`,
			meetingId,
		).Scan(&m.ID, &m.Acronym, &m.Title, &m.MeetingType)
		if err != nil {
			httpx.LogNotFound(w, "get_registration", meetingId)
			return
		}

		fields, err := schema.Load(r.Context(), app.DB, schema.Query{
			MeetingID:        &meetingId,
			For:              fieldFor,
			RegistrationOnly: true,
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
		hints := ruleSet.VisibilityHints()

		phrases, err := meetingPhrases(r, app, meetingId, lang)
		if err != nil {
			httpx.LogInternalError(w, "db.get_phrases", err)
			return
		}

		out := make([]formField, len(fields))
		for i := range fields {
			d := &fields[i]
			ff := formField{
				Slug:       d.Slug,
				Label:      d.Label.In(lang),
				Type:       d.Type,
				Required:   d.Required,
				MaxLength:  d.MaxLength,
				Visibility: hints[d.Slug],
			}
			for _, c := range d.Choices {
				ff.Choices = append(ff.Choices, formChoice{ID: c.ID, Label: c.Label.In(lang)})
			}
			out[i] = ff
		}

		render.JSON(w, r, map[string]any{
			"meeting": m,
			"phrases": phrases,
			"fields":  out,
		})
	}
}

func meetingPhrases(r *http.Request, app app.App, meetingId int, lang string) (map[string]string, error) {
	rows, err := app.QueryContext(r.Context(), `
		SELECT key, text FROM phrase WHERE meeting_id = ?`,
		meetingId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	phrases := map[string]string{}
	for rows.Next() {
		var key string
		var text model.LocalizedText
		if err = rows.Scan(&key, &text); err != nil {
			return nil, err
		}
		phrases[key] = text.In(lang)
	}
	return phrases, rows.Err()
}

// PublicRegister accepts a registration submission as JSON, urlencoded or
// multipart form data, validates it through the dynamic form (static pass
// first, then the meeting's rules) and stores the participant.
func PublicRegister(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}
		fieldFor := fieldForParam(r)

		var exists bool
		err = app.QueryRowContext(r.Context(), `
			SELECT 1 FROM meeting WHERE id = ?`,
			meetingId,
		).Scan(&exists)
		if err != nil {
			httpx.LogNotFound(w, "register.meeting", meetingId)
			return
		}

		raw, uploads, err := decodeSubmission(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		defer closeUploads(uploads)

		fields, err := schema.Load(r.Context(), app.DB, schema.Query{
			MeetingID:        &meetingId,
			For:              fieldFor,
			RegistrationOnly: true,
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

		f := form.New(fields, ruleSet, app.Files)
		f.Bind(raw, uploads)
		if !f.Validate() {
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, map[string]any{
				"errors": f.Errors(),
			})
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		p := model.Participant{MeetingID: meetingId}
		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO participant (meeting_id) VALUES (?)
			RETURNING id`,
			meetingId,
		).Scan(&p.ID)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_participant", err)
			return
		}

		if err = f.Save(r.Context(), tx, &p); err != nil {
			httpx.LogInternalError(w, "db.insert_participant.values", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_participant.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": p.ID,
		})
	}
}

// closeUploads releases the multipart file handles once the submission
// has been saved or rejected.
func closeUploads(uploads map[string]*field.Upload) {
	for _, u := range uploads {
		if c, ok := u.Data.(io.Closer); ok {
			c.Close()
		}
	}
}

// decodeSubmission normalizes the three accepted content types into a raw
// value map keyed by field slug, plus pending uploads for file fields.
func decodeSubmission(r *http.Request) (map[string]any, map[string]*field.Upload, error) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("content-type"))

	switch contentType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, nil, err
		}

		raw := map[string]any{}
		for name, values := range r.MultipartForm.Value {
			if len(values) == 1 {
				raw[name] = values[0]
			} else {
				list := make([]any, len(values))
				for i, v := range values {
					list[i] = v
				}
				raw[name] = list
			}
		}

		uploads := map[string]*field.Upload{}
		for name, headers := range r.MultipartForm.File {
			if len(headers) == 0 {
				continue
			}
			file, err := headers[0].Open()
			if err != nil {
				closeUploads(uploads)
				return nil, nil, err
			}
			uploads[name] = &field.Upload{Filename: headers[0].Filename, Data: file}
		}
		return raw, uploads, nil

	case "application/x-www-form-urlencoded":
		var raw map[string]any
		err := urlform.NewDecoder(r.Body).Decode(&raw)
		if err != nil {
			return nil, nil, err
		}
		return raw, nil, nil

	default:
		var raw map[string]any
		err := render.DecodeJSON(r.Body, &raw)
		if err != nil {
			return nil, nil, err
		}
		return raw, nil, nil
	}
}
