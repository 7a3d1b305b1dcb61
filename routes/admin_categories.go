package routes

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mbolis/quick-register/app"
	"github.com/mbolis/quick-register/httpx"
	"github.com/mbolis/quick-register/log"
	"github.com/mbolis/quick-register/model"
	"github.com/mbolis/quick-register/schema"
)

func ListCategories(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		categories, err := schema.Categories(r.Context(), app.DB, &meetingId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_categories", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"categories": categories,
		})
	}
}

func CreateCategory(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		category := model.Category{}
		err = render.DecodeJSON(r.Body, &category)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if category.Title.EN == "" {
			httpx.LogUnprocessable(w, "insert_category.validate", "an english title is required")
			return
		}

		var categoryId int
		err = app.QueryRowContext(r.Context(), `
			INSERT INTO category (meeting_id, title, sort_order)
			VALUES (?, ?, ?)
			RETURNING id`,
			meetingId, category.Title, category.SortOrder,
		).Scan(&categoryId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_category", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": categoryId,
		})
	}
}

func UpdateCategory(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}
		categoryId, err := strconv.Atoi(chi.URLParam(r, "categoryId"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.categoryId")
			return
		}

		category := model.Category{}
		err = render.DecodeJSON(r.Body, &category)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			UPDATE category SET title = ?, sort_order = ?
			WHERE id = ? AND meeting_id = ?`,
			category.Title, category.SortOrder,
			categoryId, meetingId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_category", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.update_category.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "update_category", categoryId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteCategory(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}
		categoryId, err := strconv.Atoi(chi.URLParam(r, "categoryId"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.categoryId")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			DELETE FROM category WHERE id = ? AND meeting_id = ?`,
			categoryId, meetingId,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				httpx.LogUnprocessable(w, "db.delete_category",
					"this category is still assigned to participants")
				return
			}
			httpx.LogInternalError(w, "db.delete_category", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_category.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_category", categoryId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
