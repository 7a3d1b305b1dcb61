package routes

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mbolis/quick-register/app"
	"github.com/mbolis/quick-register/database"
	"github.com/mbolis/quick-register/httpx"
	"github.com/mbolis/quick-register/log"
	"github.com/mbolis/quick-register/model"
	"github.com/mbolis/quick-register/rules"
)

func ListRules(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		set, err := rules.Load(r.Context(), app.DB, meetingId, fieldForParam(r))
		if err != nil {
			httpx.LogInternalError(w, "db.get_rules", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"rules": set,
		})
	}
}

func CreateRule(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		rule := model.Rule{}
		err = render.DecodeJSON(r.Body, &rule)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		rule.MeetingID = meetingId
		if rule.Name == "" {
			httpx.LogUnprocessable(w, "insert_rule.validate", "a rule name is required")
			return
		}
		if !rule.For.Valid() {
			rule.For = model.ForParticipant
		}
		if err = rules.Check(rule); err != nil {
			httpx.LogUnprocessable(w, "insert_rule.validate", err.Error())
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		if err = checkRuleFields(r, tx, meetingId, rule); err != nil {
			httpx.LogUnprocessable(w, "insert_rule.fields", err.Error())
			return
		}

		ruleId, err := insertRule(r, tx, rule)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_rule", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_rule.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": ruleId,
		})
	}
}

func UpdateRule(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}
		ruleId, err := strconv.Atoi(chi.URLParam(r, "ruleId"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.ruleId")
			return
		}

		rule := model.Rule{}
		err = render.DecodeJSON(r.Body, &rule)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		rule.MeetingID = meetingId
		if err = rules.Check(rule); err != nil {
			httpx.LogUnprocessable(w, "update_rule.validate", err.Error())
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		if err = checkRuleFields(r, tx, meetingId, rule); err != nil {
			httpx.LogUnprocessable(w, "update_rule.fields", err.Error())
			return
		}

		// replace the whole definition: children are not referenced elsewhere
		res, err := tx.ExecContext(r.Context(), `
			DELETE FROM rule WHERE id = ? AND meeting_id = ?`,
			ruleId, meetingId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_rule.delete", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.update_rule.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "update_rule", ruleId)
			return
		}

		if _, err = insertRule(r, tx, rule); err != nil {
			httpx.LogInternalError(w, "db.update_rule.insert", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.update_rule.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteRule(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}
		ruleId, err := strconv.Atoi(chi.URLParam(r, "ruleId"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.ruleId")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			DELETE FROM rule WHERE id = ? AND meeting_id = ?`,
			ruleId, meetingId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_rule", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_rule.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_rule", ruleId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// checkRuleFields verifies every referenced field belongs to the meeting.
func checkRuleFields(r *http.Request, tx database.Querier, meetingId int, rule model.Rule) error {
	ids := map[int]bool{}
	for _, c := range rule.Conditions {
		ids[c.FieldID] = true
	}
	for _, a := range rule.Actions {
		ids[a.FieldID] = true
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, meetingId)
	placeholders := make([]string, 0, len(ids))
	for id := range ids {
		args = append(args, id)
		placeholders = append(placeholders, "?")
	}

	var count int
	err := tx.QueryRowContext(r.Context(), `
		SELECT COUNT(*) FROM custom_field
		WHERE meeting_id = ? AND id IN (`+strings.Join(placeholders, ",")+`)`,
		args...,
	).Scan(&count)
	if err != nil {
		return err
	}
	if count != len(ids) {
		return fmt.Errorf("a condition or action references a field outside this meeting")
	}
	return nil
}

func insertRule(r *http.Request, tx database.Querier, rule model.Rule) (int, error) {
	var ruleId int
	err := tx.QueryRowContext(r.Context(), `
		INSERT INTO rule (meeting_id, name, rule_for)
		VALUES (?, ?, ?)
		RETURNING id`,
		rule.MeetingID, rule.Name, rule.For,
	).Scan(&ruleId)
	if err != nil {
		return 0, err
	}

	for _, c := range rule.Conditions {
		var conditionId int
		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO rule_condition (rule_id, custom_field_id)
			VALUES (?, ?)
			RETURNING id`,
			ruleId, c.FieldID,
		).Scan(&conditionId)
		if err != nil {
			return 0, err
		}

		for _, value := range c.Values {
			_, err = tx.ExecContext(r.Context(), `
				INSERT INTO rule_condition_value (condition_id, value)
				VALUES (?, ?)`,
				conditionId, value,
			)
			if err != nil {
				return 0, err
			}
		}
	}

	for _, a := range rule.Actions {
		_, err = tx.ExecContext(r.Context(), `
			INSERT INTO rule_action (rule_id, custom_field_id, is_required, is_visible)
			VALUES (?, ?, ?, ?)`,
			ruleId, a.FieldID, a.Required, a.Visible,
		)
		if err != nil {
			return 0, err
		}
	}
	return ruleId, nil
}
