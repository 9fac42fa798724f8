package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aretw0/botflow/pkg/actions"
	"github.com/aretw0/botflow/pkg/adapters/telegram"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TokenResolver returns the bot token configured for a tenant's bot.
type TokenResolver func(tenantID, botID string) (string, bool)

// TelegramWebhook handles POST /v1/webhooks/telegram/{tenant}/{bot}.
// Commands start (or re-enter) a flow; any other text resumes the waiting one,
// or starts a flow whose trigger is that text when nothing is waiting.
// Updates are acknowledged with 200 once understood so Telegram does not
// redeliver them; the execution outcome is in the body.
func (s *Server) TelegramWebhook(w http.ResponseWriter, r *http.Request) {
	tenant, bot := chi.URLParam(r, "tenant"), chi.URLParam(r, "bot")
	token, ok := s.tokens(tenant, bot)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown bot", "")
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update", "")
		s.logger.Warn("invalid telegram update", "tenant", tenant, "bot", bot, "err", err)
		return
	}

	uctx, ok := telegram.ToContext(tenant, bot, token, update)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"ignored": true})
		return
	}

	clean, err := actions.SanitizeInput(uctx.Metadata.LastInput)
	if err != nil {
		s.logger.Warn("input rejected", "tenant", tenant, "user", uctx.UserID, "err", err)
		writeJSON(w, http.StatusOK, domain.FlowExecutionResult{
			Status:    domain.FlowFailed,
			Error:     err.Error(),
			ErrorCode: domain.CodeValidationFailed,
		})
		return
	}
	uctx.Metadata.LastInput = clean

	var res domain.FlowExecutionResult
	if uctx.Metadata.Command != "" {
		res = s.Engine.ExecuteFromTrigger(r.Context(), uctx)
	} else {
		res = s.Engine.ExecuteResume(r.Context(), uctx)
		// Plain text with no waiting flow may itself be a trigger phrase.
		if res.ErrorCode == domain.CodeNoActiveFlow {
			if text := strings.TrimSpace(uctx.Metadata.LastInput); text != "" {
				uctx.Metadata.Command = text
				res = s.Engine.ExecuteFromTrigger(r.Context(), uctx)
			}
		}
	}
	if !res.Success {
		s.logger.Debug("telegram update not handled", "tenant", tenant, "user", uctx.UserID, "code", res.ErrorCode, "err", res.Error)
	}
	writeJSON(w, http.StatusOK, res)
}
