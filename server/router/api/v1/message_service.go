package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/assistant"
	aierrors "github.com/vosarsen/ai-admin-v2-sub004/server/internal/errors"
	"github.com/vosarsen/ai-admin-v2-sub004/server/internal/observability"
)

// MessageRequest is the inbound message hook payload.
type MessageRequest struct {
	Phone     string `json:"phone" validate:"required,numeric,min=10,max=15"`
	CompanyID int    `json:"company_id" validate:"required,gt=0"`
	Text      string `json:"text" validate:"required,max=4000"`
	MessageID string `json:"message_id,omitempty" validate:"max=128"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code    aierrors.ErrorCode `json:"code"`
	Message string             `json:"message"`
}

// PostMessage runs the assistant pipeline for one client message.
// POST /api/v1/messages
func (s *APIV1Service) PostMessage(c echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, aierrors.Wrap(err, aierrors.ErrCodeInvalidArgument, "malformed body"))
	}
	if err := s.validate.Struct(&req); err != nil {
		return s.writeError(c, aierrors.Wrap(err, aierrors.ErrCodeInvalidArgument, "invalid message"))
	}
	if s.Messages == nil {
		return s.writeError(c, aierrors.ServiceUnavailable("assistant is not configured"))
	}

	reqID := c.Response().Header().Get(echo.HeaderXRequestID)
	rc := observability.NewRequestContextWithID(s.Logger, reqID, req.Phone, req.CompanyID)
	ctx := observability.WithRequestContext(c.Request().Context(), rc)
	rc.Info("message received", slog.Int(observability.LogFieldMessageLen, len([]rune(req.Text))))

	reply, err := s.Messages.HandleMessage(ctx, assistant.Inbound{
		Phone:     req.Phone,
		CompanyID: req.CompanyID,
		Text:      req.Text,
		MessageID: req.MessageID,
	})
	if err != nil {
		aiErr := aierrors.FromError(err)
		rc.Error("message failed", err,
			slog.String(observability.LogFieldErrorCode, string(aiErr.Code)),
			slog.Int64(observability.LogFieldDuration, rc.DurationMs()))
		return s.writeError(c, aiErr)
	}

	rc.Info("message handled",
		slog.Int(observability.LogFieldCommands, len(reply.Commands)),
		slog.Int64(observability.LogFieldDuration, rc.DurationMs()))

	status := http.StatusOK
	if reply.RateLimited {
		status = http.StatusTooManyRequests
	}
	return c.JSON(status, reply)
}

func (s *APIV1Service) writeError(c echo.Context, aiErr *aierrors.AIError) error {
	return c.JSON(aiErr.HTTPStatus(), ErrorResponse{Code: aiErr.Code, Message: aiErr.Message})
}
