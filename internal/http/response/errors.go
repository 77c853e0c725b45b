package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	pkgerrors "github.com/yungbote/curator-backend/internal/pkg/errors"
	"github.com/yungbote/curator-backend/internal/platform/apierr"
)

// FromError maps service sentinels onto API errors. Unknown errors become a
// 500 carrying fallbackCode.
func FromError(err error, fallbackCode string) *apierr.Error {
	var ae *apierr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, pkgerrors.ErrNotFound):
		return apierr.NotFound("not_found", err)
	case errors.Is(err, pkgerrors.ErrInvalidArgument):
		return apierr.BadRequest("invalid_argument", err)
	case errors.Is(err, pkgerrors.ErrSlotTaken):
		return apierr.Conflict("slot_taken", err)
	case errors.Is(err, pkgerrors.ErrStateConflict):
		return apierr.Conflict("state_conflict", err)
	default:
		return apierr.New(http.StatusInternalServerError, fallbackCode, err)
	}
}

// RespondServiceError writes err using FromError.
func RespondServiceError(c *gin.Context, err error, fallbackCode string) {
	ae := FromError(err, fallbackCode)
	if ae == nil {
		return
	}
	status := ae.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	RespondError(c, status, ae.Code, ae.Err)
}
