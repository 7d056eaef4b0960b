package httperrors

import (
	"errors"
	"net/http"

	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/SafeMPC/card-bridge/internal/util"
	oerrors "github.com/go-openapi/errors"
	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"
)

// HTTPErrorHandler 统一的 echo 错误处理，所有错误都以 PublicHTTPError 格式返回
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	log := util.LogFromEchoContext(c)
	code := http.StatusInternalServerError
	var body interface{}

	var (
		httpErr       *HTTPError
		validationErr *HTTPValidationError
		echoErr       *echo.HTTPError
		compositeErr  *oerrors.CompositeError
	)

	switch {
	case errors.As(err, &httpErr):
		code = int(*httpErr.Code)
		body = httpErr
	case errors.As(err, &validationErr):
		code = int(*validationErr.Code)
		body = validationErr
	case errors.As(err, &compositeErr):
		code = http.StatusBadRequest
		body = NewHTTPValidationError(code, types.PublicHTTPErrorTypeGeneric, http.StatusText(code), formatValidationErrors(compositeErr))
	case errors.As(err, &echoErr):
		code = echoErr.Code
		body = NewFromEcho(echoErr)
	default:
		body = NewHTTPError(code, types.PublicHTTPErrorTypeGeneric, http.StatusText(code))
	}

	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", code).Msg("Request failed")
	} else {
		log.Debug().Err(err).Int("status", code).Msg("Request rejected")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, body)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed to write error response")
	}
}

func formatValidationErrors(composite *oerrors.CompositeError) []*types.HTTPValidationErrorDetail {
	details := make([]*types.HTTPValidationErrorDetail, 0, len(composite.Errors))
	for _, e := range composite.Errors {
		var v *oerrors.Validation
		if errors.As(e, &v) {
			details = append(details, &types.HTTPValidationErrorDetail{
				Key:   swag.String(v.Name),
				In:    swag.String(v.In),
				Error: swag.String(v.Error()),
			})
			continue
		}
		var nested *oerrors.CompositeError
		if errors.As(e, &nested) {
			details = append(details, formatValidationErrors(nested)...)
			continue
		}
		details = append(details, &types.HTTPValidationErrorDetail{
			Key:   swag.String(""),
			In:    swag.String("body"),
			Error: swag.String(e.Error()),
		})
	}
	return details
}
