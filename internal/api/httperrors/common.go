package httperrors

import (
	"net/http"

	"github.com/SafeMPC/card-bridge/internal/types"
)

var (
	ErrNotFoundNoPendingRequest = NewHTTPError(http.StatusNotFound, types.PublicHTTPErrorTypeNoPendingRequest, "No matching request is waiting for a card tap.")
	ErrConflictNoAccount        = NewHTTPError(http.StatusConflict, types.PublicHTTPErrorTypeNoAccount, "No card account known yet, tap the card first.")
	ErrNotFoundProposal         = NewHTTPError(http.StatusNotFound, types.PublicHTTPErrorTypeProposalNotFound, "Session proposal not found.")
	ErrNotFoundSession          = NewHTTPError(http.StatusNotFound, types.PublicHTTPErrorTypeSessionNotFound, "Session not found.")
	ErrBadRequestInvalidBody    = NewHTTPError(http.StatusBadRequest, types.PublicHTTPErrorTypeInvalidBodyContent, "Request body could not be parsed.")
)
