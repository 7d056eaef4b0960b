package signing

import (
	"github.com/rs/zerolog/log"
)

// LogPrompt 在日志中提示用户刷卡
type LogPrompt struct{}

func (LogPrompt) Show(req *SigningRequest) {
	log.Info().
		Int64("request_id", req.ID).
		Str("kind", req.Kind.String()).
		Str("display", req.DisplayText).
		Msg("Tap card to sign")
}

func (LogPrompt) Dismiss(req *SigningRequest) {
	log.Debug().Int64("request_id", req.ID).Msg("Tap prompt dismissed")
}
