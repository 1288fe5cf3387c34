package httpapi

import (
	"errors"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"promptguessr/internal/game"
)

const maxDisplayNameLength = 20

var validatorOnce sync.Once

// registerValidators installs the "displayname" tag against the shared
// validator engine gin binding uses, so request structs can declare
// `binding:"required,displayname"` instead of hand-checking in the handler.
func registerValidators() {
	validatorOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = engine.RegisterValidation("displayname", func(fl validator.FieldLevel) bool {
			_, err := validateDisplayName(fl.Field().String())
			return err == nil
		})
	})
}

func validateDisplayName(name string) (string, error) {
	trimmed := normalizeText(name)
	if trimmed == "" {
		return "", errors.New("playerName is required")
	}
	if len(trimmed) > maxDisplayNameLength {
		return "", errors.New("playerName must be 20 characters or fewer")
	}
	if !isSafeText(trimmed) {
		return "", errors.New("playerName contains unsupported characters")
	}
	return trimmed, nil
}

func normalizeText(text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	return strings.Join(fields, " ")
}

func isSafeText(text string) bool {
	for _, r := range text {
		if r > 127 {
			return false
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			continue
		}
		switch r {
		case ' ', '-', '_', '\'', '"', '.', ',', '!', '?':
			continue
		default:
			return false
		}
	}
	return true
}

func parseSettings(req createRoomRequest) game.Settings {
	return game.Settings{
		RoundCount: req.RoundCount,
		ImageCount: req.ImageCount,
	}.WithDefaults()
}
