package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// conflictOn maps unique-index violations to a 409 with the given message.
// Pre-insert existence checks race with concurrent writers; the index is the
// authority, and its violation must not surface as a 500.
func conflictOn(err error, message string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fiber.NewError(fiber.StatusConflict, message)
	}
	return err
}
