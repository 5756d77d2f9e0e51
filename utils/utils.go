package utils

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes carried in the error envelope.
const (
	ErrCodeValidation          = "validation"
	ErrCodeNotFound            = "not_found"
	ErrCodeConflict            = "conflict"
	ErrCodeUpstreamUnavailable = "upstream_unavailable"
	ErrCodeAuth                = "auth"
	ErrCodeInternal            = "internal"
)

// ErrorResponse creates the standardized error envelope
// {success:false, error:{code, message}}.
func ErrorResponse(c *fiber.Ctx, status int, code, message string, err error) error {
	body := fiber.Map{
		"success": false,
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	}
	if err != nil && code != ErrCodeInternal {
		body["details"] = err.Error()
	}
	return c.Status(status).JSON(body)
}

// SuccessResponse creates a standardized success response
func SuccessResponse(data interface{}) fiber.Map {
	return fiber.Map{
		"success": true,
		"data":    data,
	}
}

// Pagination describes one page of a filtered listing.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasMore    bool  `json:"hasMore"`
}

// NewPagination derives the page metadata from a total row count.
func NewPagination(page, limit int, total int64) Pagination {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasMore:    page < totalPages,
	}
}

// ClampLimit bounds a requested page size to [1, max], falling back to def
// when the request carries none.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// GenerateRateLimitKey creates a unique key for rate limiting
func GenerateRateLimitKey(userID uint, path string) string {
	return fmt.Sprintf("rl:%d:%s", userID, path)
}
