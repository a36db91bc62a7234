package handlers

import "github.com/gofiber/fiber/v2"

// Envelope is the uniform JSON response shape of the API.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

func successResponse(c *fiber.Ctx, statusCode int, message string, data interface{}) error {
	return c.Status(statusCode).JSON(Envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func errorResponse(c *fiber.Ctx, statusCode int, message string, errs interface{}) error {
	return c.Status(statusCode).JSON(Envelope{
		Success: false,
		Message: message,
		Errors:  errs,
	})
}
