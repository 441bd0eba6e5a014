package conversation

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// sendRequest bounds what a caller may hand to Send. The max mirrors the
// server-side column limit.
type sendRequest struct {
	Text string `validate:"required,max=4000"`
}

func validateSend(text string) error {
	return validate.Struct(sendRequest{Text: text})
}
