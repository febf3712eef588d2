package accountengine

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/liamcoop/campaignrules/rules"
)

const (
	maxIDLength         = 100
	maxNameLength       = 200
	maxExpressionLength = 2000
)

// ErrInvalidInput marks request data rejected before it reaches an engine.
var ErrInvalidInput = errors.New("invalid input")

// Ad platform ids look like "act_1234567890" or plain digits.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]*$`)

// ValidateAccount validates an account id and display name
func ValidateAccount(id, name string) error {
	if err := validateID("account id", id); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: account name cannot be empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: account name exceeds maximum of %d characters", ErrInvalidInput, maxNameLength)
	}
	return nil
}

// ValidateRule checks the user-supplied fields of a rule. It does not parse
// the expression; malformed text is the engine's concern.
func ValidateRule(r *rules.Rule) error {
	if r == nil {
		return fmt.Errorf("%w: rule is required", ErrInvalidInput)
	}

	if strings.TrimSpace(r.Expression) == "" {
		return fmt.Errorf("%w: expression is required", ErrInvalidInput)
	}
	if len(r.Expression) > maxExpressionLength {
		return fmt.Errorf("%w: expression length %d exceeds maximum of %d", ErrInvalidInput, len(r.Expression), maxExpressionLength)
	}

	if r.Action == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidInput)
	}
	if _, err := rules.ParseAction(string(r.Action)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if utf8.RuneCountInString(r.Name) > maxNameLength {
		return fmt.Errorf("%w: rule name exceeds maximum of %d characters", ErrInvalidInput, maxNameLength)
	}

	// campaign id is optional; rules authored from the account view have none
	if r.CampaignID != "" {
		if err := validateID("campaign id", r.CampaignID); err != nil {
			return err
		}
	}

	return nil
}

func validateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidInput, kind)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: %s length %d exceeds maximum of %d characters", ErrInvalidInput, kind, len(id), maxIDLength)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %s %q must contain only letters, digits, '_' or '-'", ErrInvalidInput, kind, id)
	}
	return nil
}
