// Package counsellor implements the counsellor side: registration validation
// and the availability feed with its accept operation.
package counsellor

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/lumaproject/luma/internal/api"
)

// Registration is a counsellor registration form. Validate runs before any
// request is issued; a request never carries an invalid payload.
type Registration struct {
	DisplayName string
	Categories  []string
	Languages   []string
	Bio         string
}

// Validate checks the required fields and aggregates every violation.
func (r *Registration) Validate() error {
	var result error

	if strings.TrimSpace(r.DisplayName) == "" {
		result = multierror.Append(result, fmt.Errorf("display name is required"))
	}
	if len(r.Categories) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one category is required"))
	}
	if len(r.Languages) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one language is required"))
	}

	return result
}

// Request converts the form into the wire payload.
func (r *Registration) Request() api.RegisterCounsellorRequest {
	return api.RegisterCounsellorRequest{
		DisplayName: r.DisplayName,
		Categories:  r.Categories,
		Languages:   r.Languages,
		Bio:         r.Bio,
	}
}
