// Package diagnosis validates model replies and synthesises deterministic
// diagnoses when no model reply is available.
package diagnosis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kubilitics/kubilitics-copilot/internal/models"
)

// ErrMalformedReply means the reply is not a JSON object at all. Callers treat
// it like any other failed model call.
var ErrMalformedReply = errors.New("model reply is not a JSON object")

// ResponseSchemaError reports a reply field that cannot be coerced into a
// DiagnosisResult.
type ResponseSchemaError struct {
	Field  string
	Reason string
}

func (e *ResponseSchemaError) Error() string {
	return fmt.Sprintf("invalid response from model: %s: %s", e.Field, e.Reason)
}

// Coerce parses a reply into a DiagnosisResult.
//
// Absent or null fields take defaults: confidence 0, no patches, empty
// root_cause and agent_block, no follow_up. A confidence given as a numeric
// string is accepted. Any other type mismatch is a *ResponseSchemaError.
// The confidence/follow-up coupling is not checked or repaired here.
func Coerce(raw []byte) (*models.DiagnosisResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, ErrMalformedReply
	}

	res := &models.DiagnosisResult{Patches: []string{}}
	var err error

	if res.Confidence, err = coerceFloat(fields["confidence"]); err != nil {
		return nil, &ResponseSchemaError{Field: "confidence", Reason: err.Error()}
	}
	if res.RootCause, err = coerceString(fields["root_cause"]); err != nil {
		return nil, &ResponseSchemaError{Field: "root_cause", Reason: err.Error()}
	}
	if res.AgentBlock, err = coerceString(fields["agent_block"]); err != nil {
		return nil, &ResponseSchemaError{Field: "agent_block", Reason: err.Error()}
	}
	if raw, ok := fields["follow_up"]; ok && !isNull(raw) {
		s, err := coerceString(raw)
		if err != nil {
			return nil, &ResponseSchemaError{Field: "follow_up", Reason: err.Error()}
		}
		res.FollowUp = &s
	}
	if raw, ok := fields["patches"]; ok && !isNull(raw) {
		var patches []string
		if err := json.Unmarshal(raw, &patches); err != nil {
			return nil, &ResponseSchemaError{Field: "patches", Reason: "expected an array of strings"}
		}
		if patches != nil {
			res.Patches = patches
		}
	}

	return res, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func coerceFloat(raw json.RawMessage) (float64, error) {
	if isNull(raw) {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to a number", s)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%q is not a finite number", s)
		}
		return f, nil
	}
	return 0, errors.New("expected a number")
}

func coerceString(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.New("expected a string")
	}
	return s, nil
}
