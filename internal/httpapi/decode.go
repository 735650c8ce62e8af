package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// errBadBody marks a body that could not be read as the expected JSON.
var errBadBody = errors.New("invalid JSON body")

// SquareRef is a requested square given as a JSON number or string.
type SquareRef string

// UnmarshalJSON accepts 7, "7" and "007".
func (s *SquareRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = SquareRef(str)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("square must be a number or string")
	}
	*s = SquareRef(n.String())
	return nil
}

// FlexBool is a boolean given as true/false or "true"/"yes"/"false"/"no".
type FlexBool bool

// UnmarshalJSON parses the accepted forms.
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = FlexBool(t)
		return nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes":
			*b = true
			return nil
		case "false", "no":
			*b = false
			return nil
		}
	}
	return fmt.Errorf("expected a boolean, got %s", data)
}

// decodeBody reads a size-limited JSON body into dst. An empty body
// leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}
