package client

import (
	"encoding/json"
	"errors"
	"strconv"
)

var errInvalidJSON = errors.New("invalid JSON body")

// jsonErrorMessage pulls a readable message out of the error bodies the providers return:
// {"error": ".."}, {"message": ".."}, {"msg": ".."} and {"errors": [{"detail": ".."}]}.
func jsonErrorMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	for _, key := range []string{"error", "message", "msg", "detail"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}

	errs, ok := payload["errors"].([]any)
	if !ok || len(errs) == 0 {
		return ""
	}
	switch first := errs[0].(type) {
	case string:
		return first
	case map[string]any:
		for _, key := range []string{"detail", "message", "code"} {
			if s, ok := first[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func itoa(id int) string {
	return strconv.Itoa(id)
}
