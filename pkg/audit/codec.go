package audit

import (
	"encoding/json"
	"fmt"
)

func encodeHeaders(headers map[string]string) (string, error) {
	if len(headers) == 0 {
		return "", nil
	}
	b, err := json.Marshal(headers)
	if err != nil {
		return "", fmt.Errorf("encode audit headers: %w", err)
	}
	return string(b), nil
}

func decodeHeaders(raw string) (map[string]string, error) {
	var headers map[string]string
	if err := json.Unmarshal([]byte(raw), &headers); err != nil {
		return nil, fmt.Errorf("decode audit headers: %w", err)
	}
	return headers, nil
}
