package cloud

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/g32-bridge/internal/device"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse accepts the token at the top level or under "data".
type loginResponse struct {
	AccessToken string `json:"accessToken"`
	Data        *struct {
		AccessToken string `json:"accessToken"`
	} `json:"data"`
}

func (r loginResponse) token() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	if r.Data != nil {
		return r.Data.AccessToken
	}
	return ""
}

// decodeGrills accepts a bare array or an object with a "data" array.
func decodeGrills(data []byte) ([]device.Grill, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty grills response", ErrInvalidResponse)
	}

	var grills []device.Grill
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &grills); err != nil {
			return nil, fmt.Errorf("%w: grills: %w", ErrInvalidResponse, err)
		}
		return grills, nil
	}

	var wrapped struct {
		Data []device.Grill `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: grills: %w", ErrInvalidResponse, err)
	}
	return wrapped.Data, nil
}
