package wire

import "encoding/json"

// UserInfo is the profile record exchanged once per peer over the
// user-info protocol. CustomData is flattened at the top level of the JSON
// encoding, matching the original Rust `#[serde(flatten)]` behaviour.
type UserInfo struct {
	DeviceName string            `json:"device_name"`
	Nickname   *string           `json:"nickname,omitempty"`
	AvatarURL  *string           `json:"avatar_url,omitempty"`
	Status     *string           `json:"status,omitempty"`
	CustomData map[string]string `json:"-"`
}

// knownUserInfoFields lists the struct-tagged keys so MarshalJSON/UnmarshalJSON
// can separate them from the flattened custom_data map.
var knownUserInfoFields = map[string]bool{
	"device_name": true,
	"nickname":    true,
	"avatar_url":  true,
	"status":      true,
}

// DisplayName returns Nickname if present and non-empty, else DeviceName.
func (u UserInfo) DisplayName() string {
	if u.Nickname != nil && *u.Nickname != "" {
		return *u.Nickname
	}
	return u.DeviceName
}

// MarshalJSON flattens CustomData alongside the known fields.
func (u UserInfo) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.CustomData)+4)
	for k, v := range u.CustomData {
		out[k] = v
	}
	out["device_name"] = u.DeviceName
	if u.Nickname != nil {
		out["nickname"] = *u.Nickname
	}
	if u.AvatarURL != nil {
		out["avatar_url"] = *u.AvatarURL
	}
	if u.Status != nil {
		out["status"] = *u.Status
	}
	return json.Marshal(out)
}

// UnmarshalJSON separates known fields from the flattened custom_data map.
func (u *UserInfo) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["device_name"]; ok {
		if err := json.Unmarshal(v, &u.DeviceName); err != nil {
			return err
		}
	}
	if v, ok := raw["nickname"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		u.Nickname = &s
	}
	if v, ok := raw["avatar_url"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		u.AvatarURL = &s
	}
	if v, ok := raw["status"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		u.Status = &s
	}
	custom := make(map[string]string)
	for k, v := range raw {
		if knownUserInfoFields[k] {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			continue // non-string custom field: skip rather than fail the whole decode
		}
		custom[k] = s
	}
	u.CustomData = custom
	return nil
}

// UserInfoRequest is the empty request body for the user-info protocol.
type UserInfoRequest struct{}
