package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// UpdateNotice announces new or revised observations for a type. SiteID and
// NetworkID are informational; invalidation is per type.
type UpdateNotice struct {
	TypeID    string `json:"typeID"`
	SiteID    string `json:"siteID,omitempty"`
	NetworkID string `json:"networkID,omitempty"`
}

// ParseUpdateNotice decodes and validates a JSON update notice.
func ParseUpdateNotice(data []byte) (UpdateNotice, error) {
	var n UpdateNotice
	if err := json.Unmarshal(data, &n); err != nil {
		return UpdateNotice{}, fmt.Errorf("parse update notice: %w", err)
	}
	if n.TypeID == "" {
		return UpdateNotice{}, errors.New("parse update notice: missing typeID")
	}
	return n, nil
}
