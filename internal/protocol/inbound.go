package protocol

import (
	"encoding/json"
	"errors"
)

var ErrMissingType = errors.New("missing event type")

type inbound struct {
	Type EventType `json:"type"`
}

// DecodeType reads the discriminating type tag of an inbound frame. The frame
// itself is later decoded into the request type matching the tag.
func DecodeType(raw []byte) (EventType, error) {
	var envelope inbound
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", err
	}

	if envelope.Type == "" {
		return "", ErrMissingType
	}

	return envelope.Type, nil
}
