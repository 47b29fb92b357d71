package commands

// clientView mirrors internal/server's JSON client representation.
// steerctl has no generated client package to import (the admin API is
// plain JSON, not protobuf), so it keeps its own copy of the wire shape.
type clientView struct {
	Addr               string `json:"addr"`
	State              string `json:"state"`
	Score              uint16 `json:"score"`
	RemoteBSSID        string `json:"remote_bssid,omitempty"`
	RemoteAdjustedTime string `json:"remote_adjusted_time,omitempty"`
	CloseBSSID         string `json:"close_bssid,omitempty"`
	AssociationTime    string `json:"association_time,omitempty"`
	RemoteChannel      uint8  `json:"remote_channel,omitempty"`
}

type stateChangeView struct {
	Client   string `json:"client"`
	OldState string `json:"old_state"`
	NewState string `json:"new_state"`
	Event    string `json:"event"`
}

type setModeRequest struct {
	Mode string `json:"mode"`
}

type errorView struct {
	Error string `json:"error"`
}
