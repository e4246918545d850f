package model

type State struct {
	State []bool `json:"state"`
}

type Error struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type Health struct {
	Status  string `json:"status"`
	Contest string `json:"contest,omitempty"`
}
