package ipc

import (
	"encoding/json"

	"hdxplay/internal/player"
)

type event struct {
	Type     string   `json:"type"`
	From     string   `json:"from,omitempty"`
	To       string   `json:"to,omitempty"`
	Session  string   `json:"session,omitempty"`
	Playing  bool     `json:"playing"`
	VolumeDB *float64 `json:"volume_db,omitempty"`
}

type status struct {
	player.Stats
	VolumeDB *float64 `json:"volume_db,omitempty"`
	Owner    bool     `json:"owner"`
}

func (s *Server) status() status {
	st := status{Stats: s.deps.Player.Stats()}
	if s.deps.Volume != nil {
		db := s.deps.Volume.Volume()
		st.VolumeDB = &db
	}
	s.mu.Lock()
	st.Owner = s.owner != nil
	s.mu.Unlock()
	return st
}

// StateHook forwards player transitions to the owner as EVENT lines. Pass
// it to player.WithStateHook.
func (s *Server) StateHook(from, to player.State) {
	if from == to {
		return
	}
	s.emit(event{
		Type:    "STATE",
		From:    from.String(),
		To:      to.String(),
		Session: s.deps.Player.Session(),
		Playing: s.deps.Player.IsPlaying(),
	})
}

func (s *Server) emit(ev event) {
	s.mu.Lock()
	owner := s.owner
	s.mu.Unlock()
	if owner == nil {
		return
	}
	if ev.Type != "STATE" {
		ev.Playing = s.deps.Player.IsPlaying()
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case owner.events <- "EVENT " + string(b):
	default:
		s.log.Warn().Str("type", ev.Type).Msg("ipc event dropped")
	}
}
