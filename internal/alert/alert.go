// Package alert plays short local prompt clips (power on, network state,
// wake-up and so on) through the player.
package alert

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"hdxplay/internal/codec"
	"hdxplay/pkg/spec"
)

type Type int

const (
	Normal Type = iota
	PowerOn
	NotActive
	NetworkCfg
	NetworkConnected
	NetworkFail
	NetworkDisconnect
	BatteryLow
	PleaseAgain
	Wakeup
	LongKeyTalk
	KeyTalk
	WakeupTalk
	FreeTalk

	numTypes
)

var typeNames = [numTypes]string{
	"normal",
	"power_on",
	"not_active",
	"network_cfg",
	"network_connected",
	"network_fail",
	"network_disconnect",
	"battery_low",
	"please_again",
	"wakeup",
	"long_key_talk",
	"key_talk",
	"wakeup_talk",
	"free_talk",
}

var ErrUnknownType = errors.New("alert: unknown type")

func (t Type) String() string {
	if t < 0 || t >= numTypes {
		return "type_" + strconv.Itoa(int(t))
	}
	return typeNames[t]
}

// SessionID is the player session id used while the alert plays.
func (t Type) SessionID() string {
	return spec.AlertIDPrefix + strconv.Itoa(int(t))
}

// ParseType accepts a name ("battery_low") or a number ("7").
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 0 && n < int(numTypes) {
			return Type(n), nil
		}
		return 0, fmt.Errorf("%w: %d", ErrUnknownType, n)
	}
	for i, name := range typeNames {
		if name == s {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

func Types() []Type {
	out := make([]Type, numTypes)
	for i := range out {
		out[i] = Type(i)
	}
	return out
}

// Player is the part of *player.Player an alert needs.
type Player interface {
	StartAs(ctx context.Context, id string, kind codec.Kind) error
	Write(id string, data []byte, eof bool) error
}

var ErrNoClip = errors.New("alert: no clip for type")

// Play starts an alert session and writes the whole clip with eof set. The
// player drains it and returns to IDLE on its own.
func Play(ctx context.Context, p Player, lib *Library, t Type) error {
	clip, ok := lib.Clip(t)
	if !ok {
		return fmt.Errorf("%w %s", ErrNoClip, t)
	}
	id := t.SessionID()
	if err := p.StartAs(ctx, id, clip.Kind); err != nil {
		return fmt.Errorf("alert %s: %w", t, err)
	}
	if err := p.Write(id, clip.Data, true); err != nil {
		return fmt.Errorf("alert %s: %w", t, err)
	}
	return nil
}
