// Package adminui is the admin-group control surface: the callback-data
// protocol behind inline buttons, the per-admin edit-session state machine,
// and the thin menu rendering that reads and writes settings entities.
package adminui

import (
	"fmt"
	"strconv"
	"strings"
)

// Callback data is a colon-delimited token string. The first segment selects
// the handler family, the rest are family-specific arguments. Encoding and
// decoding must agree exactly; every button in the admin UI goes through
// this codec.
const (
	FamilyConfig  = "config"
	FamilyBlock   = "block"
	FamilyUnblock = "unblock"
	FamilyPinCard = "pin_card"
)

// Config family actions.
const (
	ActionMenu      = "menu"    // config:menu:<section>
	ActionEdit      = "edit"    // config:edit:<key>        (scalar, await input)
	ActionToggle    = "toggle"  // config:toggle:<key>      (bool scalar, flip in place)
	ActionAddRule   = "add"     // config:add:<kind>        (rule list, await input)
	ActionDelRule   = "del"     // config:del:<kind>:<id>
	ActionCancel    = "cancel"  // config:cancel:<section>
)

type Callback struct {
	Family string
	Args   []string
}

func Encode(family string, args ...string) string {
	if len(args) == 0 {
		return family
	}
	return family + ":" + strings.Join(args, ":")
}

func Decode(data string) (Callback, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return Callback{}, fmt.Errorf("empty callback data")
	}
	parts := strings.Split(data, ":")
	cb := Callback{Family: parts[0], Args: parts[1:]}
	switch cb.Family {
	case FamilyConfig:
		if len(cb.Args) < 1 {
			return Callback{}, fmt.Errorf("config callback needs an action: %q", data)
		}
	case FamilyBlock, FamilyUnblock, FamilyPinCard:
		if len(cb.Args) != 1 {
			return Callback{}, fmt.Errorf("%s callback needs exactly one argument: %q", cb.Family, data)
		}
	default:
		return Callback{}, fmt.Errorf("unknown callback family: %q", data)
	}
	return cb, nil
}

// EncodeBlock/EncodeUnblock/EncodePinCard build the profile-card controls.
func EncodeBlock(userID int64) string   { return Encode(FamilyBlock, strconv.FormatInt(userID, 10)) }
func EncodeUnblock(userID int64) string { return Encode(FamilyUnblock, strconv.FormatInt(userID, 10)) }
func EncodePinCard(userID int64) string { return Encode(FamilyPinCard, strconv.FormatInt(userID, 10)) }

// UserIDArg parses the single user-id argument of the session families.
func (c Callback) UserIDArg() (int64, error) {
	if len(c.Args) != 1 {
		return 0, fmt.Errorf("callback %s: missing user id", c.Family)
	}
	id, err := strconv.ParseInt(c.Args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("callback %s: bad user id %q", c.Family, c.Args[0])
	}
	return id, nil
}
