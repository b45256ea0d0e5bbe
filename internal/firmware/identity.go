package firmware

import "fmt"

// Identity is served on the update service so a flashing tool can check it
// has the right image for the board.
type Identity struct {
	Board   uint8
	HWMajor uint8
	HWMinor uint8
	FWMajor uint8
	FWMinor uint8
	FWPatch uint8
}

func (id Identity) MarshalBinary() ([]byte, error) {
	return []byte{id.Board, id.HWMajor, id.HWMinor, id.FWMajor, id.FWMinor, id.FWPatch}, nil
}

func (id Identity) String() string {
	return fmt.Sprintf("board %d hw %d.%d fw %d.%d.%d", id.Board, id.HWMajor, id.HWMinor, id.FWMajor, id.FWMinor, id.FWPatch)
}
